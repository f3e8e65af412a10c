package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/quantsmith/quantsmith/internal/manifest"
	"github.com/quantsmith/quantsmith/internal/signing"
	"github.com/quantsmith/quantsmith/pkg/types"
)

// Signature check results reported by VerifyManifest
const (
	SignatureUnchecked = "unchecked"
	SignatureUnsigned  = "unsigned"
	SignatureValid     = "valid"
	SignatureInvalid   = "invalid"
)

// GetManifest returns model.json as stored
func (h *Handlers) GetManifest(c *gin.Context) {
	m, err := manifest.Read(h.outDir)
	if err != nil {
		h.manifestError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// VerifyManifest recomputes the artifact digest and, when a public key is
// configured, checks the signature
func (h *Handlers) VerifyManifest(c *gin.Context) {
	m, v, err := manifest.Verify(h.outDir)
	if err != nil && !errors.Is(err, types.ErrDigestMismatch) {
		h.manifestError(c, err)
		return
	}

	sig := SignatureUnchecked
	if h.publicKey != nil {
		switch verr := signing.VerifyManifest(m, h.publicKey); {
		case verr == nil:
			sig = SignatureValid
		case errors.Is(verr, types.ErrUnsigned):
			sig = SignatureUnsigned
		default:
			sig = SignatureInvalid
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"file":      v.File,
		"valid":     v.Valid,
		"expected":  v.Expected,
		"actual":    v.Actual,
		"signature": sig,
	})
}

// GetArtifact streams the file the manifest names
func (h *Handlers) GetArtifact(c *gin.Context) {
	m, err := manifest.Read(h.outDir)
	if err != nil {
		h.manifestError(c, err)
		return
	}

	path := manifest.ArtifactPath(h.outDir, m)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "artifact not found",
			"file":  m.File,
		})
		return
	}

	c.Header("X-Artifact-SHA256", m.SHA256)
	c.FileAttachment(path, m.File)
}

func (h *Handlers) manifestError(c *gin.Context, err error) {
	if errors.Is(err, types.ErrManifestNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.log.WithError(err).Error("manifest request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
