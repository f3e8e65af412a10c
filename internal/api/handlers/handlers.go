package handlers

import (
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quantsmith/quantsmith/internal/catalog"
	"github.com/sirupsen/logrus"
)

// Handlers serves one output directory read-only
type Handlers struct {
	outDir    string
	catalog   *catalog.Catalog
	publicKey *rsa.PublicKey
	log       logrus.FieldLogger
}

// NewHandlers creates handlers for outDir. cat indexes nested output
// directories; publicKey may be nil, in which case signatures are not checked.
func NewHandlers(outDir string, cat *catalog.Catalog, publicKey *rsa.PublicKey, log logrus.FieldLogger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handlers{
		outDir:    outDir,
		catalog:   cat,
		publicKey: publicKey,
		log:       log,
	}
}

// Health endpoint for health checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}
