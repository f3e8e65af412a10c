package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quantsmith/quantsmith/internal/catalog"
)

func entryJSON(e *catalog.Entry) gin.H {
	out := gin.H{
		"name":      e.Name,
		"file":      e.Manifest.File,
		"sha256":    e.Manifest.SHA256,
		"created":   e.Manifest.Created,
		"precision": e.Precision,
		"size":      e.Size,
		"signed":    e.Signed(),
	}
	if e.Manifest.Metrics != nil {
		out["metrics"] = e.Manifest.Metrics
	}
	return out
}

// ListModels returns every manifested directory below the served root
func (h *Handlers) ListModels(c *gin.Context) {
	if err := h.catalog.Scan(); err != nil {
		h.log.WithError(err).Error("catalog scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entries := h.catalog.List()
	models := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		models = append(models, entryJSON(e))
	}

	c.JSON(http.StatusOK, gin.H{
		"models": models,
		"count":  len(models),
	})
}

// GetModel returns one catalog entry by its path below the root
func (h *Handlers) GetModel(c *gin.Context) {
	e, err := h.catalog.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entryJSON(e))
}
