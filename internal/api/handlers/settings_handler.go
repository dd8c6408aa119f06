package handlers

import (
	"net/http"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/service"
	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	poService *service.POService
}

func NewSettingsHandler(poService *service.POService) *SettingsHandler {
	return &SettingsHandler{poService: poService}
}

func (h *SettingsHandler) GetBreakdown(c *gin.Context) {
	s, err := h.poService.BreakdownSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// PatchBreakdown applies the fields present in the body.
func (h *SettingsHandler) PatchBreakdown(c *gin.Context) {
	var patch domain.BreakdownSettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.poService.PatchBreakdownSettings(c.Request.Context(), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *SettingsHandler) GetCatalog(c *gin.Context) {
	s, err := h.poService.CatalogSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *SettingsHandler) PutCatalog(c *gin.Context) {
	var in domain.CatalogSettings
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.poService.UpdateCatalogSettings(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
