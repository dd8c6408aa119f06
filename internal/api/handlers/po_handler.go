package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type POHandler struct {
	poService *service.POService
}

func NewPOHandler(poService *service.POService) *POHandler {
	return &POHandler{poService: poService}
}

// List returns every purchase order, newest first.
func (h *POHandler) List(c *gin.Context) {
	orders, err := h.poService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Create stores a purchase order and starts building its worksheet.
func (h *POHandler) Create(c *gin.Context) {
	var in domain.NewPurchaseOrder
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	po, err := h.poService.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, po)
}

func (h *POHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	po, err := h.poService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func (h *POHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var upd domain.PurchaseOrderUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	po, err := h.poService.Update(c.Request.Context(), id, upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func (h *POHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.poService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunStage starts the stage named in the path and returns immediately.
func (h *POHandler) RunStage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	stage := domain.Stage(c.Param("stage"))
	runID, err := h.poService.RunStage(c.Request.Context(), id, stage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "stage": stage})
}

// Undo reverts the purchase order's last workflow step.
func (h *POHandler) Undo(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	po, err := h.poService.Undo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchase order id"})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrStageInProgress),
		errors.Is(err, repository.ErrStatusConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
