package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"canonsync/internal/api/dto"
	"canonsync/internal/domain"
	"canonsync/internal/service"
)

type syncFunc func(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error)

type SyncHandler struct {
	service service.SyncService
}

func NewSyncHandler(svc service.SyncService) *SyncHandler {
	return &SyncHandler{service: svc}
}

func (h *SyncHandler) SyncRepository(c *gin.Context) {
	h.runSync(c, domain.SyncKindRepository, h.service.SyncRepository)
}

func (h *SyncHandler) SyncEnvironment(c *gin.Context) {
	h.runSync(c, domain.SyncKindEnvironment, h.service.SyncEnvironment)
}

func (h *SyncHandler) runSync(c *gin.Context, kind domain.SyncKind, run syncFunc) {
	var req dto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Async {
		job := domain.SyncJob{TenantID: req.TenantID, EnvironmentID: req.EnvironmentID, Kind: kind}
		if err := h.service.Enqueue(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, dto.SyncAcceptedResponse{Enqueued: true})
		return
	}

	result, err := run(c.Request.Context(), req.TenantID, req.EnvironmentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrSyncInProgress) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) GetMappingStatus(c *gin.Context) {
	tenantID, canonicalID, ok := parseIDs(c)
	if !ok {
		return
	}

	status, err := h.service.GetMappingStatus(c.Request.Context(), tenantID, c.Param("environment_id"), canonicalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.MappingStatusResponse{CanonicalID: canonicalID, Status: status})
}

func (h *SyncHandler) SetMappingStatus(c *gin.Context) {
	tenantID, canonicalID, ok := parseIDs(c)
	if !ok {
		return
	}

	var req dto.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.service.SetMappingStatus(c.Request.Context(), tenantID, c.Param("environment_id"), canonicalID, req.Status)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.MappingStatusResponse{CanonicalID: canonicalID, Status: req.Status})
}

func (h *SyncHandler) DeleteWorkflow(c *gin.Context) {
	canonicalID, err := uuid.Parse(c.Param("canonical_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid canonical id"})
		return
	}

	if err := h.service.DeleteWorkflow(c.Request.Context(), canonicalID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func parseIDs(c *gin.Context) (tenantID, canonicalID uuid.UUID, ok bool) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return uuid.Nil, uuid.Nil, false
	}
	canonicalID, err = uuid.Parse(c.Param("canonical_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid canonical id"})
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, canonicalID, true
}
