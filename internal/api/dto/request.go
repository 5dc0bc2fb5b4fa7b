package dto

import (
	"github.com/google/uuid"

	"canonsync/internal/domain"
)

type SyncRequest struct {
	TenantID      uuid.UUID `json:"tenant_id" binding:"required"`
	EnvironmentID string    `json:"environment_id" binding:"required"`
	// Async enqueues the sync for the worker instead of running it in
	// the request.
	Async bool `json:"async"`
}

type SyncAcceptedResponse struct {
	Enqueued bool `json:"enqueued"`
}

type MappingStatusResponse struct {
	CanonicalID uuid.UUID            `json:"canonical_id"`
	Status      domain.MappingStatus `json:"status"`
}

type SetStatusRequest struct {
	Status domain.MappingStatus `json:"status" binding:"required"`
}
