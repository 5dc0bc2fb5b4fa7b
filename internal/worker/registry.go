package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"canonsync/internal/domain"
	"canonsync/internal/service"
)

// JobHandler runs one sync pass for a (tenant, environment).
type JobHandler func(ctx context.Context, tenantID uuid.UUID, environmentID string) (*domain.SyncResult, error)

// JobRegistry maps a sync kind to the service entry point that runs it.
type JobRegistry map[domain.SyncKind]JobHandler

// InitRegistry wires the queue-driven job kinds to the sync service.
func InitRegistry(svc service.SyncService) JobRegistry {
	return JobRegistry{
		domain.SyncKindRepository:  svc.SyncRepository,
		domain.SyncKindEnvironment: svc.SyncEnvironment,
	}
}

func (r JobRegistry) handler(kind domain.SyncKind) (JobHandler, error) {
	h, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("unknown sync kind: %s", kind)
	}
	return h, nil
}
