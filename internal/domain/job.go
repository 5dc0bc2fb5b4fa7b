package domain

import (
	"github.com/google/uuid"
)

type SyncKind string

const (
	SyncKindRepository  SyncKind = "repository"
	SyncKindEnvironment SyncKind = "environment"
)

// SyncJob is a queued request to run one sync pass. Jobs are pushed by the
// API or the scheduler and drained by the sync worker.
type SyncJob struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	EnvironmentID string    `json:"environment_id"`
	Kind          SyncKind  `json:"kind"`
}

// SyncCompletedEvent is published to Redis Pub/Sub after a sync pass so
// external consumers (dashboards, notifiers) can react without polling.
type SyncCompletedEvent struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	EnvironmentID string    `json:"environment_id"`
	Kind          SyncKind  `json:"kind"`
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
	Errored       int       `json:"errored"`
}
