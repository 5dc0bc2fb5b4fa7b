package domain

import (
	"time"

	"github.com/google/uuid"
)

// GitState records, per (tenant, environment, canonical id), the fingerprint
// and location of the workflow's latest version-controlled representation.
// Exactly one row per composite key; a canonical workflow with no git state
// for an environment has never been committed there.
type GitState struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;"`
	TenantID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_git_state_key;not null"`
	EnvironmentID string    `gorm:"type:varchar(100);uniqueIndex:idx_git_state_key;not null"`
	CanonicalID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_git_state_key;not null"`

	Path        string `gorm:"type:varchar(1024);not null"`
	CommitRef   string `gorm:"type:varchar(100)"`
	ContentHash string `gorm:"type:varchar(128);index;not null"`

	LastSyncAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewGitState(tenantID uuid.UUID, environmentID string, canonicalID uuid.UUID) *GitState {
	return &GitState{
		ID:            uuid.New(),
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		CanonicalID:   canonicalID,
		CreatedAt:     time.Now(),
	}
}
