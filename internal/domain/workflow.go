package domain

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalWorkflow is the identity anchor for a workflow. The ID is
// assigned once and never changes, even if the workflow content later
// diverges beyond recognition. Rows are soft-deleted, never removed.
type CanonicalWorkflow struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;"`
	TenantID    uuid.UUID `gorm:"type:uuid;index;not null"`
	DisplayName string    `gorm:"type:varchar(255)"`

	// Audit
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

// --- FACTORY ---
func NewCanonicalWorkflow(tenantID uuid.UUID, displayName string) *CanonicalWorkflow {
	return &CanonicalWorkflow{
		ID:          uuid.New(),
		TenantID:    tenantID,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
}

// --- METHODS ---
func (w *CanonicalWorkflow) IsDeleted() bool {
	return w.DeletedAt != nil
}

// WorkflowFile maps a repository file path to a canonical identity.
// Maintained by the repository sync itself so identity resolution
// survives repository layout changes; parsing the identity out of the
// filename is only a bootstrap fallback.
type WorkflowFile struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;"`
	TenantID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_workflow_file_path;not null"`
	EnvironmentID string    `gorm:"type:varchar(100);uniqueIndex:idx_workflow_file_path;not null"`
	Path          string    `gorm:"type:varchar(1024);uniqueIndex:idx_workflow_file_path;not null"`
	CanonicalID   uuid.UUID `gorm:"type:uuid;index;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewWorkflowFile(tenantID uuid.UUID, environmentID, path string, canonicalID uuid.UUID) *WorkflowFile {
	return &WorkflowFile{
		ID:            uuid.New(),
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		Path:          path,
		CanonicalID:   canonicalID,
		CreatedAt:     time.Now(),
	}
}
