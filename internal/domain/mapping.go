package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MappingStatus string

const (
	StatusLinked    MappingStatus = "LINKED"
	StatusUntracked MappingStatus = "UNTRACKED"
	StatusMissing   MappingStatus = "MISSING"
	StatusIgnored   MappingStatus = "IGNORED"
	StatusDeleted   MappingStatus = "DELETED"
)

// EnvironmentMapping records, per (tenant, environment), the live runtime
// representation of a workflow: the runtime's own identifier, the content
// fingerprint last observed there, and the lifecycle status.
//
// CanonicalID is nil only while the mapping is UNTRACKED. At most one
// non-MISSING row may exist per (tenant, environment, canonical id): a
// canonical identity cannot be linked to two native workflows at once.
type EnvironmentMapping struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;"`
	TenantID      uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_env_mapping_native;not null"`
	EnvironmentID string     `gorm:"type:varchar(100);uniqueIndex:idx_env_mapping_native;not null"`
	NativeID      string     `gorm:"type:varchar(255);uniqueIndex:idx_env_mapping_native;not null"`
	CanonicalID   *uuid.UUID `gorm:"type:uuid;index"`

	ContentHash     string        `gorm:"type:varchar(128);index"`
	NativeUpdatedAt time.Time
	Status          MappingStatus `gorm:"type:varchar(20);index;default:'UNTRACKED'"`

	// Only populated for environments of the "full" class, where the
	// engine caches the workflow payload locally. Observational
	// environments retain the hash alone and the repository stays
	// authoritative for content.
	CachedPayload datatypes.JSON `gorm:"type:jsonb"`

	LinkedAt *time.Time
	LinkedBy *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewEnvironmentMapping(tenantID uuid.UUID, environmentID, nativeID string) *EnvironmentMapping {
	return &EnvironmentMapping{
		ID:            uuid.New(),
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		NativeID:      nativeID,
		Status:        StatusUntracked,
		CreatedAt:     time.Now(),
	}
}

// Link associates the mapping with a canonical identity.
func (m *EnvironmentMapping) Link(canonicalID uuid.UUID, linkedBy string) {
	now := time.Now()
	m.CanonicalID = &canonicalID
	m.Status = StatusLinked
	m.LinkedAt = &now
	m.LinkedBy = &linkedBy
}

func (m *EnvironmentMapping) IsTracked() bool {
	return m.CanonicalID != nil
}

// EnvironmentClass controls what an environment sync persists.
type EnvironmentClass string

const (
	// EnvironmentFull caches the complete workflow payload locally.
	EnvironmentFull EnvironmentClass = "full"
	// EnvironmentObservational retains only the content hash.
	EnvironmentObservational EnvironmentClass = "observational"
)
