package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ContentDigest persists the first normalized payload seen for each
// fingerprint. The collision registry is rebuilt from this table at
// process start, so a collision that straddles a restart is still
// detected.
type ContentDigest struct {
	ContentHash string         `gorm:"type:varchar(128);primaryKey"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	FirstSeenAt time.Time
}
