package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

type digestRepository struct {
	db *gorm.DB
}

// NewDigestRepository creates a new instance of DigestRepository
func NewDigestRepository(db *gorm.DB) ports.DigestRepository {
	return &digestRepository{db: db}
}

// Save keeps the first payload seen for a hash; a later payload under the
// same hash is exactly the collision the registry exists to expose, so it
// must not overwrite the original.
func (r *digestRepository) Save(ctx context.Context, hash string, payload []byte) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(&domain.ContentDigest{
			ContentHash: hash,
			Payload:     payload,
			FirstSeenAt: time.Now(),
		}).Error
}

func (r *digestRepository) All(ctx context.Context) (map[string][]byte, error) {
	var digests []domain.ContentDigest
	if err := r.db.WithContext(ctx).Find(&digests).Error; err != nil {
		return nil, err
	}
	entries := make(map[string][]byte, len(digests))
	for _, d := range digests {
		entries[d.ContentHash] = d.Payload
	}
	return entries, nil
}
