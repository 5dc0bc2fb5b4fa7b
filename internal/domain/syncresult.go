package domain

import (
	"sync"

	"github.com/google/uuid"
)

// SyncError captures a single item's failure without aborting the batch.
type SyncError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// CollisionWarning reports that two distinct payloads produced the same
// fingerprint during a sync pass. Resolved means a salted fallback hash
// kept the identities apart; unresolved collisions need manual review.
type CollisionWarning struct {
	NativeID    *string    `json:"native_id,omitempty"`
	CanonicalID *uuid.UUID `json:"canonical_id,omitempty"`
	ContentHash string     `json:"content_hash"`
	Resolved    bool       `json:"resolved"`
}

// SyncResult aggregates the outcome of one sync pass. Every enumerated
// item ends in exactly one of AddProcessed, AddSkipped or AddFailed; the
// disposition counters (created, linked, untracked, missing) accumulate
// on top. Counters are mutated by concurrent item workers, so all writes
// go through the methods below.
type SyncResult struct {
	mu sync.Mutex

	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Created   int `json:"created"`
	Linked    int `json:"linked"`
	Untracked int `json:"untracked"`
	Missing   int `json:"missing"`

	Errors            []SyncError        `json:"errors"`
	CollisionWarnings []CollisionWarning `json:"collision_warnings"`
}

func (r *SyncResult) AddProcessed() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

func (r *SyncResult) AddSkipped() {
	r.mu.Lock()
	r.Processed++
	r.Skipped++
	r.mu.Unlock()
}

func (r *SyncResult) AddFailed(itemID string, err error) {
	r.mu.Lock()
	r.Processed++
	r.Errors = append(r.Errors, SyncError{ItemID: itemID, Message: err.Error()})
	r.mu.Unlock()
}

// AddError records a partial failure for an item that otherwise
// completed, such as a malformed sidecar file.
func (r *SyncResult) AddError(itemID string, err error) {
	r.mu.Lock()
	r.Errors = append(r.Errors, SyncError{ItemID: itemID, Message: err.Error()})
	r.mu.Unlock()
}

func (r *SyncResult) AddCreated() {
	r.mu.Lock()
	r.Created++
	r.mu.Unlock()
}

func (r *SyncResult) AddLinked() {
	r.mu.Lock()
	r.Linked++
	r.mu.Unlock()
}

func (r *SyncResult) AddUntracked() {
	r.mu.Lock()
	r.Untracked++
	r.mu.Unlock()
}

func (r *SyncResult) AddMissing(n int) {
	r.mu.Lock()
	r.Missing += n
	r.mu.Unlock()
}

func (r *SyncResult) AddCollision(w CollisionWarning) {
	r.mu.Lock()
	r.CollisionWarnings = append(r.CollisionWarnings, w)
	r.mu.Unlock()
}

func (r *SyncResult) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}
