package identity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"canonsync/internal/domain"
)

// Domain prefix for content-addressed workflow identity. The version
// suffix leaves room for algorithm migration.
const digestDomain = "canonsync/workflow/v1"

// DigestStore persists first-seen payloads per fingerprint so the
// collision registry survives restarts.
type DigestStore interface {
	Save(ctx context.Context, hash string, payload []byte) error
	All(ctx context.Context) (map[string][]byte, error)
}

// defaultDigest computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents boundary
// ambiguity between domain and data.
func defaultDigest(data []byte) string {
	h := sha256.New()
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprinter computes deterministic content fingerprints and detects
// true digest collisions via its registry of first-seen payloads. Safe
// for concurrent use within a sync run.
type Fingerprinter struct {
	mu    sync.Mutex
	seen  map[string][]byte
	store DigestStore

	// digest is swapped out in tests to engineer collisions.
	digest func([]byte) string
}

// NewFingerprinter returns a Fingerprinter backed by store. A nil store
// keeps the registry process-local.
func NewFingerprinter(store DigestStore) *Fingerprinter {
	return NewFingerprinterWithDigest(store, defaultDigest)
}

// NewFingerprinterWithDigest substitutes the digest function. Collision
// handling is unreachable with a real hash, so tests inject a digest that
// collides on demand.
func NewFingerprinterWithDigest(store DigestStore, digest func([]byte) string) *Fingerprinter {
	return &Fingerprinter{
		seen:   make(map[string][]byte),
		store:  store,
		digest: digest,
	}
}

// Rebuild loads all persisted digests into the in-memory registry. Must
// run before the first sync of a process lifetime; otherwise collisions
// against pre-restart content go undetected.
func (f *Fingerprinter) Rebuild(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	entries, err := f.store.All(ctx)
	if err != nil {
		return fmt.Errorf("rebuild collision registry: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, payload := range entries {
		f.seen[hash] = payload
	}
	return nil
}

// Fingerprint normalizes nothing itself: it expects an already-normalized
// definition, serializes it canonically and returns its digest.
//
// If the digest collides with a different payload and a canonical ID is
// available, a salted fallback hash keeps the two identities distinct and
// the returned warning is marked resolved. Without a canonical ID the
// colliding digest is returned as-is with an unresolved warning; callers
// must not treat two workflows sharing it as identical.
func (f *Fingerprinter) Fingerprint(ctx context.Context, def map[string]any, canonicalID *uuid.UUID) (string, *domain.CollisionWarning, error) {
	payload, err := MarshalCanonical(def)
	if err != nil {
		return "", nil, fmt.Errorf("fingerprint: %w", err)
	}

	hash := f.digest(payload)

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.seen[hash]
	if !ok {
		f.register(ctx, hash, payload)
		return hash, nil, nil
	}
	if bytes.Equal(existing, payload) {
		// Expected re-hash of the same content.
		return hash, nil, nil
	}

	if canonicalID == nil {
		log.Printf("Fingerprinter: unresolvable collision on %s (no canonical id)", hash)
		return hash, &domain.CollisionWarning{ContentHash: hash, Resolved: false}, nil
	}

	fallback := f.digest(saltedPayload(payload, *canonicalID))
	if prev, ok := f.seen[fallback]; !ok || !bytes.Equal(prev, payload) {
		f.register(ctx, fallback, payload)
	}
	log.Printf("Fingerprinter: collision on %s resolved to %s for canonical %s", hash, fallback, canonicalID)
	return fallback, &domain.CollisionWarning{CanonicalID: canonicalID, ContentHash: fallback, Resolved: true}, nil
}

// register records a first-seen payload and best-effort persists it. A
// persistence failure degrades collision detection after a restart but
// must not fail the item being hashed.
func (f *Fingerprinter) register(ctx context.Context, hash string, payload []byte) {
	f.seen[hash] = payload
	if f.store == nil {
		return
	}
	if err := f.store.Save(ctx, hash, payload); err != nil {
		log.Printf("Fingerprinter: failed to persist digest %s: %v", hash, err)
	}
}

func saltedPayload(payload []byte, canonicalID uuid.UUID) []byte {
	salted := make([]byte, 0, len(payload)+1+36)
	salted = append(salted, payload...)
	salted = append(salted, 0x00)
	salted = append(salted, []byte(canonicalID.String())...)
	return salted
}
