package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-image-forensics/pkg/models"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means never
}

// memoryRepository keeps encoded verdicts in a process-local map. Records are
// encoded before the lock is taken and swapped in whole, so a reader sees
// either the old or the new record. With a zero TTL nothing is ever evicted
// and memory grows with the number of distinct identifiers.
type memoryRepository struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryRepository creates an in-process verdict store. ttl <= 0 keeps
// records until the process exits.
func NewMemoryRepository(ttl time.Duration) VerdictRepository {
	return newMemoryRepository(ttl, time.Now)
}

func newMemoryRepository(ttl time.Duration, now func() time.Time) *memoryRepository {
	if ttl < 0 {
		ttl = 0
	}
	return &memoryRepository{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (r *memoryRepository) Save(ctx context.Context, v *models.VerdictRecord) error {
	if v == nil || v.SourceID == "" {
		return ErrInvalidKey
	}
	data, err := encodeVerdict(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}

	entry := memoryEntry{data: data}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}

	r.mu.Lock()
	r.entries[v.SourceID] = entry
	r.mu.Unlock()
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, sourceID string) (*models.VerdictRecord, error) {
	r.mu.RLock()
	entry, ok := r.entries[sourceID]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrVerdictNotFound
	}
	if !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		r.evict(sourceID, entry.expiresAt)
		return nil, ErrVerdictNotFound
	}
	return decodeVerdict(entry.data)
}

// evict removes sourceID unless it was rewritten after the lookup.
func (r *memoryRepository) evict(sourceID string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[sourceID]; ok && cur.expiresAt.Equal(expiresAt) {
		delete(r.entries, sourceID)
	}
}

func (r *memoryRepository) Delete(ctx context.Context, sourceID string) error {
	r.mu.Lock()
	delete(r.entries, sourceID)
	r.mu.Unlock()
	return nil
}

// Len returns the number of stored records, expired ones included.
func (r *memoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *memoryRepository) Close() error {
	return nil
}
