package repository

import (
	"context"

	"go-image-forensics/pkg/models"
)

// VerdictRepository stores one verdict per source identifier. A Save for an
// existing identifier replaces the whole record atomically; readers never
// observe a partially written record.
type VerdictRepository interface {
	// Save stores the verdict under v.SourceID
	Save(ctx context.Context, v *models.VerdictRecord) error

	// Get returns a copy of the stored verdict or ErrVerdictNotFound
	Get(ctx context.Context, sourceID string) (*models.VerdictRecord, error)

	// Delete removes the verdict. Deleting a missing key is not an error.
	Delete(ctx context.Context, sourceID string) error

	Close() error
}
