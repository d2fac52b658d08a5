package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates no object is stored under the name
	ErrNotFound = errors.New("object not found")

	// ErrInvalidName indicates a name that is empty or escapes the store
	ErrInvalidName = errors.New("invalid object name")
)

// ImageStore keeps uploaded source images by file name.
type ImageStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// ReportStore keeps rendered PDF reports. Save returns the report location.
type ReportStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, name string) ([]byte, error)
}

func validateName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}
