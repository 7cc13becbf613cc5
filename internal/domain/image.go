package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrImageNotFound is returned when a requested image is not on disk.
var ErrImageNotFound = errors.New("image not found")

// ImageInfo describes a stored image.
type ImageInfo struct {
	Filename string
	Size     int64
	ModTime  time.Time
}

// ImageStore persists generated images as individually named files.
type ImageStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Open(filename string) (io.ReadSeekCloser, ImageInfo, error)
	Remove(filename string) error
	Sweep() (int, error)
}

// ImageRecord tracks a generated image awaiting cleanup.
type ImageRecord struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageRegistry is a time-indexed set of generated images.
// Implementations must be safe for concurrent use.
type ImageRegistry interface {
	Add(ctx context.Context, rec ImageRecord) error
	Remove(ctx context.Context, filename string) error
	// Expired returns records created strictly before the given time, oldest first.
	Expired(ctx context.Context, before time.Time) ([]ImageRecord, error)
	// Oldest returns up to n records, oldest first.
	Oldest(ctx context.Context, n int) ([]ImageRecord, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
