package media

import (
	"context"
	"sort"
	"sync"
	"time"

	"pixelbot/internal/domain"
)

// MemoryRegistry is an in-process domain.ImageRegistry. Records are kept in
// creation order so expiry and overflow eviction only ever look at the front.
type MemoryRegistry struct {
	mu      sync.Mutex
	records []domain.ImageRecord // sorted by CreatedAt
	index   map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{index: make(map[string]struct{})}
}

func (r *MemoryRegistry) Add(_ context.Context, rec domain.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[rec.Filename]; ok {
		r.removeLocked(rec.Filename)
	}
	// Appends are the common case; out-of-order timestamps are placed by search.
	i := sort.Search(len(r.records), func(i int) bool {
		return r.records[i].CreatedAt.After(rec.CreatedAt)
	})
	r.records = append(r.records, domain.ImageRecord{})
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = rec
	r.index[rec.Filename] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(filename)
	return nil
}

func (r *MemoryRegistry) removeLocked(filename string) {
	if _, ok := r.index[filename]; !ok {
		return
	}
	delete(r.index, filename)
	for i := range r.records {
		if r.records[i].Filename == filename {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return
		}
	}
}

func (r *MemoryRegistry) Expired(_ context.Context, before time.Time) ([]domain.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := sort.Search(len(r.records), func(i int) bool {
		return !r.records[i].CreatedAt.Before(before)
	})
	out := make([]domain.ImageRecord, n)
	copy(out, r.records[:n])
	return out, nil
}

func (r *MemoryRegistry) Oldest(_ context.Context, n int) ([]domain.ImageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.records) {
		n = len(r.records)
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]domain.ImageRecord, n)
	copy(out, r.records[:n])
	return out, nil
}

func (r *MemoryRegistry) Len(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

func (r *MemoryRegistry) Close() error { return nil }
