package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixelbot/internal/domain"
	"pixelbot/internal/metrics"
)

// Janitor owns the lifecycle of generated images: it registers new ones,
// keeps the registry within MaxFiles, and evicts images older than Retention.
type Janitor struct {
	store     domain.ImageStore
	registry  domain.ImageRegistry
	retention time.Duration
	maxFiles  int
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex // serialises eviction passes
}

type JanitorConfig struct {
	Store     domain.ImageStore
	Registry  domain.ImageRegistry
	Retention time.Duration
	MaxFiles  int
	Interval  time.Duration
	Logger    *slog.Logger
	Now       func() time.Time // for tests; defaults to time.Now
}

func NewJanitor(cfg JanitorConfig) *Janitor {
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Janitor{
		store:     cfg.Store,
		registry:  cfg.Registry,
		retention: cfg.Retention,
		maxFiles:  cfg.MaxFiles,
		interval:  cfg.Interval,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Track registers a freshly written image and evicts the oldest entries if the
// registry grew past MaxFiles.
func (j *Janitor) Track(ctx context.Context, filename string) error {
	if err := j.registry.Add(ctx, domain.ImageRecord{Filename: filename, CreatedAt: j.now()}); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.evictOverflow(ctx); err != nil {
		j.logger.Warn("overflow eviction failed", "err", err)
	}
	j.updateGauge(ctx)
	return nil
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("image janitor started", "interval", j.interval, "retention", j.retention, "max_files", j.maxFiles)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("image janitor stopped")
			return nil
		case <-ticker.C:
			if _, err := j.SweepOnce(ctx); err != nil {
				j.logger.Error("image sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce evicts expired images, then any overflow beyond MaxFiles.
// It returns the number of images evicted.
func (j *Janitor) SweepOnce(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	defer j.updateGauge(ctx)

	expired, err := j.registry.Expired(ctx, j.now().Add(-j.retention))
	if err != nil {
		return 0, fmt.Errorf("list expired images: %w", err)
	}
	evicted := j.evict(ctx, expired, "expired")

	n, err := j.evictOverflow(ctx)
	evicted += n
	if err != nil {
		return evicted, err
	}
	if evicted > 0 {
		j.logger.Info("image sweep complete", "evicted", evicted)
	}
	return evicted, nil
}

// Purge evicts every registered image regardless of age.
func (j *Janitor) Purge(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	defer j.updateGauge(ctx)

	n, err := j.registry.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	all, err := j.registry.Oldest(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	return j.evict(ctx, all, "purge"), nil
}

func (j *Janitor) evictOverflow(ctx context.Context) (int, error) {
	n, err := j.registry.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	if n <= j.maxFiles {
		return 0, nil
	}
	oldest, err := j.registry.Oldest(ctx, n-j.maxFiles)
	if err != nil {
		return 0, fmt.Errorf("list oldest images: %w", err)
	}
	return j.evict(ctx, oldest, "overflow"), nil
}

// evict removes each file and then its record. A record whose file could not
// be removed stays registered and is retried on the next pass.
func (j *Janitor) evict(ctx context.Context, recs []domain.ImageRecord, reason string) int {
	count := 0
	for _, rec := range recs {
		if err := j.store.Remove(rec.Filename); err != nil {
			j.logger.Warn("image eviction failed", "file", rec.Filename, "reason", reason, "err", err)
			continue
		}
		if err := j.registry.Remove(ctx, rec.Filename); err != nil {
			j.logger.Warn("image unregister failed", "file", rec.Filename, "err", err)
			continue
		}
		metrics.ImagesEvicted.Inc()
		j.logger.Debug("image evicted", "file", rec.Filename, "reason", reason, "age", j.now().Sub(rec.CreatedAt))
		count++
	}
	return count
}

func (j *Janitor) updateGauge(ctx context.Context) {
	if n, err := j.registry.Len(ctx); err == nil {
		metrics.ImagesTracked.Set(int64(n))
	}
}
