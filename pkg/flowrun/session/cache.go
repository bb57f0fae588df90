package session

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/flowrun/flowrun/pkg/flowrun/observability"
)

// lockStripes is the size of the per-key mutex table.
const lockStripes = 64

// Builder constructs a session entry on cache miss.
type Builder func(ctx context.Context) (*Entry, error)

// Service is the concurrency-safe front of a session Store.
//
// For any one key, at most one graph construction runs at a time: concurrent
// LoadSession calls for the same key coalesce onto a single Builder
// invocation and all receive its result. Writes for a key serialize against
// loads through a striped lock table.
type Service struct {
	store   Store
	group   singleflight.Group
	locks   [lockStripes]sync.Mutex
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables cache hit/miss metrics.
func WithMetrics(m observability.MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService wraps a store with per-key construction coalescing.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSession returns the cached entry for a key, constructing and caching
// it via build on miss. A miss with a nil build returns (nil, nil): the
// caller had no payload to construct from, which is a valid empty outcome.
// Store errors other than ErrNotFound propagate unmodified; the entry is
// not cached when build fails.
func (s *Service) LoadSession(ctx context.Context, key string, build Builder) (*Entry, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		lock := s.lockFor(key)
		lock.Lock()
		defer lock.Unlock()

		e, err := s.store.Get(ctx, key)
		if err == nil {
			observability.LogCacheHit(s.logger, key)
			s.metrics.RecordCacheLookup(ctx, true)
			return e, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		observability.LogCacheMiss(s.logger, key)
		s.metrics.RecordCacheLookup(ctx, false)

		if build == nil {
			return (*Entry)(nil), nil
		}
		built, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.store.Set(ctx, key, built); err != nil {
			return nil, err
		}
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// UpdateSession replaces the cached entry for a key.
func (s *Service) UpdateSession(ctx context.Context, key string, e *Entry) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.store.Set(ctx, key, e)
}

// ClearSession removes the cached entry for a key.
// The next LoadSession for the key rebuilds from scratch.
func (s *Service) ClearSession(ctx context.Context, key string) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.store.Delete(ctx, key)
}

// Close closes the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}
