package shortener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/metrics"
	"github.com/abdusco/shortlink/internal/shortcode"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts  = 5
	DefaultClickTimeout = 5 * time.Second
)

// Store persists mappings. Implementations own all atomicity: InsertIfAbsent
// must reject a taken code with internal.ErrCodeCollision and
// IncrementCounter must be a single additive update.
type Store interface {
	InsertIfAbsent(ctx context.Context, code, originalURL string) (*internal.Mapping, error)
	FindByCode(ctx context.Context, code string) (*internal.Mapping, error)
	IncrementCounter(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]*internal.Mapping, error)
}

// Cache holds the immutable part of recently resolved mappings. Click counts
// read from a cache are not meaningful.
type Cache interface {
	Get(ctx context.Context, code string) (*internal.Mapping, bool, error)
	Set(ctx context.Context, mapping *internal.Mapping) error
}

type Option func(*Service)

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClickTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.clickTimeout = d
		}
	}
}

func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

type Service struct {
	store        Store
	codes        shortcode.Generator
	cache        Cache
	metrics      *metrics.Metrics
	maxAttempts  int
	clickTimeout time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	draining bool
	clicks   sync.WaitGroup
}

func NewService(store Store, codes shortcode.Generator, opts ...Option) *Service {
	s := &Service{
		store:        store,
		codes:        codes,
		metrics:      metrics.New(nil),
		maxAttempts:  DefaultMaxAttempts,
		clickTimeout: DefaultClickTimeout,
		log:          logger.With("component", "shortener"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shorten stores originalURL under a freshly generated code. Codes that are
// already taken are regenerated up to the configured number of attempts.
func (s *Service) Shorten(ctx context.Context, originalURL string) (*internal.Mapping, error) {
	if originalURL == "" {
		s.metrics.Shortens.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("original url is required: %w", internal.ErrInvalidInput)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := s.codes.Generate()
		if err != nil {
			s.metrics.Shortens.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		mapping, err := s.store.InsertIfAbsent(ctx, code, originalURL)
		if errors.Is(err, internal.ErrCodeCollision) {
			s.metrics.Collisions.Inc()
			s.log.Debug().Str("code", code).Int("attempt", attempt).Msg("short code collision, retrying")
			continue
		}
		if err != nil {
			s.metrics.Shortens.WithLabelValues("error").Inc()
			return nil, internal.AsStoreError("insert", err)
		}

		s.metrics.Shortens.WithLabelValues("created").Inc()
		s.remember(ctx, mapping)

		return mapping, nil
	}

	s.metrics.Shortens.WithLabelValues("exhausted").Inc()
	s.log.Error().Int("attempts", s.maxAttempts).Msg("no free short code found")

	return nil, fmt.Errorf("gave up after %d attempts: %w", s.maxAttempts, internal.ErrCodeSpaceExhausted)
}

// Resolve returns the destination for code and counts the visit in the
// background. The returned URL does not depend on the counter update.
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	mapping, err := s.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			s.metrics.Resolves.WithLabelValues("not_found").Inc()
		} else {
			s.metrics.Resolves.WithLabelValues("error").Inc()
		}
		return "", err
	}

	s.metrics.Resolves.WithLabelValues("found").Inc()
	s.recordClick(ctx, mapping.ID, code)

	return mapping.OriginalURL, nil
}

// Lookup finds the mapping for code without counting a visit. It may be
// answered from the cache, in which case ClickCount is zero.
func (s *Service) Lookup(ctx context.Context, code string) (*internal.Mapping, error) {
	if code == "" {
		return nil, internal.ErrNotFound
	}

	if s.cache != nil {
		mapping, ok, err := s.cache.Get(ctx, code)
		if err != nil {
			s.log.Warn().Err(err).Str("code", code).Msg("cache lookup failed")
		} else if ok {
			return mapping, nil
		}
	}

	mapping, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, internal.AsStoreError("find", err)
	}

	s.remember(ctx, mapping)

	return mapping, nil
}

// Get always reads from the store so the click count is current.
func (s *Service) Get(ctx context.Context, code string) (*internal.Mapping, error) {
	if code == "" {
		return nil, internal.ErrNotFound
	}

	mapping, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, internal.AsStoreError("find", err)
	}
	return mapping, nil
}

// ListAll returns every mapping, most recently created first.
func (s *Service) ListAll(ctx context.Context) ([]*internal.Mapping, error) {
	mappings, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, internal.AsStoreError("list", err)
	}
	return mappings, nil
}

// Drain waits for in-flight click updates or until ctx is done. Visits
// resolved after Drain has started are redirected but not counted.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.clicks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) recordClick(ctx context.Context, id int64, code string) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		s.metrics.Clicks.WithLabelValues("dropped").Inc()
		s.log.Warn().Int64("id", id).Str("code", code).Msg("shutting down, click not recorded")
		return
	}
	s.clicks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.clicks.Done()

		ctx, cancel := context.WithTimeout(ctx, s.clickTimeout)
		defer cancel()

		if err := s.store.IncrementCounter(ctx, id); err != nil {
			s.metrics.Clicks.WithLabelValues("failed").Inc()
			s.log.Warn().Err(err).Int64("id", id).Str("code", code).Msg("failed to record click")
			return
		}

		s.metrics.Clicks.WithLabelValues("recorded").Inc()
	}()
}

func (s *Service) remember(ctx context.Context, mapping *internal.Mapping) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, mapping); err != nil {
		s.log.Warn().Err(err).Str("code", mapping.ShortCode).Msg("failed to cache mapping")
	}
}
