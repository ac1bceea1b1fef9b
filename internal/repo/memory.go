package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/samber/lo"
)

// MemoryStore keeps mappings in process. It satisfies the same contract as
// MappingsRepo and is meant for tests and throwaway instances.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byCode map[string]*internal.Mapping
	byID   map[int64]*internal.Mapping
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode: make(map[string]*internal.Mapping),
		byID:   make(map[int64]*internal.Mapping),
	}
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, code, originalURL string) (*internal.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[code]; ok {
		return nil, internal.ErrCodeCollision
	}

	s.nextID++
	m := &internal.Mapping{
		ID:          s.nextID,
		ShortCode:   code,
		OriginalURL: originalURL,
		CreatedAt:   time.Now().UTC(),
	}
	s.byCode[code] = m
	s.byID[m.ID] = m

	return clone(m), nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (*internal.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byCode[code]
	if !ok {
		return nil, internal.ErrNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) IncrementCounter(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return internal.ErrNotFound
	}
	now := time.Now().UTC()
	m.ClickCount++
	m.LastClickedAt = &now

	return nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]*internal.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	mappings := lo.MapToSlice(s.byID, func(_ int64, m *internal.Mapping) *internal.Mapping {
		return clone(m)
	})
	s.mu.RUnlock()

	sort.Slice(mappings, func(i, j int) bool {
		a, b := mappings[i], mappings[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return mappings, nil
}

func clone(m *internal.Mapping) *internal.Mapping {
	c := *m
	if m.LastClickedAt != nil {
		t := *m.LastClickedAt
		c.LastClickedAt = &t
	}
	return &c
}
