package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/google/uuid"
)

// MemoryRepo is an in-memory repository used when no MongoDB URI is configured
// and in unit tests. A single mutex makes every write atomic per record.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), now: time.Now}
}

// NewMemoryRepoWithClock is NewMemoryRepo with an injectable clock.
func NewMemoryRepoWithClock(now func() time.Time) *MemoryRepo {
	r := NewMemoryRepo()
	r.now = now
	return r
}

func (m *MemoryRepo) Create(ctx context.Context, title, content string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	d := &document.Document{
		ID:            uuid.NewString(),
		Title:         document.NormalizeTitle(title),
		Content:       content,
		SchemaVersion: document.CurrentSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.store[d.ID] = d
	return d.Clone(), nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) UpdateContent(ctx context.Context, id, content string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	now := m.now().UTC()
	if now.Before(d.UpdatedAt) {
		now = d.UpdatedAt
	}
	d.Content = content
	d.UpdatedAt = now
	return d.Clone(), nil
}

func (m *MemoryRepo) List(ctx context.Context) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		out = append(out, d.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
