package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotCreated is returned by Autosave for a document that only exists on the client.
var ErrNotCreated = errors.New("document has not been created yet")

// Archiver stores point-in-time copies of explicitly saved content.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, documentID, content string, at time.Time) (string, error)
}

// Service is the persistence controller: it mediates every read and write against
// the document store and owns the create-vs-update routing of explicit saves.
//
// Writes are last-write-wins. No version token is compared, so an autosave that
// completes after a newer explicit save replaces the newer content.
type Service struct {
	repo           repository.Repository
	archive        Archiver
	archiveTimeout time.Duration
}

type Option func(*Service)

// WithArchiver enables snapshot archiving after each successful explicit save.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

func NewService(repo repository.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, archiveTimeout: 5 * time.Second}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(opts ...Option) *Service {
	return NewService(repository.NewMemoryRepo(), opts...)
}

// NewMongoService returns a Service backed by a MongoDB collection.
// Caller is responsible for creating the collection (and client) and passing it in.
func NewMongoService(ctx context.Context, col *mongo.Collection, opts ...Option) (*Service, error) {
	repo := repository.NewMongoRepo(col)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return NewService(repo, opts...), nil
}

func (s *Service) Create(ctx context.Context, title, content string) (*document.Document, error) {
	d, err := s.repo.Create(ctx, title, content)
	metrics.ObserveSave("create", err)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	logger.Infof("document created: id=%s title=%q", d.ID, d.Title)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*document.Document, error) {
	if document.IsNewID(id) {
		return nil, document.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*document.Document, error) {
	return s.repo.List(ctx)
}

// UpdateContent replaces the content of an existing document.
func (s *Service) UpdateContent(ctx context.Context, id, content string) (*document.Document, error) {
	if document.IsNewID(id) {
		return nil, document.ErrNotFound
	}
	d, err := s.repo.UpdateContent(ctx, id, content)
	metrics.ObserveSave("update", err)
	if err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	return d, nil
}

// Autosave persists content after the client's quiescence window. Failures are
// returned for a transient notice and never retried here; the next edit's
// autosave carries fresher content anyway.
func (s *Service) Autosave(ctx context.Context, id, content string) (*document.Document, error) {
	if document.IsNewID(id) {
		return nil, ErrNotCreated
	}
	d, err := s.repo.UpdateContent(ctx, id, content)
	metrics.ObserveSave("autosave", err)
	if err != nil {
		logger.Warnf("autosave failed: id=%s err=%v", id, err)
		return nil, fmt.Errorf("autosave %s: %w", id, err)
	}
	logger.Debugf("autosaved: id=%s bytes=%d", id, len(content))
	return d, nil
}

// ExplicitSave creates the document when id is absent or the "new" sentinel,
// otherwise replaces its content. Title is only applied at creation.
func (s *Service) ExplicitSave(ctx context.Context, id, title, content string) (*document.Document, error) {
	var (
		d   *document.Document
		err error
	)
	if document.IsNewID(id) {
		d, err = s.repo.Create(ctx, title, content)
	} else {
		d, err = s.repo.UpdateContent(ctx, id, content)
	}
	metrics.ObserveSave("explicit", err)
	if err != nil {
		logger.Warnf("explicit save failed: id=%q err=%v", id, err)
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.archiveSnapshot(ctx, d)
	return d, nil
}

func (s *Service) archiveSnapshot(ctx context.Context, d *document.Document) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTimeout)
	defer cancel()
	key, err := s.archive.ArchiveSnapshot(ctx, d.ID, d.Content, d.UpdatedAt)
	if err != nil {
		logger.Warnf("snapshot archive failed: id=%s err=%v", d.ID, err)
		return
	}
	logger.Debugf("snapshot archived: id=%s key=%s", d.ID, key)
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
