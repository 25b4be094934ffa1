package repository

import (
	"context"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
)

// Repository is the durable document store. Content updates are whole-buffer
// replacements; there is no partial-field merge.
type Repository interface {
	Create(ctx context.Context, title, content string) (*document.Document, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	UpdateContent(ctx context.Context, id, content string) (*document.Document, error)
	// List returns every document ordered by UpdatedAt descending.
	List(ctx context.Context) ([]*document.Document, error)
	Ping(ctx context.Context) error
}
