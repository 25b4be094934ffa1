package document

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultTitle is applied at creation when no title (or a blank one) is given.
	DefaultTitle = "Untitled Document"
	// NewDocumentID is the sentinel id used by clients editing a document that has not been created yet.
	NewDocumentID = "new"
	// CurrentSchemaVersion is stamped on every stored record.
	CurrentSchemaVersion = 1
)

var (
	// ErrNotFound is returned when an operation references an unknown document id.
	ErrNotFound = errors.New("document not found")
	// ErrStoreUnavailable wraps backend failures (connection refused, timeouts, decode errors).
	ErrStoreUnavailable = errors.New("document store unavailable")
)

// Document is the persisted title/content record. Only the document store is
// authoritative for content; room state never is.
type Document struct {
	ID            string    `json:"id" bson:"_id"`
	Title         string    `json:"title" bson:"title"`
	Content       string    `json:"content" bson:"content"`
	SchemaVersion int       `json:"-" bson:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a copy that can be handed out without sharing the stored record.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// NormalizeTitle returns DefaultTitle for absent or blank titles.
func NormalizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return DefaultTitle
	}
	return title
}

// IsNewID reports whether id refers to a document that does not exist yet.
func IsNewID(id string) bool {
	return id == "" || id == NewDocumentID
}
