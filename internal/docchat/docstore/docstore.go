// Package docstore persists uploaded document text.
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/kart-io/docchat/pkg/errors"
	"github.com/kart-io/docchat/pkg/id"
)

// Document is an uploaded document with its extracted text.
type Document struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	UserID    string    `gorm:"index;size:64;not null" json:"user_id"`
	Filename  string    `gorm:"size:255;not null" json:"filename"`
	Content   string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentInfo is the listing view of a document, without the content body.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides document persistence backed by SQLite.
type Store struct {
	db  *gorm.DB
	ids id.Generator
}

// New opens (or creates) the SQLite database at path and migrates the schema.
func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &Store{db: db, ids: id.NewULIDGenerator()}, nil
}

// Save stores a document and returns it with its generated ID.
func (s *Store) Save(ctx context.Context, userID, filename, content string) (*Document, error) {
	doc := &Document{
		ID:       s.ids.Generate(),
		UserID:   userID,
		Filename: filename,
		Content:  content,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return doc, nil
}

// ListByUser returns a user's documents, newest first, without content bodies.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]DocumentInfo, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	infos := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		infos[i] = DocumentInfo{
			ID:        d.ID,
			Filename:  d.Filename,
			Size:      len(d.Content),
			CreatedAt: d.CreatedAt,
		}
	}
	return infos, nil
}

// ContentForUser concatenates all of a user's document text, oldest first,
// newline-joined. This is what seeds a chat session. A user without
// documents gets the empty string, not an error: such sessions are valid
// and answer with the no-context fallback.
func (s *Store) ContentForUser(ctx context.Context, userID string) (string, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return "", errors.ErrDatabase.WithCause(err)
	}

	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n"), nil
}
