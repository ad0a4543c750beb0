package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"shared-notes-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// putConflictRetries bounds how often Put re-reads _rev when a concurrent
// writer replaced the document between our read and our write.
const putConflictRetries = 5

type couchDBRepository struct {
	client *kivik.Client
	db     *kivik.DB
}

type sharedNoteDoc struct {
	ID        string `json:"_id"`
	Rev       string `json:"_rev,omitempty"`
	DocType   string `json:"doc_type"`
	NoteID    string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewCouchDBRepository creates the database when it does not exist yet.
func NewCouchDBRepository(ctx context.Context, client *kivik.Client, dbName string) (SharedNoteRepository, error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &couchDBRepository{
		client: client,
		db:     client.DB(dbName),
	}, nil
}

func docID(id string) string {
	return fmt.Sprintf("shared_note:%s", id)
}

func (r *couchDBRepository) Get(ctx context.Context, id string) (*domain.SharedNote, error) {
	row := r.db.Get(ctx, docID(id))

	var doc sharedNoteDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, domain.ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to get shared note: %w", err)
	}

	return doc.toDomain()
}

func (r *couchDBRepository) Put(ctx context.Context, note *domain.SharedNote) error {
	doc := sharedNoteDoc{
		ID:        docID(note.ID),
		DocType:   "shared_note",
		NoteID:    note.ID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt.String(),
		UpdatedAt: note.UpdatedAt.String(),
	}

	var err error
	for attempt := 0; attempt < putConflictRetries; attempt++ {
		doc.Rev, err = r.currentRev(ctx, doc.ID)
		if err != nil {
			return err
		}

		_, err = r.db.Put(ctx, doc.ID, doc)
		if err == nil {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return fmt.Errorf("failed to put shared note: %w", err)
		}
	}

	return fmt.Errorf("failed to put shared note after %d conflicts: %w", putConflictRetries, err)
}

func (r *couchDBRepository) Delete(ctx context.Context, id string) error {
	for attempt := 0; attempt < putConflictRetries; attempt++ {
		rev, err := r.currentRev(ctx, docID(id))
		if err != nil {
			return err
		}
		if rev == "" {
			return nil
		}

		_, err = r.db.Delete(ctx, docID(id), rev)
		if err == nil || kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return fmt.Errorf("failed to delete shared note: %w", err)
		}
	}

	return errors.New("failed to delete shared note: too many conflicts")
}

func (r *couchDBRepository) Close() error {
	return r.client.Close()
}

// currentRev returns "" when the document does not exist.
func (r *couchDBRepository) currentRev(ctx context.Context, id string) (string, error) {
	rev, err := r.db.GetRev(ctx, id)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to read shared note revision: %w", err)
	}
	return rev, nil
}

func (d *sharedNoteDoc) toDomain() (*domain.SharedNote, error) {
	createdAt, err := domain.ParseTimestamp(d.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := domain.ParseTimestamp(d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &domain.SharedNote{
		ID:        d.NoteID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
