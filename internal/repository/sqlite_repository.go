package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shared-notes-server/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS shared_notes (
	id         TEXT NOT NULL PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

type sqliteRepository struct {
	db *sql.DB
}

func OpenSQLiteRepository(ctx context.Context, path string) (SharedNoteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	repo, err := NewSQLiteRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteRepository ensures the schema on an already opened handle.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (SharedNoteRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create shared_notes table: %w", err)
	}
	return &sqliteRepository{db: db}, nil
}

func (r *sqliteRepository) Get(ctx context.Context, id string) (*domain.SharedNote, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM shared_notes WHERE id = ?`, id)

	var (
		note                 domain.SharedNote
		createdAt, updatedAt string
	)
	if err := row.Scan(&note.ID, &note.Title, &note.Content, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to get shared note: %w", err)
	}

	var err error
	if note.CreatedAt, err = domain.ParseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if note.UpdatedAt, err = domain.ParseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &note, nil
}

func (r *sqliteRepository) Put(ctx context.Context, note *domain.SharedNote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_notes (id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		note.ID, note.Title, note.Content, note.CreatedAt.String(), note.UpdatedAt.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to put shared note: %w", err)
	}
	return nil
}

func (r *sqliteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shared_notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete shared note: %w", err)
	}
	return nil
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}
