package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"shared-notes-server/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository applies pending migrations and takes ownership of
// pool; Close closes it.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (SharedNoteRepository, error) {
	if err := migrate(ctx, pool); err != nil {
		return nil, err
	}
	return &postgresRepository{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate shared_notes: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*domain.SharedNote, error) {
	var (
		note                 domain.SharedNote
		createdAt, updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, content, created_at, updated_at FROM shared_notes WHERE id = $1`, id,
	).Scan(&note.ID, &note.Title, &note.Content, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoteNotFound
		}
		return nil, fmt.Errorf("get shared note: %w", err)
	}

	note.CreatedAt = domain.NewTimestamp(createdAt)
	note.UpdatedAt = domain.NewTimestamp(updatedAt)
	return &note, nil
}

func (r *postgresRepository) Put(ctx context.Context, note *domain.SharedNote) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO shared_notes (id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		note.ID, note.Title, note.Content, note.CreatedAt.Time, note.UpdatedAt.Time,
	)
	if err != nil {
		return fmt.Errorf("put shared note: %w", err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM shared_notes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete shared note: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close() error {
	r.pool.Close()
	return nil
}
