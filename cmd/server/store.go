package main

import (
	"context"
	"fmt"
	"time"

	"shared-notes-server/internal/config"
	"shared-notes-server/internal/repository"
	"shared-notes-server/pkg/database"
	"shared-notes-server/pkg/logger/slogx"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
)

// openStore opens the backend named by cfg.Store.Driver. The caller closes
// the returned repository.
func openStore(ctx context.Context, cfg *config.Config) (repository.SharedNoteRepository, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return repository.NewMemoryRepository(), nil

	case config.StoreSQLite:
		return repository.OpenSQLiteRepository(ctx, cfg.Store.SQLitePath)

	case config.StoreCouchDB:
		client, err := kivik.New("couch", cfg.Database.CouchURL())
		if err != nil {
			return nil, fmt.Errorf("connect to CouchDB: %w", err)
		}
		repo, err := repository.NewCouchDBRepository(ctx, client, cfg.Database.Name)
		if err != nil {
			client.Close()
			return nil, err
		}
		return repo, nil

	case config.StorePostgres:
		pool, err := database.NewPGX(ctx, database.Options{
			Address:       cfg.Database.PostgresAddr(),
			Username:      cfg.Database.User,
			Password:      cfg.Database.Password,
			Database:      cfg.Database.Name,
			RetryAttempts: cfg.Database.ConnectAttempts,
			RetryDelay:    time.Second,
			Logger:        slogx.Default(),
		})
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewPostgresRepository(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
