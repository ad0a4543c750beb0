package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
)

type logger interface {
	Warn(context.Context, string, ...slog.Attr)
}

type Options struct {
	Address  string `validate:"required,hostname_port"`
	Username string `validate:"required"`
	Password string
	Database string `validate:"required"`

	// RetryAttempts counts pings, not retries; 1 means no retry.
	RetryAttempts uint          `validate:"min=1,max=20"`
	RetryDelay    time.Duration
	Logger        logger
}

func NewPGX(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("validate options for pgx: %v", err)
	}

	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 300 * time.Millisecond
	}

	ds := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(opts.Username, opts.Password),
		Host:   opts.Address,
		Path:   opts.Database,
	}

	pool, err := pgxpool.New(ctx, ds.String())
	if err != nil {
		return nil, fmt.Errorf("open new pgx pool: %v", err)
	}

	if err := retry.Do(
		func() error { return pool.Ping(ctx) },
		retry.Context(ctx),
		retry.Delay(opts.RetryDelay),
		retry.Attempts(opts.RetryAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			opts.Logger.Warn(
				ctx,
				"failed ping to database",
				slog.Any("err", err),
				slog.Uint64("attempt", uint64(attempt)),
			)
		}),
	); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping to database: %w", err)
	}

	return pool, nil
}

type noopLogger struct{}

func (noopLogger) Warn(context.Context, string, ...slog.Attr) {}
