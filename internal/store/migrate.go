package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending schema migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	// The pool owns the connections; the *sql.DB is only a view for goose.
	db := stdlib.OpenDBFromPool(pool)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return wrap("migrate", err)
	}
	return nil
}
