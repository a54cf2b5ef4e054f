package postgres

import (
	"context"
	"fmt"

	"github.com/flowstate/flowcloud"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func Migrate(ctx context.Context, pool *pgxpool.Pool, tables flowcloud.Tables) error {
	if err := createAccessKeysTable(ctx, pool, tables.AccessKeys); err != nil {
		return fmt.Errorf("migrate up %s: %w", tables.AccessKeys, err)
	}
	return nil
}

func DropTables(ctx context.Context, pool *pgxpool.Pool, tables flowcloud.Tables) error {
	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{tables.AccessKeys}.Sanitize())
	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("migrate down %s: %w", tables.AccessKeys, err)
	}
	return nil
}

func createAccessKeysTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	indexPath := pgx.Identifier{fmt.Sprintf("idx_%s_path", tableName)}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq BIGINT GENERATED ALWAYS AS IDENTITY,
			path TEXT NOT NULL,
			token TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (path, token)
		);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (path, seq);
	`,
		quotedTable,
		indexPath, quotedTable,
	)

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create access keys table: %w", err)
	}
	return nil
}
