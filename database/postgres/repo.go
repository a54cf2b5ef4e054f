// Package postgres implements the access key store using PostgreSQL
package postgres

import (
	"context"
	"fmt"

	"github.com/flowstate/flowcloud"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type keyStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewKeyStore wraps a pool whose schema has been migrated.
func NewKeyStore(pool *pgxpool.Pool, tables flowcloud.Tables) (flowcloud.KeyStore, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new key store: %w", err)
	}
	return &keyStore{pool: pool, tableName: tables.AccessKeys}, nil
}

func (s *keyStore) Keys(ctx context.Context, path string) ([]flowcloud.AccessKey, error) {
	query := fmt.Sprintf(`
		SELECT token, issued_at
		FROM %s
		WHERE path = $1
		ORDER BY seq
	`, pgx.Identifier{s.tableName}.Sanitize())

	rows, err := s.pool.Query(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}

	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flowcloud.AccessKey, error) {
		var k flowcloud.AccessKey
		err := row.Scan(&k.Token, &k.IssuedAt)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}

	return keys, nil
}

func (s *keyStore) Append(ctx context.Context, path string, key flowcloud.AccessKey) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (path, token, issued_at)
		VALUES ($1, $2, $3)
	`, pgx.Identifier{s.tableName}.Sanitize())

	if _, err := s.pool.Exec(ctx, query, path, key.Token, key.IssuedAt.UTC()); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	return nil
}
