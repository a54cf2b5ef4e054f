// Package sqlite implements the access key store using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flowstate/flowcloud"
	"github.com/google/uuid"
)

type keyStore struct {
	db        *sql.DB
	tableName string
}

// NewKeyStore wraps an open, migrated SQLite handle.
func NewKeyStore(db *sql.DB, tables flowcloud.Tables) (flowcloud.KeyStore, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new key store: %w", err)
	}
	return &keyStore{db: db, tableName: tables.AccessKeys}, nil
}

func (s *keyStore) Keys(ctx context.Context, path string) ([]flowcloud.AccessKey, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT token, issued_at FROM %s WHERE path = ? ORDER BY rowid`, quoteIdentifier(s.tableName))

	rows, err := s.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []flowcloud.AccessKey
	for rows.Next() {
		var k flowcloud.AccessKey
		var issuedAt string
		if err := rows.Scan(&k.Token, &issuedAt); err != nil {
			return nil, fmt.Errorf("keys: scan: %w", err)
		}

		k.IssuedAt, err = time.Parse(time.RFC3339Nano, issuedAt)
		if err != nil {
			return nil, fmt.Errorf("keys: parse issued_at: %w", err)
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys: rows: %w", err)
	}

	return keys, nil
}

func (s *keyStore) Append(ctx context.Context, path string, key flowcloud.AccessKey) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, path, token, issued_at) VALUES (?, ?, ?, ?)`, quoteIdentifier(s.tableName))

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), path, key.Token, key.IssuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	return nil
}
