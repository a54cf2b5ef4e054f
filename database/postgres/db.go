package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowstate/flowcloud"
	"github.com/jackc/pgx/v5/pgxpool"
)

type columnInfo struct {
	name       string
	dataType   string
	isNullable bool
}

var accessKeysTableSchema = map[string]columnInfo{
	"id":        {"id", "uuid", false},
	"seq":       {"seq", "bigint", false},
	"path":      {"path", "text", false},
	"token":     {"token", "text", false},
	"issued_at": {"issued_at", "timestamp with time zone", false},
}

func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables flowcloud.Tables) error {
	if err := validateTableSchema(ctx, pool, tables.AccessKeys, accessKeysTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tables.AccessKeys, err)
	}
	return nil
}

func validateTableSchema(ctx context.Context, pool *pgxpool.Pool, tableName string, expectedSchema map[string]columnInfo) error {
	if !flowcloud.IsValidTableName(tableName) {
		return fmt.Errorf("validate table schema: invalid table name: %s", tableName)
	}

	exists, err := tableExists(ctx, pool, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", tableName)
	}

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := pool.Query(ctx, query, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: query columns: %w", err)
	}
	defer rows.Close()

	actualColumns := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return fmt.Errorf("validate table schema: scan column: %w", err)
		}
		actualColumns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: nullable == "YES",
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate table schema: rows error: %w", err)
	}

	var problems []string
	for colName, expected := range expectedSchema {
		actual, ok := actualColumns[colName]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("missing column %s", colName))
		case actual.dataType != expected.dataType:
			problems = append(problems, fmt.Sprintf("%s: expected %s, got %s", colName, expected.dataType, actual.dataType))
		case actual.isNullable != expected.isNullable:
			problems = append(problems, fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", colName, expected.isNullable, actual.isNullable))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("table %s schema validation failed: %s", tableName, strings.Join(problems, "; "))
	}

	return nil
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`
	err := pool.QueryRow(ctx, query, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}
