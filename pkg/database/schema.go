package database

import (
	"context"
	"fmt"
	"sort"

	dbsql "github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/database/sql"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/logging"
)

// ApplySchema executes the embedded schema files in lexical order. All DDL is
// idempotent (IF NOT EXISTS), so re-running on startup is safe.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	entries, err := dbsql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := dbsql.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Info("Applied schema file")
	}
	return nil
}
