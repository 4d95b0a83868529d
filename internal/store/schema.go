package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// migrate applies the schema and records its version in metadata. A
// database written by a newer build is refused.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var versionStr string
	err = tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&versionStr)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(schemaVersion)); err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
		return tx.Commit()
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return fmt.Errorf("parse schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("archive schema version %d is newer than supported %d", version, schemaVersion)
	}
	if version < schemaVersion {
		if _, err := tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE key = 'schema_version'", strconv.Itoa(schemaVersion)); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}

	return tx.Commit()
}
