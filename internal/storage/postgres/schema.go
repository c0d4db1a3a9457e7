package postgres

import (
	"context"
	"fmt"
)

// Default table names.
const (
	DefaultRestrictionTable = "restriction_records"
	DefaultItemTable        = "catalog_items"
)

// EnsureSchema creates the restriction and item tables when missing.
func EnsureSchema(ctx context.Context, db DB, restrictionTable, itemTable string) error {
	rt, err := tableName(restrictionTable, DefaultRestrictionTable)
	if err != nil {
		return err
	}
	it, err := tableName(itemTable, DefaultItemTable)
	if err != nil {
		return err
	}
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identifier        TEXT PRIMARY KEY,
	detection_method  TEXT NOT NULL,
	first_detected_at TIMESTAMPTZ NOT NULL,
	last_attempt_at   TIMESTAMPTZ NOT NULL,
	attempt_count     INTEGER NOT NULL DEFAULT 1,
	error_details     JSONB NOT NULL DEFAULT '{}'::jsonb
)`, rt),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identifier         TEXT PRIMARY KEY,
	placeholder        BOOLEAN NOT NULL DEFAULT FALSE,
	region_restricted  BOOLEAN NOT NULL DEFAULT FALSE,
	restriction_method TEXT,
	restricted_at      TIMESTAMPTZ,
	restriction_run_id TEXT,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`, it),
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
