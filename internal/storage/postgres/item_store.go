package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// ItemStore flags catalog item rows as region restricted.
type ItemStore struct {
	db    DB
	table string
}

// NewItemStore wraps db. An empty table selects DefaultItemTable.
func NewItemStore(db DB, table string) (*ItemStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := tableName(table, DefaultItemTable)
	if err != nil {
		return nil, err
	}
	return &ItemStore{db: db, table: t}, nil
}

// MarkRestricted implements catalog.ItemStore. A missing row is inserted as a
// placeholder; xmax = 0 identifies rows created by this statement.
func (s *ItemStore) MarkRestricted(ctx context.Context, r catalog.ItemRestriction) (bool, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	identifier,
	placeholder,
	region_restricted,
	restriction_method,
	restricted_at,
	restriction_run_id,
	updated_at
) VALUES ($1, TRUE, TRUE, $2, $3, $4, $3)
ON CONFLICT (identifier) DO UPDATE
SET region_restricted = TRUE,
	restriction_method = EXCLUDED.restriction_method,
	restricted_at = EXCLUDED.restricted_at,
	restriction_run_id = EXCLUDED.restriction_run_id,
	updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`, s.table)

	var inserted bool
	err := s.db.QueryRow(ctx, query, r.Identifier.String(), string(r.DetectionMethod), r.DetectedAt, r.RunID).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("mark item %s restricted: %w", r.Identifier, err)
	}
	return inserted, nil
}
