package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// RestrictionStore persists restriction records. Writes are upserts keyed by
// identifier; first_detected_at is only set on insert.
type RestrictionStore struct {
	db    DB
	table string
}

// NewRestrictionStore wraps db. An empty table selects DefaultRestrictionTable.
func NewRestrictionStore(db DB, table string) (*RestrictionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := tableName(table, DefaultRestrictionTable)
	if err != nil {
		return nil, err
	}
	return &RestrictionStore{db: db, table: t}, nil
}

// Known implements catalog.RestrictionStore.
func (s *RestrictionStore) Known(ctx context.Context, ids []catalog.Identifier) (map[catalog.Identifier]bool, error) {
	out := make(map[catalog.Identifier]bool)
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	query := fmt.Sprintf(`SELECT identifier FROM %s WHERE identifier = ANY($1)`, s.table)
	rows, err := s.db.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("query known restrictions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known restriction: %w", err)
		}
		out[catalog.Identifier(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known restrictions: %w", err)
	}
	return out, nil
}

// Upsert implements catalog.RestrictionStore.
func (s *RestrictionStore) Upsert(ctx context.Context, rec catalog.RestrictionUpsert) (catalog.RestrictionRecord, error) {
	details, err := json.Marshal(rec.ErrorDetails)
	if err != nil {
		return catalog.RestrictionRecord{}, fmt.Errorf("marshal error details: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	identifier,
	detection_method,
	first_detected_at,
	last_attempt_at,
	attempt_count,
	error_details
) VALUES ($1, $2, $3, $3, 1, $4)
ON CONFLICT (identifier) DO UPDATE
SET attempt_count = %[1]s.attempt_count + 1,
	last_attempt_at = EXCLUDED.last_attempt_at,
	error_details = EXCLUDED.error_details
RETURNING identifier, detection_method, first_detected_at, last_attempt_at, attempt_count, error_details`, s.table)

	row := s.db.QueryRow(ctx, query, rec.Identifier.String(), string(rec.DetectionMethod), rec.DetectedAt, details)
	out, err := scanRecord(row)
	if err != nil {
		return catalog.RestrictionRecord{}, fmt.Errorf("upsert restriction %s: %w", rec.Identifier, err)
	}
	return out, nil
}

// Get implements catalog.RestrictionStore.
func (s *RestrictionStore) Get(ctx context.Context, id catalog.Identifier) (catalog.RestrictionRecord, error) {
	query := fmt.Sprintf(`
SELECT identifier, detection_method, first_detected_at, last_attempt_at, attempt_count, error_details
FROM %s WHERE identifier = $1`, s.table)
	out, err := scanRecord(s.db.QueryRow(ctx, query, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.RestrictionRecord{}, catalog.ErrRestrictionNotFound
	}
	if err != nil {
		return catalog.RestrictionRecord{}, fmt.Errorf("get restriction %s: %w", id, err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (catalog.RestrictionRecord, error) {
	var (
		id, method  string
		first, last time.Time
		attempts    int
		detailsRaw  []byte
		rec         catalog.RestrictionRecord
	)
	if err := row.Scan(&id, &method, &first, &last, &attempts, &detailsRaw); err != nil {
		return rec, err
	}
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &rec.ErrorDetails); err != nil {
			return rec, fmt.Errorf("decode error details: %w", err)
		}
	}
	rec.Identifier = catalog.Identifier(id)
	rec.DetectionMethod = catalog.DetectionMethod(method)
	rec.FirstDetectedAt = first.UTC()
	rec.LastAttemptAt = last.UTC()
	rec.AttemptCount = attempts
	return rec, nil
}
