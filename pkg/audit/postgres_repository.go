package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marloweandco/studio-ops/pkg/db"
)

// PostgresRepository implements the Repository interface using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Record appends one change record.
func (r *PostgresRepository) Record(ctx context.Context, entityID uuid.UUID, field, oldValue, newValue, actor, source string) error {
	rec := Record{
		ID:       uuid.New(),
		EntityID: entityID,
		Field:    field,
		OldValue: oldValue,
		NewValue: newValue,
		Actor:    actor,
		Source:   source,
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO audit_records (id, entity_id, field, old_value, new_value, actor, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, query,
		rec.ID, rec.EntityID, rec.Field, rec.OldValue, rec.NewValue, rec.Actor, rec.Source,
	); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}

	return nil
}

// History returns an entity's records matching the filter, oldest first.
// The seq tiebreak keeps ordering total when records share a timestamp.
func (r *PostgresRepository) History(ctx context.Context, entityID uuid.UUID, filter Filter) ([]Record, error) {
	query := `
		SELECT id, entity_id, field, old_value, new_value, actor, source, recorded_at
		FROM audit_records
		WHERE entity_id = $1
	`
	args := []any{entityID}
	argNum := 2

	if filter.Field != "" {
		query += fmt.Sprintf(" AND field = $%d", argNum)
		args = append(args, filter.Field)
		argNum++
	}
	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argNum)
		args = append(args, filter.Actor)
		argNum++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND recorded_at >= $%d", argNum)
		args = append(args, filter.Since)
		argNum++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND recorded_at < $%d", argNum)
		args = append(args, filter.Until)
		argNum++
	}

	query += " ORDER BY recorded_at, seq"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	q := db.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.EntityID,
		&rec.Field,
		&rec.OldValue,
		&rec.NewValue,
		&rec.Actor,
		&rec.Source,
		&rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
