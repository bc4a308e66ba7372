package pattern

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marloweandco/studio-ops/pkg/db"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// PostgresRepository implements the Repository interface using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const patternColumns = `
	id, entity_id, kind, expression, weight, state,
	times_applied, times_confirmed, created_at, updated_at
`

// GetByID retrieves a pattern by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE id = $1`

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, id)

	p, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pattern %s: %w", id, soerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting pattern: %w", err)
	}
	return p, nil
}

// ListByState lists patterns in one lifecycle state, in creation order.
func (r *PostgresRepository) ListByState(ctx context.Context, state State) ([]Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE state = $1 ORDER BY created_at, id`

	q := db.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pattern row: %w", err)
		}
		patterns = append(patterns, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patterns: %w", err)
	}

	return patterns, nil
}

// Create inserts a validated pattern.
func (r *PostgresRepository) Create(ctx context.Context, p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO patterns (
			id, entity_id, kind, expression, weight, state,
			times_applied, times_confirmed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	err := q.QueryRow(ctx, query,
		p.ID,
		p.EntityID,
		string(p.Kind),
		p.Expression,
		p.Weight,
		string(p.State),
		p.TimesApplied,
		p.TimesConfirmed,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating pattern: %w", err)
	}

	return nil
}

// UpdateWeight sets a pattern's weight and bumps the counters. The SELECT
// FOR UPDATE pins the row so two learner runs cannot interleave their
// read-modify-write on the same pattern.
func (r *PostgresRepository) UpdateWeight(ctx context.Context, id uuid.UUID, weight float64, appliedDelta, confirmedDelta int) error {
	q := db.QuerierFromCtx(ctx, r.pool)

	var current float64
	err := q.QueryRow(ctx, `SELECT weight FROM patterns WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("pattern %s: %w", id, soerrors.ErrNotFound)
		}
		return fmt.Errorf("locking pattern: %w", err)
	}

	query := `
		UPDATE patterns
		SET weight = $2,
			times_applied = times_applied + $3,
			times_confirmed = times_confirmed + $4,
			updated_at = NOW()
		WHERE id = $1
	`

	_, err = q.Exec(ctx, query, id, weight, appliedDelta, confirmedDelta)
	if err != nil {
		return fmt.Errorf("updating pattern weight: %w", err)
	}

	return nil
}

// SetState moves a pattern between lifecycle states.
func (r *PostgresRepository) SetState(ctx context.Context, id uuid.UUID, state State) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: unknown pattern state %q", soerrors.ErrValidation, state)
	}

	query := `
		UPDATE patterns
		SET state = $2, updated_at = NOW()
		WHERE id = $1
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	tag, err := q.Exec(ctx, query, id, string(state))
	if err != nil {
		return fmt.Errorf("updating pattern state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pattern %s: %w", id, soerrors.ErrNotFound)
	}

	return nil
}

func scanPattern(row pgx.Row) (*Pattern, error) {
	var p Pattern
	var kind, state string

	err := row.Scan(
		&p.ID,
		&p.EntityID,
		&kind,
		&p.Expression,
		&p.Weight,
		&state,
		&p.TimesApplied,
		&p.TimesConfirmed,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Kind = Kind(kind)
	p.State = State(state)
	return &p, nil
}
