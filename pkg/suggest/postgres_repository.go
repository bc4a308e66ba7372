package suggest

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const suggestionColumns = `
	id, entity_id, email_id, field, current_value, proposed_value,
	confidence, status, note, resolved_by, resolved_at, created_at, updated_at
`

// GetByID retrieves a suggestion by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, id)

	s, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("suggestion %s: %w", id, soerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting suggestion: %w", err)
	}
	return s, nil
}

// GetPending returns the pending suggestion for (entity, field).
func (r *PostgresRepository) GetPending(ctx context.Context, entityID uuid.UUID, field string) (*Suggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE entity_id = $1 AND field = $2 AND status = 'pending'
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, entityID, field)

	s, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending suggestion for entity %s field %q: %w", entityID, field, soerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting pending suggestion: %w", err)
	}
	return s, nil
}

// ListByStatus lists suggestions in one state, newest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Suggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE status = $1
		ORDER BY created_at DESC, id
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return r.list(ctx, query, string(status))
}

// ListResolvedSince returns suggestions resolved at or after the cutoff,
// oldest resolution first.
func (r *PostgresRepository) ListResolvedSince(ctx context.Context, since time.Time) ([]Suggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE resolved_at IS NOT NULL AND resolved_at >= $1
		ORDER BY resolved_at, id
	`

	return r.list(ctx, query, since)
}

// Create inserts a pending suggestion.
func (r *PostgresRepository) Create(ctx context.Context, s *Suggestion) error {
	if s.Status == "" {
		s.Status = StatusPending
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Status != StatusPending {
		return fmt.Errorf("%w: new suggestions start pending", soerrors.ErrValidation)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO suggestions (
			id, entity_id, email_id, field, current_value, proposed_value,
			confidence, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING created_at, updated_at
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	err := q.QueryRow(ctx, query,
		s.ID,
		s.EntityID,
		s.EmailID,
		s.Field,
		s.CurrentValue,
		s.ProposedValue,
		s.Confidence,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pending suggestion for entity %s field %q: %w",
				s.EntityID, s.Field, soerrors.ErrConflict)
		}
		return fmt.Errorf("creating suggestion: %w", err)
	}

	return nil
}

// MarkStale retires a pending suggestion.
func (r *PostgresRepository) MarkStale(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusStale, "", "")
}

// Resolve moves a pending suggestion to a terminal state.
func (r *PostgresRepository) Resolve(ctx context.Context, id uuid.UUID, status Status, note, resolvedBy string) error {
	if !status.Resolved() {
		return fmt.Errorf("%w: %q is not a terminal suggestion status", soerrors.ErrValidation, status)
	}
	return r.transition(ctx, id, status, note, resolvedBy)
}

// transition flips a pending suggestion into a terminal state. The status
// guard in the WHERE clause makes double-resolution impossible regardless
// of caller interleaving.
func (r *PostgresRepository) transition(ctx context.Context, id uuid.UUID, status Status, note, resolvedBy string) error {
	query := `
		UPDATE suggestions
		SET status = $2,
			note = $3,
			resolved_by = $4,
			resolved_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	// note and resolved_by are NOT NULL with an empty-string default, so
	// blank values are written as-is rather than mapped to SQL NULL.
	tag, err := q.Exec(ctx, query, id, string(status), note, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving suggestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("suggestion %s is not pending: %w", id, soerrors.ErrInvalidState)
	}

	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]Suggestion, error) {
	q := db.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning suggestion row: %w", err)
		}
		suggestions = append(suggestions, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating suggestions: %w", err)
	}

	return suggestions, nil
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var s Suggestion
	var status string

	err := row.Scan(
		&s.ID,
		&s.EntityID,
		&s.EmailID,
		&s.Field,
		&s.CurrentValue,
		&s.ProposedValue,
		&s.Confidence,
		&status,
		&s.Note,
		&s.ResolvedBy,
		&s.ResolvedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = Status(status)

	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
