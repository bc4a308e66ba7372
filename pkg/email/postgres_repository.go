package email

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

// GetByID retrieves a message by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Email, error) {
	query := `
		SELECT id, sender, subject, body, received_at, matched_at
		FROM emails
		WHERE id = $1
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, id)

	e, err := scanEmail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("email %s: %w", id, soerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting email: %w", err)
	}
	return e, nil
}

// ListUnprocessed returns messages linking has not handled yet, oldest first.
func (r *PostgresRepository) ListUnprocessed(ctx context.Context, limit int) ([]Email, error) {
	query := `
		SELECT id, sender, subject, body, received_at, matched_at
		FROM emails
		WHERE matched_at IS NULL
		ORDER BY received_at, id
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	q := db.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed emails: %w", err)
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning email row: %w", err)
		}
		emails = append(emails, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emails: %w", err)
	}

	return emails, nil
}

// MarkProcessed stamps the message as handled by linking.
func (r *PostgresRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE emails
		SET matched_at = NOW()
		WHERE id = $1
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	tag, err := q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("marking email processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %s: %w", id, soerrors.ErrNotFound)
	}

	return nil
}

// Create inserts a new message. Used by the ingest command and tests.
func (r *PostgresRepository) Create(ctx context.Context, e *Email) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO emails (id, sender, subject, body, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	_, err := q.Exec(ctx, query, e.ID, e.Sender, e.Subject, e.Body, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("creating email: %w", err)
	}

	return nil
}

func scanEmail(row pgx.Row) (*Email, error) {
	var e Email
	err := row.Scan(
		&e.ID,
		&e.Sender,
		&e.Subject,
		&e.Body,
		&e.ReceivedAt,
		&e.MatchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
