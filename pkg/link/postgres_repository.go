package link

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

const linkColumns = `
	id, email_id, entity_id, confidence, method, evidence, created_at, updated_at
`

// UpsertAuto writes an automatic link. The partial conflict action leaves
// manual links untouched: an existing manual row wins and the re-match is a
// no-op for that pair.
func (r *PostgresRepository) UpsertAuto(ctx context.Context, l *Link) error {
	if l.Method == MethodManual {
		return fmt.Errorf("%w: manual links go through CreateManual", soerrors.ErrValidation)
	}
	if err := l.Validate(); err != nil {
		return err
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	evidenceJSON, err := encodeEvidence(l.Evidence)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO email_links (id, email_id, entity_id, confidence, method, evidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email_id, entity_id)
		DO UPDATE SET
			confidence = EXCLUDED.confidence,
			method = EXCLUDED.method,
			evidence = EXCLUDED.evidence,
			updated_at = NOW()
		WHERE email_links.method <> 'manual'
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, query, l.ID, l.EmailID, l.EntityID, l.Confidence, string(l.Method), evidenceJSON); err != nil {
		return fmt.Errorf("upserting link: %w", err)
	}

	return nil
}

// CreateManual writes a human-created link for the pair, replacing any
// automatic link that exists.
func (r *PostgresRepository) CreateManual(ctx context.Context, emailID, entityID uuid.UUID) (*Link, error) {
	if emailID == uuid.Nil || entityID == uuid.Nil {
		return nil, fmt.Errorf("%w: link needs both an email and an entity", soerrors.ErrValidation)
	}

	existing, err := r.GetByPair(ctx, emailID, entityID)
	if err != nil && !soerrors.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.Method == MethodManual {
		return nil, fmt.Errorf("manual link for email %s and entity %s: %w",
			emailID, entityID, soerrors.ErrAlreadyExists)
	}

	query := `
		INSERT INTO email_links (id, email_id, entity_id, confidence, method, evidence)
		VALUES ($1, $2, $3, 1.0, 'manual', '[]'::jsonb)
		ON CONFLICT (email_id, entity_id)
		DO UPDATE SET
			confidence = 1.0,
			method = 'manual',
			evidence = '[]'::jsonb,
			updated_at = NOW()
		RETURNING ` + linkColumns

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, uuid.New(), emailID, entityID)

	l, err := scanLink(row)
	if err != nil {
		return nil, fmt.Errorf("creating manual link: %w", err)
	}
	return l, nil
}

// GetByPair returns the current link for (email, entity).
func (r *PostgresRepository) GetByPair(ctx context.Context, emailID, entityID uuid.UUID) (*Link, error) {
	query := `SELECT ` + linkColumns + ` FROM email_links WHERE email_id = $1 AND entity_id = $2`

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, emailID, entityID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("link for email %s and entity %s: %w", emailID, entityID, soerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting link: %w", err)
	}
	return l, nil
}

// ListByEmail returns all links for one email, highest confidence first.
func (r *PostgresRepository) ListByEmail(ctx context.Context, emailID uuid.UUID) ([]Link, error) {
	query := `SELECT ` + linkColumns + ` FROM email_links WHERE email_id = $1 ORDER BY confidence DESC, entity_id`
	return r.list(ctx, query, emailID)
}

// ListByEntity returns all links for one entity, newest first.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]Link, error) {
	query := `SELECT ` + linkColumns + ` FROM email_links WHERE entity_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, query, entityID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]Link, error) {
	q := db.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link row: %w", err)
		}
		links = append(links, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}

	return links, nil
}

func scanLink(row pgx.Row) (*Link, error) {
	var l Link
	var method string
	var evidenceJSON []byte

	err := row.Scan(
		&l.ID,
		&l.EmailID,
		&l.EntityID,
		&l.Confidence,
		&method,
		&evidenceJSON,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Method = Method(method)
	l.Evidence, err = decodeEvidence(evidenceJSON)
	if err != nil {
		return nil, err
	}

	return &l, nil
}
