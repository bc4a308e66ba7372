package entity

import (
	"context"
	"encoding/json"
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

const entityColumns = `
	id, entity_type, short_code, name, client_name,
	domains, contact_emails, aliases, fields, created_at, updated_at
`

// GetByID retrieves an entity by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`

	q := db.QuerierFromCtx(ctx, r.pool)
	row := q.QueryRow(ctx, query, id)

	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entity %s: %w", id, soerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting entity: %w", err)
	}
	return e, nil
}

// ListAll returns every entity in the catalog, ordered for deterministic
// matcher runs.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY entity_type, short_code, id`

	q := db.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		entities = append(entities, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	return entities, nil
}

// GetFieldValue reads the live canonical value of a single field.
func (r *PostgresRepository) GetFieldValue(ctx context.Context, id uuid.UUID, field string) (string, error) {
	query := `SELECT fields FROM entities WHERE id = $1`

	q := db.QuerierFromCtx(ctx, r.pool)

	var fieldsJSON []byte
	err := q.QueryRow(ctx, query, id).Scan(&fieldsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("entity %s: %w", id, soerrors.ErrNotFound)
		}
		return "", fmt.Errorf("getting field value: %w", err)
	}

	fields, err := decodeFields(fieldsJSON)
	if err != nil {
		return "", err
	}

	fv, ok := fields[field]
	if !ok {
		return "", nil
	}
	return fv.String(), nil
}

// UpdateField writes a new canonical value for one field. The value must
// already have passed ParseField for the entity's schema.
func (r *PostgresRepository) UpdateField(ctx context.Context, id uuid.UUID, field, value string) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	fv, err := ParseField(e.Type, field, value)
	if err != nil {
		return err
	}

	if e.Fields == nil {
		e.Fields = make(map[string]FieldValue)
	}
	e.Fields[field] = fv

	fieldsJSON, err := json.Marshal(encodeFields(e.Fields))
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	query := `
		UPDATE entities
		SET fields = $2, updated_at = NOW()
		WHERE id = $1
	`

	q := db.QuerierFromCtx(ctx, r.pool)
	tag, err := q.Exec(ctx, query, id, fieldsJSON)
	if err != nil {
		return fmt.Errorf("updating entity field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", id, soerrors.ErrNotFound)
	}

	return nil
}

// Create inserts a new entity. Used by import tooling and tests.
func (r *PostgresRepository) Create(ctx context.Context, e *Entity) error {
	if !e.Type.IsValid() {
		return fmt.Errorf("entity type %q: %w", e.Type, soerrors.ErrValidation)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	fieldsJSON, err := json.Marshal(encodeFields(e.Fields))
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	query := `
		INSERT INTO entities (
			id, entity_type, short_code, name, client_name,
			domains, contact_emails, aliases, fields
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	// short_code and client_name are NOT NULL with an empty-string default;
	// contacts have neither, so blanks go in as-is. The partial unique index
	// only covers non-empty short codes.
	q := db.QuerierFromCtx(ctx, r.pool)
	err = q.QueryRow(ctx, query,
		e.ID,
		string(e.Type),
		e.ShortCode,
		e.Name,
		e.ClientName,
		e.Domains,
		e.ContactEmails,
		e.Aliases,
		fieldsJSON,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entity short code %q: %w", e.ShortCode, soerrors.ErrAlreadyExists)
		}
		return fmt.Errorf("creating entity: %w", err)
	}

	return nil
}

// wireField is the JSONB shape for one typed field value.
type wireField struct {
	Kind   string   `json:"kind"`
	Text   string   `json:"text,omitempty"`
	Number *float64 `json:"number,omitempty"`
}

func encodeFields(fields map[string]FieldValue) map[string]wireField {
	out := make(map[string]wireField, len(fields))
	for name, fv := range fields {
		wf := wireField{Kind: string(fv.Kind)}
		if fv.Kind == FieldKindNumber {
			n := fv.Number
			wf.Number = &n
		} else {
			wf.Text = fv.Text
		}
		out[name] = wf
	}
	return out
}

func decodeFields(raw []byte) (map[string]FieldValue, error) {
	if len(raw) == 0 {
		return map[string]FieldValue{}, nil
	}

	var wire map[string]wireField
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parsing entity fields: %w", err)
	}

	fields := make(map[string]FieldValue, len(wire))
	for name, wf := range wire {
		fv := FieldValue{Kind: FieldKind(wf.Kind)}
		if fv.Kind == FieldKindNumber {
			if wf.Number != nil {
				fv.Number = *wf.Number
			}
			// The wire shape stores only the numeric value; the canonical
			// text is derived, so rebuild it or String() goes empty.
			fv.Text = canonicalNumber(fv.Number)
		} else {
			fv.Text = wf.Text
		}
		fields[name] = fv
	}
	return fields, nil
}

func scanEntity(row pgx.Row) (*Entity, error) {
	var e Entity
	var entityType string
	var fieldsJSON []byte
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&e.ID,
		&entityType,
		&e.ShortCode,
		&e.Name,
		&e.ClientName,
		&e.Domains,
		&e.ContactEmails,
		&e.Aliases,
		&fieldsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Type = Type(entityType)
	e.CreatedAt = createdAt
	e.UpdatedAt = updatedAt

	e.Fields, err = decodeFields(fieldsJSON)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
