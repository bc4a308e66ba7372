package link

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marloweandco/studio-ops/pkg/db"
	soerrors "github.com/marloweandco/studio-ops/pkg/errors"
)

// recordingQuerier captures the statement and arguments a repository issues
// so tests can inspect them without a live database. Unused Querier methods
// panic through the embedded nil interface.
type recordingQuerier struct {
	db.Querier
	sql  string
	args []any
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.sql = sql
	q.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestUpsertAutoLeavesManualLinksAlone(t *testing.T) {
	rec := &recordingQuerier{}
	repo := NewPostgresRepository(nil)
	ctx := db.WithQuerier(context.Background(), rec)

	l := validAutoLink()
	require.NoError(t, repo.UpsertAuto(ctx, &l))

	// The conflict action only fires for non-manual rows: a human link for
	// the same (email, entity) pair survives any later automatic re-match
	// with its method, confidence, and evidence intact.
	assert.Contains(t, rec.sql, "ON CONFLICT (email_id, entity_id)")
	assert.Contains(t, rec.sql, "WHERE email_links.method <> 'manual'")

	require.Len(t, rec.args, 6)
	assert.Equal(t, string(MethodHeuristic), rec.args[4])
}

func TestUpsertAutoRejectsManualMethod(t *testing.T) {
	repo := NewPostgresRepository(nil)

	l := validAutoLink()
	l.Method = MethodManual
	l.Confidence = 1.0

	err := repo.UpsertAuto(context.Background(), &l)
	assert.True(t, soerrors.IsValidation(err))
}
