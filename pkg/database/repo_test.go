package database_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/database"
	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type grantQueries interface {
	HasGrant(ctx context.Context, arg gensql.HasGrantParams) (bool, error)
	CreateGrant(ctx context.Context, arg gensql.CreateGrantParams) (gensql.PermissionGrant, error)
}

func newMockRepo(t *testing.T) (*database.Repo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return database.NewFromDB(db), mock
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("alice", "import-socrata").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	q, tx, err := database.WithTx[grantQueries](repo)()
	require.NoError(t, err)

	ok, err := q.HasGrant(ctx, gensql.HasGrantParams{ActorID: "alice", Action: "import-socrata"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxBeginError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	_, _, err := database.WithTx[grantQueries](repo)()
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGrants(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	id := uuid.MustParse("14726b25-face-47c7-ac55-782799362e58")
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("-- name: GetGrants :many")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "action", "granted_by", "created_at"}).
			AddRow(id.String(), "alice", "import-socrata", "root", created))

	got, err := repo.Querier.GetGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []gensql.PermissionGrant{
		{
			ID:        id,
			ActorID:   "alice",
			Action:    "import-socrata",
			GrantedBy: "root",
			CreatedAt: created,
		},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteGrant(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM permission_grants")).
		WithArgs("alice", "import-socrata").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.Querier.DeleteGrant(ctx, gensql.DeleteGrantParams{ActorID: "alice", Action: "import-socrata"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryName(t *testing.T) {
	assert.Equal(t, "GetGrants", database.QueryName("-- name: GetGrants :many\nSELECT 1"))
	assert.Equal(t, "unnamed", database.QueryName("SELECT 1"))
}

func TestQueryHooks(t *testing.T) {
	ctx := context.Background()
	hooks := database.NewQueryHooks()

	query := "-- name: HasGrant :one\nSELECT 1"

	ctx, err := hooks.Before(ctx, query)
	require.NoError(t, err)

	_, err = hooks.After(ctx, query)
	require.NoError(t, err)

	err = hooks.OnError(ctx, errors.New("boom"), query)
	assert.EqualError(t, err, "boom")

	collectors := hooks.Collectors()
	require.Len(t, collectors, 2)
	assert.Equal(t, 1, testutil.CollectAndCount(collectors[0]))
	assert.Equal(t, float64(1), testutil.ToFloat64(collectors[1]))
}
