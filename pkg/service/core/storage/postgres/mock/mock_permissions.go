package mock

import (
	"context"

	"github.com/navikt/nada-socrata/pkg/database"
	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/postgres"
	"github.com/stretchr/testify/mock"
)

var _ postgres.PermissionQueries = &PermissionQueriesMock{}

type PermissionQueriesMock struct {
	mock.Mock
}

func PermissionQueriesWithTxFn(m *PermissionQueriesMock, t database.Transacter, err error) func() (postgres.PermissionQueries, database.Transacter, error) {
	return func() (postgres.PermissionQueries, database.Transacter, error) {
		return m, t, err
	}
}

func (m *PermissionQueriesMock) HasGrant(ctx context.Context, arg gensql.HasGrantParams) (bool, error) {
	args := m.Called(ctx, arg)
	return args.Bool(0), args.Error(1)
}

func (m *PermissionQueriesMock) CreateGrant(ctx context.Context, arg gensql.CreateGrantParams) (gensql.PermissionGrant, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(gensql.PermissionGrant), args.Error(1)
}

func (m *PermissionQueriesMock) DeleteGrant(ctx context.Context, arg gensql.DeleteGrantParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PermissionQueriesMock) GetGrants(ctx context.Context) ([]gensql.PermissionGrant, error) {
	args := m.Called(ctx)
	return args.Get(0).([]gensql.PermissionGrant), args.Error(1)
}
