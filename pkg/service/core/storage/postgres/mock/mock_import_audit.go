package mock

import (
	"context"

	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/postgres"
	"github.com/stretchr/testify/mock"
)

var _ postgres.ImportAuditQueries = &ImportAuditQueriesMock{}

type ImportAuditQueriesMock struct {
	mock.Mock
}

func (m *ImportAuditQueriesMock) CreateImportAudit(ctx context.Context, arg gensql.CreateImportAuditParams) (gensql.ImportAudit, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(gensql.ImportAudit), args.Error(1)
}

func (m *ImportAuditQueriesMock) FinishImportAudit(ctx context.Context, arg gensql.FinishImportAuditParams) error {
	args := m.Called(ctx, arg)
	return args.Error(0)
}

func (m *ImportAuditQueriesMock) GetImportAudits(ctx context.Context, arg gensql.GetImportAuditsParams) ([]gensql.ImportAudit, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]gensql.ImportAudit), args.Error(1)
}

func (m *ImportAuditQueriesMock) GetLatestImportAudit(ctx context.Context, arg gensql.GetLatestImportAuditParams) (gensql.ImportAudit, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(gensql.ImportAudit), args.Error(1)
}
