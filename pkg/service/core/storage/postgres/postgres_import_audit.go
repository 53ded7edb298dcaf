package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
)

type ImportAuditQueries interface {
	CreateImportAudit(ctx context.Context, arg gensql.CreateImportAuditParams) (gensql.ImportAudit, error)
	FinishImportAudit(ctx context.Context, arg gensql.FinishImportAuditParams) error
	GetImportAudits(ctx context.Context, arg gensql.GetImportAuditsParams) ([]gensql.ImportAudit, error)
	GetLatestImportAudit(ctx context.Context, arg gensql.GetLatestImportAuditParams) (gensql.ImportAudit, error)
}

var _ service.ImportAuditStorage = &importAuditStorage{}

type importAuditStorage struct {
	queries ImportAuditQueries
}

func (s *importAuditStorage) CreateImportAudit(ctx context.Context, audit *service.ImportAudit) error {
	const op errs.Op = "importAuditStorage.CreateImportAudit"

	raw, err := s.queries.CreateImportAudit(ctx, gensql.CreateImportAuditParams{
		ID:           audit.ID,
		DatabaseName: audit.DatabaseName,
		TableName:    audit.TableName,
		Domain:       audit.Domain,
		DatasetID:    audit.DatasetID,
		ActorID:      audit.ActorID,
		Metadata:     rawToNullRawMessage(audit.Metadata),
	})
	if err != nil {
		return errs.E(errs.Database, op, err)
	}

	audit.Status = string(raw.Status)
	audit.StartedAt = raw.StartedAt

	return nil
}

func (s *importAuditStorage) FinishImportAudit(ctx context.Context, id uuid.UUID, status string, rowsImported int64, errMessage string) error {
	const op errs.Op = "importAuditStorage.FinishImportAudit"

	err := s.queries.FinishImportAudit(ctx, gensql.FinishImportAuditParams{
		Status:       gensql.ImportStatus(status),
		Error:        stringToNullString(errMessage),
		RowsImported: rowsImported,
		ID:           id,
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("id"))
	}

	return nil
}

func (s *importAuditStorage) ListImportAudits(ctx context.Context, database string, limit int) ([]*service.ImportAudit, error) {
	const op errs.Op = "importAuditStorage.ListImportAudits"

	raw, err := s.queries.GetImportAudits(ctx, gensql.GetImportAuditsParams{
		DatabaseName: database,
		Lim:          int32(limit),
	})
	if err != nil {
		return nil, errs.E(errs.Database, op, err, errs.Parameter("database"))
	}

	audits, err := From(ImportAudits(raw))
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	return audits, nil
}

func (s *importAuditStorage) GetLatestImportAudit(ctx context.Context, database, datasetID string) (*service.ImportAudit, error) {
	const op errs.Op = "importAuditStorage.GetLatestImportAudit"

	raw, err := s.queries.GetLatestImportAudit(ctx, gensql.GetLatestImportAuditParams{
		DatabaseName: database,
		DatasetID:    datasetID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.E(errs.NotExist, op, err, errs.Parameter("datasetID"))
		}

		return nil, errs.E(errs.Database, op, err)
	}

	audit, err := From(ImportAudit(raw))
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	return audit, nil
}

func NewImportAuditStorage(queries ImportAuditQueries) *importAuditStorage {
	return &importAuditStorage{
		queries: queries,
	}
}
