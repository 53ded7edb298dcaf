package core

import (
	"context"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var _ service.BrowseService = &browseService{}

type browseService struct {
	databaseStorage service.DatabaseStorage
}

func (s *browseService) ListDatabases(ctx context.Context) ([]*service.DatabaseInfo, error) {
	const op errs.Op = "browseService.ListDatabases"

	dbs, err := s.databaseStorage.ListDatabases(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return dbs, nil
}

func (s *browseService) GetDatabase(ctx context.Context, name string) (*service.DatabaseTables, error) {
	const op errs.Op = "browseService.GetDatabase"

	tables, err := s.databaseStorage.ListTables(ctx, name)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return &service.DatabaseTables{
		Database: name,
		Tables:   tables,
	}, nil
}

// GetTable returns a page of rows, a size of zero means the default page size.
func (s *browseService) GetTable(ctx context.Context, database, table string, size, offset int) (*service.TablePage, error) {
	const op errs.Op = "browseService.GetTable"

	if size < 0 || size > maxPageSize {
		return nil, errs.E(errs.InvalidRequest, op, errs.Parameter("_size"), errs.Str("_size must be between 0 and 1000"))
	}

	if offset < 0 {
		return nil, errs.E(errs.InvalidRequest, op, errs.Parameter("_offset"), errs.Str("_offset must not be negative"))
	}

	if size == 0 {
		size = defaultPageSize
	}

	page, err := s.databaseStorage.GetRows(ctx, database, table, size, offset)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return page, nil
}

func NewBrowseService(databaseStorage service.DatabaseStorage) *browseService {
	return &browseService{
		databaseStorage: databaseStorage,
	}
}
