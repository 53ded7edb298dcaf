package sqlite

import (
	"context"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
)

var _ service.DatabaseStorage = &databaseStorage{}

type databaseStorage struct {
	dbs *sqlitedb.Registry
}

func (s *databaseStorage) ListDatabases(ctx context.Context) ([]*service.DatabaseInfo, error) {
	const op errs.Op = "databaseStorage.ListDatabases"

	infos := make([]*service.DatabaseInfo, 0, len(s.dbs.Names()))

	for _, db := range s.dbs.All() {
		info, err := databaseInfo(ctx, db)
		if err != nil {
			return nil, errs.E(errs.Database, op, err)
		}

		infos = append(infos, info)
	}

	return infos, nil
}

func (s *databaseStorage) GetDatabase(ctx context.Context, name string) (*service.DatabaseInfo, error) {
	const op errs.Op = "databaseStorage.GetDatabase"

	db, err := getDB(s.dbs, name)
	if err != nil {
		return nil, errs.E(op, err)
	}

	info, err := databaseInfo(ctx, db)
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	return info, nil
}

func (s *databaseStorage) EnableWAL(ctx context.Context, name string) error {
	const op errs.Op = "databaseStorage.EnableWAL"

	db, err := getDB(s.dbs, name)
	if err != nil {
		return errs.E(op, err)
	}

	err = db.EnableWAL(ctx)
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("database"))
	}

	return nil
}

func (s *databaseStorage) ListTables(ctx context.Context, database string) ([]string, error) {
	const op errs.Op = "databaseStorage.ListTables"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return nil, errs.E(op, err)
	}

	tables, err := sqlitedb.Tables(ctx, db.SQL())
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	return tables, nil
}

func (s *databaseStorage) GetRows(ctx context.Context, database, table string, limit, offset int) (*service.TablePage, error) {
	const op errs.Op = "databaseStorage.GetRows"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return nil, errs.E(op, err)
	}

	exists, err := sqlitedb.TableExists(ctx, db.SQL(), table)
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	if !exists {
		return nil, errs.E(errs.NotExist, op, errs.Parameter("table"), errs.Str("table not found: "+table))
	}

	page, err := sqlitedb.Rows(ctx, db.SQL(), table, limit, offset)
	if err != nil {
		return nil, errs.E(errs.Database, op, err, errs.Parameter("table"))
	}

	return &service.TablePage{
		Database: database,
		Table:    table,
		Columns:  page.Columns,
		Rows:     page.Rows,
		Total:    page.Total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}, nil
}

func databaseInfo(ctx context.Context, db *sqlitedb.DB) (*service.DatabaseInfo, error) {
	wal, err := db.IsWAL(ctx)
	if err != nil {
		return nil, err
	}

	return &service.DatabaseInfo{
		Name:    db.Name(),
		Mutable: db.IsMutable(),
		WAL:     wal,
	}, nil
}

func NewDatabaseStorage(dbs *sqlitedb.Registry) *databaseStorage {
	return &databaseStorage{
		dbs: dbs,
	}
}
