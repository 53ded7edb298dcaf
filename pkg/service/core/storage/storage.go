package storage

import (
	"github.com/navikt/nada-socrata/pkg/database"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/postgres"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/sqlite"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
)

type Stores struct {
	PermissionStorage    service.PermissionStorage
	ImportAuditStorage   service.ImportAuditStorage
	SocrataImportStorage service.SocrataImportStorage
	DatabaseStorage      service.DatabaseStorage
}

func NewStores(
	db *database.Repo,
	dbs *sqlitedb.Registry,
) *Stores {
	return &Stores{
		PermissionStorage:    postgres.NewPermissionStorage(db.Querier, database.WithTx[postgres.PermissionQueries](db)),
		ImportAuditStorage:   postgres.NewImportAuditStorage(db.Querier),
		SocrataImportStorage: sqlite.NewSocrataImportStorage(dbs),
		DatabaseStorage:      sqlite.NewDatabaseStorage(dbs),
	}
}
