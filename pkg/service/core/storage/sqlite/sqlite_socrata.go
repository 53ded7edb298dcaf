// Package sqlite stores imports and serves tables from the hosted SQLite
// databases.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const importColumns = `id, name, url, metadata, row_count, row_progress, import_started, import_complete, import_heartbeat`

var _ service.SocrataImportStorage = &socrataImportStorage{}

type socrataImportStorage struct {
	dbs *sqlitedb.Registry
}

func (s *socrataImportStorage) EnsureImportsTable(ctx context.Context, database string) error {
	const op errs.Op = "socrataImportStorage.EnsureImportsTable"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errs.E(errs.Internal, op, err)
	}

	err = db.Migrate(ctx, migrations)
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("database"))
	}

	return nil
}

func (s *socrataImportStorage) UpsertImport(ctx context.Context, database string, imp *service.SocrataImport) error {
	const op errs.Op = "socrataImportStorage.UpsertImport"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	err = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO socrata_imports (`+importColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    url = excluded.url,
    metadata = excluded.metadata,
    row_count = excluded.row_count,
    row_progress = excluded.row_progress,
    import_started = excluded.import_started,
    import_complete = excluded.import_complete,
    import_heartbeat = excluded.import_heartbeat`,
			imp.ID,
			imp.Name,
			imp.URL,
			nullableText(imp.Metadata),
			imp.RowCount,
			imp.RowProgress,
			imp.ImportStarted,
			imp.ImportComplete,
			imp.ImportHeartbeat,
		)

		return err
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("id"))
	}

	return nil
}

func (s *socrataImportStorage) GetImport(ctx context.Context, database, id string) (*service.SocrataImport, error) {
	const op errs.Op = "socrataImportStorage.GetImport"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return nil, errs.E(op, err)
	}

	row := db.SQL().QueryRowContext(ctx, `SELECT `+importColumns+` FROM socrata_imports WHERE id = ?`, id)

	imp, err := scanImport(row, database)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.E(errs.NotExist, op, err, errs.Parameter("id"))
		}

		return nil, errs.E(errs.Database, op, err)
	}

	return imp, nil
}

func (s *socrataImportStorage) ListImports(ctx context.Context, database string) ([]*service.SocrataImport, error) {
	const op errs.Op = "socrataImportStorage.ListImports"

	imports, err := s.listImports(ctx, database, `SELECT `+importColumns+` FROM socrata_imports ORDER BY import_started DESC`)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return imports, nil
}

func (s *socrataImportStorage) ListIncompleteImports(ctx context.Context, database string) ([]*service.SocrataImport, error) {
	const op errs.Op = "socrataImportStorage.ListIncompleteImports"

	imports, err := s.listImports(ctx, database, `SELECT `+importColumns+` FROM socrata_imports WHERE import_complete IS NULL ORDER BY import_started`)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return imports, nil
}

func (s *socrataImportStorage) listImports(ctx context.Context, database, query string) ([]*service.SocrataImport, error) {
	db, err := getDB(s.dbs, database)
	if err != nil {
		return nil, err
	}

	exists, err := sqlitedb.TableExists(ctx, db.SQL(), "socrata_imports")
	if err != nil {
		return nil, errs.E(errs.Database, err)
	}

	if !exists {
		return []*service.SocrataImport{}, nil
	}

	rows, err := db.SQL().QueryContext(ctx, query)
	if err != nil {
		return nil, errs.E(errs.Database, err)
	}
	defer rows.Close()

	imports := []*service.SocrataImport{}
	for rows.Next() {
		imp, err := scanImport(rows, database)
		if err != nil {
			return nil, errs.E(errs.Database, err)
		}

		imports = append(imports, imp)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.Database, err)
	}

	return imports, nil
}

func (s *socrataImportStorage) DropTable(ctx context.Context, database, table string) error {
	const op errs.Op = "socrataImportStorage.DropTable"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	err = db.Write(ctx, func(tx *sql.Tx) error {
		return sqlitedb.DropTable(ctx, tx, table)
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("table"))
	}

	return nil
}

func (s *socrataImportStorage) InsertBatch(ctx context.Context, database, table, importID string, columns []string, rows []map[string]string) error {
	const op errs.Op = "socrataImportStorage.InsertBatch"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	err = db.Write(ctx, func(tx *sql.Tx) error {
		err := sqlitedb.InsertAll(ctx, tx, table, columns, rows)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE socrata_imports SET row_progress = row_progress + ? WHERE id = ?`, len(rows), importID)
		if err != nil {
			return fmt.Errorf("updating row progress: %w", err)
		}

		return nil
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("table"))
	}

	return nil
}

func (s *socrataImportStorage) TransformTable(ctx context.Context, database, table string, types map[string]string) error {
	const op errs.Op = "socrataImportStorage.TransformTable"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	columnTypes := make(map[string]sqlitedb.ColumnType, len(types))
	for column, typ := range types {
		columnTypes[column] = sqlitedb.ColumnType(typ)
	}

	err = db.Write(ctx, func(tx *sql.Tx) error {
		return sqlitedb.Transform(ctx, tx, table, columnTypes)
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("table"))
	}

	return nil
}

func (s *socrataImportStorage) CompleteImport(ctx context.Context, database, importID string, completed time.Time) error {
	const op errs.Op = "socrataImportStorage.CompleteImport"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	err = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE socrata_imports SET import_complete = ? WHERE id = ?`,
			service.ImportTimestamp(completed),
			importID,
		)

		return err
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("id"))
	}

	return nil
}

func (s *socrataImportStorage) TouchImport(ctx context.Context, database, importID string, at time.Time) error {
	const op errs.Op = "socrataImportStorage.TouchImport"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return errs.E(op, err)
	}

	err = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE socrata_imports SET import_heartbeat = ? WHERE id = ?`,
			service.ImportTimestamp(at),
			importID,
		)

		return err
	})
	if err != nil {
		return errs.E(errs.Database, op, err, errs.Parameter("id"))
	}

	return nil
}

func (s *socrataImportStorage) TableExists(ctx context.Context, database, table string) (bool, error) {
	const op errs.Op = "socrataImportStorage.TableExists"

	db, err := getDB(s.dbs, database)
	if err != nil {
		return false, errs.E(op, err)
	}

	exists, err := sqlitedb.TableExists(ctx, db.SQL(), table)
	if err != nil {
		return false, errs.E(errs.Database, op, err, errs.Parameter("table"))
	}

	return exists, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImport(row scanner, database string) (*service.SocrataImport, error) {
	var (
		imp            service.SocrataImport
		name, url      sql.NullString
		metadata       sql.NullString
		rowCount       sql.NullInt64
		importStarted  sql.NullString
		importComplete sql.NullString
		heartbeat      sql.NullString
	)

	err := row.Scan(
		&imp.ID,
		&name,
		&url,
		&metadata,
		&rowCount,
		&imp.RowProgress,
		&importStarted,
		&importComplete,
		&heartbeat,
	)
	if err != nil {
		return nil, err
	}

	imp.Name = name.String
	imp.URL = url.String
	imp.ImportStarted = importStarted.String
	imp.Database = database
	imp.TableName = service.SocrataDataset{ID: imp.ID}.TableName()

	if metadata.Valid {
		imp.Metadata = []byte(metadata.String)
	}

	if rowCount.Valid {
		n := int(rowCount.Int64)
		imp.RowCount = &n
	}

	if importComplete.Valid {
		imp.ImportComplete = &importComplete.String
	}

	if heartbeat.Valid {
		imp.ImportHeartbeat = &heartbeat.String
	}

	return &imp, nil
}

func nullableText(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}

	return sql.NullString{String: string(b), Valid: true}
}

func getDB(dbs *sqlitedb.Registry, name string) (*sqlitedb.DB, error) {
	db, err := dbs.Get(name)
	if err != nil {
		return nil, errs.E(errs.NotExist, errs.Parameter("database"), err)
	}

	return db, nil
}

func NewSocrataImportStorage(dbs *sqlitedb.Registry) *socrataImportStorage {
	return &socrataImportStorage{
		dbs: dbs,
	}
}
