package gensql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createImportAudit = `-- name: CreateImportAudit :one
INSERT INTO import_audit ("id", "database_name", "table_name", "domain", "dataset_id", "actor_id", "metadata")
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, database_name, table_name, domain, dataset_id, actor_id, status, metadata, error, rows_imported, started_at, finished_at
`

type CreateImportAuditParams struct {
	ID           uuid.UUID
	DatabaseName string
	TableName    string
	Domain       string
	DatasetID    string
	ActorID      string
	Metadata     pqtype.NullRawMessage
}

func (q *Queries) CreateImportAudit(ctx context.Context, arg CreateImportAuditParams) (ImportAudit, error) {
	row := q.db.QueryRowContext(ctx, createImportAudit,
		arg.ID,
		arg.DatabaseName,
		arg.TableName,
		arg.Domain,
		arg.DatasetID,
		arg.ActorID,
		arg.Metadata,
	)
	var i ImportAudit
	err := row.Scan(
		&i.ID,
		&i.DatabaseName,
		&i.TableName,
		&i.Domain,
		&i.DatasetID,
		&i.ActorID,
		&i.Status,
		&i.Metadata,
		&i.Error,
		&i.RowsImported,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}

const finishImportAudit = `-- name: FinishImportAudit :exec
UPDATE import_audit
SET "status" = $1, "error" = $2, "rows_imported" = $3, "finished_at" = NOW()
WHERE "id" = $4
`

type FinishImportAuditParams struct {
	Status       ImportStatus
	Error        sql.NullString
	RowsImported int64
	ID           uuid.UUID
}

func (q *Queries) FinishImportAudit(ctx context.Context, arg FinishImportAuditParams) error {
	_, err := q.db.ExecContext(ctx, finishImportAudit,
		arg.Status,
		arg.Error,
		arg.RowsImported,
		arg.ID,
	)
	return err
}

const getImportAudits = `-- name: GetImportAudits :many
SELECT id, database_name, table_name, domain, dataset_id, actor_id, status, metadata, error, rows_imported, started_at, finished_at FROM import_audit
WHERE "database_name" = $1
ORDER BY "started_at" DESC
LIMIT $2
`

type GetImportAuditsParams struct {
	DatabaseName string
	Lim          int32
}

func (q *Queries) GetImportAudits(ctx context.Context, arg GetImportAuditsParams) ([]ImportAudit, error) {
	rows, err := q.db.QueryContext(ctx, getImportAudits, arg.DatabaseName, arg.Lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ImportAudit{}
	for rows.Next() {
		var i ImportAudit
		if err := rows.Scan(
			&i.ID,
			&i.DatabaseName,
			&i.TableName,
			&i.Domain,
			&i.DatasetID,
			&i.ActorID,
			&i.Status,
			&i.Metadata,
			&i.Error,
			&i.RowsImported,
			&i.StartedAt,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLatestImportAudit = `-- name: GetLatestImportAudit :one
SELECT id, database_name, table_name, domain, dataset_id, actor_id, status, metadata, error, rows_imported, started_at, finished_at FROM import_audit
WHERE "database_name" = $1 AND "dataset_id" = $2
ORDER BY "started_at" DESC
LIMIT 1
`

type GetLatestImportAuditParams struct {
	DatabaseName string
	DatasetID    string
}

func (q *Queries) GetLatestImportAudit(ctx context.Context, arg GetLatestImportAuditParams) (ImportAudit, error) {
	row := q.db.QueryRowContext(ctx, getLatestImportAudit, arg.DatabaseName, arg.DatasetID)
	var i ImportAudit
	err := row.Scan(
		&i.ID,
		&i.DatabaseName,
		&i.TableName,
		&i.Domain,
		&i.DatasetID,
		&i.ActorID,
		&i.Status,
		&i.Metadata,
		&i.Error,
		&i.RowsImported,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}
