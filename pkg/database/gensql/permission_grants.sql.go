package gensql

import (
	"context"

	"github.com/google/uuid"
)

const createGrant = `-- name: CreateGrant :one
INSERT INTO permission_grants ("id", "actor_id", "action", "granted_by")
VALUES ($1, $2, $3, $4)
ON CONFLICT ("actor_id", "action") DO UPDATE SET "granted_by" = EXCLUDED."granted_by"
RETURNING id, actor_id, action, granted_by, created_at
`

type CreateGrantParams struct {
	ID        uuid.UUID
	ActorID   string
	Action    string
	GrantedBy string
}

func (q *Queries) CreateGrant(ctx context.Context, arg CreateGrantParams) (PermissionGrant, error) {
	row := q.db.QueryRowContext(ctx, createGrant,
		arg.ID,
		arg.ActorID,
		arg.Action,
		arg.GrantedBy,
	)
	var i PermissionGrant
	err := row.Scan(
		&i.ID,
		&i.ActorID,
		&i.Action,
		&i.GrantedBy,
		&i.CreatedAt,
	)
	return i, err
}

const deleteGrant = `-- name: DeleteGrant :execrows
DELETE FROM permission_grants
WHERE "actor_id" = $1 AND "action" = $2
`

type DeleteGrantParams struct {
	ActorID string
	Action  string
}

func (q *Queries) DeleteGrant(ctx context.Context, arg DeleteGrantParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteGrant, arg.ActorID, arg.Action)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getGrants = `-- name: GetGrants :many
SELECT id, actor_id, action, granted_by, created_at FROM permission_grants
ORDER BY "action", "actor_id"
`

func (q *Queries) GetGrants(ctx context.Context) ([]PermissionGrant, error) {
	rows, err := q.db.QueryContext(ctx, getGrants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PermissionGrant{}
	for rows.Next() {
		var i PermissionGrant
		if err := rows.Scan(
			&i.ID,
			&i.ActorID,
			&i.Action,
			&i.GrantedBy,
			&i.CreatedAt,
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

const hasGrant = `-- name: HasGrant :one
SELECT EXISTS (
    SELECT 1 FROM permission_grants
    WHERE "actor_id" = $1 AND "action" = $2
)
`

type HasGrantParams struct {
	ActorID string
	Action  string
}

func (q *Queries) HasGrant(ctx context.Context, arg HasGrantParams) (bool, error) {
	row := q.db.QueryRowContext(ctx, hasGrant, arg.ActorID, arg.Action)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}
