package gensql

import (
	"context"
)

type Querier interface {
	CreateGrant(ctx context.Context, arg CreateGrantParams) (PermissionGrant, error)
	CreateImportAudit(ctx context.Context, arg CreateImportAuditParams) (ImportAudit, error)
	DeleteGrant(ctx context.Context, arg DeleteGrantParams) (int64, error)
	FinishImportAudit(ctx context.Context, arg FinishImportAuditParams) error
	GetGrants(ctx context.Context) ([]PermissionGrant, error)
	GetImportAudits(ctx context.Context, arg GetImportAuditsParams) ([]ImportAudit, error)
	GetLatestImportAudit(ctx context.Context, arg GetLatestImportAuditParams) (ImportAudit, error)
	HasGrant(ctx context.Context, arg HasGrantParams) (bool, error)
}

var _ Querier = (*Queries)(nil)
