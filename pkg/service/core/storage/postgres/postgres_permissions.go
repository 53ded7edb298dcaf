package postgres

import (
	"context"

	"github.com/navikt/nada-socrata/pkg/database"
	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
)

type PermissionQueries interface {
	HasGrant(ctx context.Context, arg gensql.HasGrantParams) (bool, error)
	CreateGrant(ctx context.Context, arg gensql.CreateGrantParams) (gensql.PermissionGrant, error)
	DeleteGrant(ctx context.Context, arg gensql.DeleteGrantParams) (int64, error)
	GetGrants(ctx context.Context) ([]gensql.PermissionGrant, error)
}

var _ service.PermissionStorage = &permissionStorage{}

type PermissionQueriesWithTxFn func() (PermissionQueries, database.Transacter, error)

type permissionStorage struct {
	queries  PermissionQueries
	withTxFn PermissionQueriesWithTxFn
}

func (s *permissionStorage) HasGrant(ctx context.Context, actorID, action string) (bool, error) {
	const op errs.Op = "permissionStorage.HasGrant"

	ok, err := s.queries.HasGrant(ctx, gensql.HasGrantParams{
		ActorID: actorID,
		Action:  action,
	})
	if err != nil {
		return false, errs.E(errs.Database, op, err, errs.Parameter("actorID"))
	}

	return ok, nil
}

func (s *permissionStorage) CreateGrant(ctx context.Context, grant *service.PermissionGrant) (*service.PermissionGrant, error) {
	const op errs.Op = "permissionStorage.CreateGrant"

	q, tx, err := s.withTxFn()
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}
	defer tx.Rollback()

	exists, err := q.HasGrant(ctx, gensql.HasGrantParams{
		ActorID: grant.ActorID,
		Action:  grant.Action,
	})
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	if exists {
		return nil, errs.E(errs.Exist, op, errs.Parameter("actorID"), errs.Str("actor already holds the permission"))
	}

	raw, err := q.CreateGrant(ctx, gensql.CreateGrantParams{
		ID:        grant.ID,
		ActorID:   grant.ActorID,
		Action:    grant.Action,
		GrantedBy: grant.GrantedBy,
	})
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	created, err := From(PermissionGrant(raw))
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	return created, nil
}

func (s *permissionStorage) DeleteGrant(ctx context.Context, actorID, action string) error {
	const op errs.Op = "permissionStorage.DeleteGrant"

	n, err := s.queries.DeleteGrant(ctx, gensql.DeleteGrantParams{
		ActorID: actorID,
		Action:  action,
	})
	if err != nil {
		return errs.E(errs.Database, op, err)
	}

	if n == 0 {
		return errs.E(errs.NotExist, op, errs.Parameter("actorID"), errs.Str("no such grant"))
	}

	return nil
}

func (s *permissionStorage) ListGrants(ctx context.Context) ([]*service.PermissionGrant, error) {
	const op errs.Op = "permissionStorage.ListGrants"

	raw, err := s.queries.GetGrants(ctx)
	if err != nil {
		return nil, errs.E(errs.Database, op, err)
	}

	grants, err := From(PermissionGrants(raw))
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	return grants, nil
}

func NewPermissionStorage(queries PermissionQueries, withTxFn PermissionQueriesWithTxFn) *permissionStorage {
	return &permissionStorage{
		queries:  queries,
		withTxFn: withTxFn,
	}
}
