package core

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/rs/zerolog"
)

var _ service.PermissionService = &permissionService{}

type permissionService struct {
	plugins           []service.PermissionPlugin
	permissionStorage service.PermissionStorage
	log               zerolog.Logger
}

// Allowed asks each plugin in turn, the first one that does not abstain
// decides. When all abstain only the root actor may import.
func (s *permissionService) Allowed(ctx context.Context, actor *service.Actor, action string) (bool, error) {
	const op errs.Op = "permissionService.Allowed"

	for _, plugin := range s.plugins {
		decision, err := plugin.Check(ctx, actor, action)
		if err != nil {
			return false, errs.E(op, errs.UserName(actor.String()), err)
		}

		if decision == service.PermissionAbstain {
			continue
		}

		s.log.Debug().
			Str("actor", actor.String()).
			Str("action", action).
			Str("plugin", plugin.Name()).
			Str("decision", decision.String()).
			Msg("permission check")

		return decision == service.PermissionAllow, nil
	}

	return action == service.PermissionImportSocrata && actor.IsRoot(), nil
}

func (s *permissionService) Grant(ctx context.Context, actor *service.Actor, req *service.GrantRequest) (*service.PermissionGrant, error) {
	const op errs.Op = "permissionService.Grant"

	err := ensureRoot(actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	err = req.Validate()
	if err != nil {
		return nil, errs.E(errs.Validation, op, err)
	}

	grant, err := s.permissionStorage.CreateGrant(ctx, &service.PermissionGrant{
		ID:        uuid.New(),
		ActorID:   req.ActorID,
		Action:    req.Action,
		GrantedBy: actor.ID,
	})
	if err != nil {
		return nil, errs.E(op, errs.UserName(actor.ID), err)
	}

	s.log.Info().
		Str("actor", req.ActorID).
		Str("action", req.Action).
		Str("granted_by", actor.ID).
		Msg("permission granted")

	return grant, nil
}

func (s *permissionService) Revoke(ctx context.Context, actor *service.Actor, req *service.GrantRequest) error {
	const op errs.Op = "permissionService.Revoke"

	err := ensureRoot(actor)
	if err != nil {
		return errs.E(op, err)
	}

	err = req.Validate()
	if err != nil {
		return errs.E(errs.Validation, op, err)
	}

	err = s.permissionStorage.DeleteGrant(ctx, req.ActorID, req.Action)
	if err != nil {
		return errs.E(op, errs.UserName(actor.ID), err)
	}

	s.log.Info().
		Str("actor", req.ActorID).
		Str("action", req.Action).
		Str("revoked_by", actor.ID).
		Msg("permission revoked")

	return nil
}

func (s *permissionService) ListGrants(ctx context.Context, actor *service.Actor) ([]*service.PermissionGrant, error) {
	const op errs.Op = "permissionService.ListGrants"

	err := ensureRoot(actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	grants, err := s.permissionStorage.ListGrants(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return grants, nil
}

func ensureRoot(actor *service.Actor) error {
	if actor == nil {
		return errs.E(errs.Unauthenticated, errs.Str("no actor"))
	}

	if !actor.IsRoot() {
		return errs.E(errs.Unauthorized, errs.UserName(actor.ID), errs.Str("only the root actor can manage permissions"))
	}

	return nil
}

func NewPermissionService(permissionStorage service.PermissionStorage, log zerolog.Logger, plugins ...service.PermissionPlugin) *permissionService {
	return &permissionService{
		plugins:           plugins,
		permissionStorage: permissionStorage,
		log:               log,
	}
}

var _ service.PermissionPlugin = &allowListPlugin{}

// allowListPlugin allows the actors listed per action in the config.
type allowListPlugin struct {
	allow map[string][]string
}

func (p *allowListPlugin) Name() string {
	return "config"
}

func (p *allowListPlugin) Check(_ context.Context, actor *service.Actor, action string) (service.PermissionDecision, error) {
	if actor == nil {
		return service.PermissionAbstain, nil
	}

	if slices.Contains(p.allow[action], actor.ID) {
		return service.PermissionAllow, nil
	}

	return service.PermissionAbstain, nil
}

func NewAllowListPlugin(allow map[string][]string) *allowListPlugin {
	return &allowListPlugin{
		allow: allow,
	}
}

var _ service.PermissionPlugin = &grantsPlugin{}

// grantsPlugin allows the actors that have been granted the action.
type grantsPlugin struct {
	permissionStorage service.PermissionStorage
}

func (p *grantsPlugin) Name() string {
	return "grants"
}

func (p *grantsPlugin) Check(ctx context.Context, actor *service.Actor, action string) (service.PermissionDecision, error) {
	const op errs.Op = "grantsPlugin.Check"

	if actor == nil {
		return service.PermissionAbstain, nil
	}

	ok, err := p.permissionStorage.HasGrant(ctx, actor.ID, action)
	if err != nil {
		return service.PermissionAbstain, errs.E(op, err)
	}

	if ok {
		return service.PermissionAllow, nil
	}

	return service.PermissionAbstain, nil
}

func NewGrantsPlugin(permissionStorage service.PermissionStorage) *grantsPlugin {
	return &grantsPlugin{
		permissionStorage: permissionStorage,
	}
}
