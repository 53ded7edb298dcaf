package handlers

import (
	"context"
	"net/http"

	"github.com/navikt/nada-socrata/pkg/auth"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/transport"
)

type PermissionsHandler struct {
	permissionService service.PermissionService
}

func (h *PermissionsHandler) ListGrants(ctx context.Context, _ *http.Request, _ any) ([]*service.PermissionGrant, error) {
	return h.permissionService.ListGrants(ctx, auth.GetActor(ctx))
}

func (h *PermissionsHandler) Grant(ctx context.Context, _ *http.Request, in service.GrantRequest) (*transport.Created, error) {
	grant, err := h.permissionService.Grant(ctx, auth.GetActor(ctx), &in)
	if err != nil {
		return nil, err
	}

	return &transport.Created{Data: grant}, nil
}

func (h *PermissionsHandler) Revoke(ctx context.Context, _ *http.Request, in service.GrantRequest) (*transport.Empty, error) {
	err := h.permissionService.Revoke(ctx, auth.GetActor(ctx), &in)
	if err != nil {
		return nil, err
	}

	return &transport.Empty{}, nil
}

type ActorResponse struct {
	Actor *service.Actor `json:"actor"`
}

func (h *PermissionsHandler) Actor(ctx context.Context, _ *http.Request, _ any) (*ActorResponse, error) {
	return &ActorResponse{
		Actor: auth.GetActor(ctx),
	}, nil
}

func NewPermissionsHandler(permissionService service.PermissionService) *PermissionsHandler {
	return &PermissionsHandler{
		permissionService: permissionService,
	}
}
