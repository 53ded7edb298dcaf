package service

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// PermissionImportSocrata gates previewing and importing datasets.
const PermissionImportSocrata = "import-socrata"

type PermissionDecision int

const (
	PermissionAbstain PermissionDecision = iota
	PermissionAllow
	PermissionDeny
)

func (d PermissionDecision) String() string {
	switch d {
	case PermissionAllow:
		return "allow"
	case PermissionDeny:
		return "deny"
	default:
		return "abstain"
	}
}

type PermissionPlugin interface {
	Name() string
	Check(ctx context.Context, actor *Actor, action string) (PermissionDecision, error)
}

type PermissionStorage interface {
	HasGrant(ctx context.Context, actorID, action string) (bool, error)
	CreateGrant(ctx context.Context, grant *PermissionGrant) (*PermissionGrant, error)
	DeleteGrant(ctx context.Context, actorID, action string) error
	ListGrants(ctx context.Context) ([]*PermissionGrant, error)
}

type PermissionService interface {
	Allowed(ctx context.Context, actor *Actor, action string) (bool, error)
	Grant(ctx context.Context, actor *Actor, req *GrantRequest) (*PermissionGrant, error)
	Revoke(ctx context.Context, actor *Actor, req *GrantRequest) error
	ListGrants(ctx context.Context, actor *Actor) ([]*PermissionGrant, error)
}

type PermissionGrant struct {
	ID        uuid.UUID `json:"id"`
	ActorID   string    `json:"actorID"`
	Action    string    `json:"action"`
	GrantedBy string    `json:"grantedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type GrantRequest struct {
	ActorID string `json:"actorID"`
	Action  string `json:"action"`
}

func (r GrantRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ActorID, validation.Required, validation.NotIn(RootActorID)),
		validation.Field(&r.Action, validation.Required, validation.In(PermissionImportSocrata)),
	)
}
