package routes

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/navikt/nada-socrata/pkg/service/core/handlers"
	"github.com/navikt/nada-socrata/pkg/service/core/transport"
	"github.com/rs/zerolog"
)

type PermissionsEndpoints struct {
	ListGrants http.HandlerFunc
	Grant      http.HandlerFunc
	Revoke     http.HandlerFunc
	Actor      http.HandlerFunc
}

func NewPermissionsEndpoints(log zerolog.Logger, h *handlers.PermissionsHandler) *PermissionsEndpoints {
	return &PermissionsEndpoints{
		ListGrants: transport.For(h.ListGrants).Build(log),
		Grant:      transport.For(h.Grant).RequestFromJSON().Build(log),
		Revoke:     transport.For(h.Revoke).RequestFromJSON().Build(log),
		Actor:      transport.For(h.Actor).Build(log),
	}
}

func NewPermissionsRoutes(endpoints *PermissionsEndpoints, auth func(http.Handler) http.Handler) AddRoutesFn {
	return func(router chi.Router) {
		router.Route("/-/permissions/grants", func(r chi.Router) {
			r.Use(auth)
			r.Get("/", endpoints.ListGrants)
			r.Post("/", endpoints.Grant)
			r.Delete("/", endpoints.Revoke)
		})

		router.With(auth).Get("/-/actor", endpoints.Actor)
	}
}
