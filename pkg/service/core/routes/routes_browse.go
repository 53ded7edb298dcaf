package routes

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/navikt/nada-socrata/pkg/service/core/handlers"
	"github.com/navikt/nada-socrata/pkg/service/core/transport"
	"github.com/rs/zerolog"
)

type BrowseEndpoints struct {
	ListDatabases http.HandlerFunc
	GetDatabase   http.HandlerFunc
	GetTable      http.HandlerFunc
}

func NewBrowseEndpoints(log zerolog.Logger, h *handlers.BrowseHandler) *BrowseEndpoints {
	return &BrowseEndpoints{
		ListDatabases: transport.For(h.ListDatabases).Build(log),
		GetDatabase:   transport.For(h.GetDatabase).Build(log),
		GetTable:      transport.For(h.GetTable).Build(log),
	}
}

// NewBrowseRoutes catches every top level path, add it after the other routes.
func NewBrowseRoutes(endpoints *BrowseEndpoints, auth func(http.Handler) http.Handler) AddRoutesFn {
	return func(router chi.Router) {
		router.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/", endpoints.ListDatabases)
			r.Get("/{database}", endpoints.GetDatabase)
			r.Get("/{database}/{table}", endpoints.GetTable)
		})
	}
}
