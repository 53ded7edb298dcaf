package routes

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/navikt/nada-socrata/pkg/service/core/handlers"
	"github.com/navikt/nada-socrata/pkg/service/core/transport"
	"github.com/rs/zerolog"
)

type SocrataEndpoints struct {
	ImportForm    http.HandlerFunc
	StartImport   http.HandlerFunc
	Preview       http.HandlerFunc
	ListImports   http.HandlerFunc
	GetImport     http.HandlerFunc
	ImportHistory http.HandlerFunc
}

func NewSocrataEndpoints(log zerolog.Logger, h *handlers.SocrataHandler) *SocrataEndpoints {
	return &SocrataEndpoints{
		ImportForm:    transport.For(h.ImportForm).Build(log),
		StartImport:   transport.For(h.StartImport).RequestFromForm().Build(log),
		Preview:       transport.For(h.Preview).Build(log),
		ListImports:   transport.For(h.ListImports).Build(log),
		GetImport:     transport.For(h.GetImport).Build(log),
		ImportHistory: transport.For(h.ImportHistory).Build(log),
	}
}

func NewSocrataRoutes(endpoints *SocrataEndpoints, auth func(http.Handler) http.Handler) AddRoutesFn {
	return func(router chi.Router) {
		router.Route("/-/import-socrata", func(r chi.Router) {
			r.Use(auth)
			r.Get("/", endpoints.ImportForm)
			r.Post("/", endpoints.StartImport)
			r.Get("/preview", endpoints.Preview)
			r.Get("/imports", endpoints.ListImports)
			r.Get("/imports/{id}", endpoints.GetImport)
			r.Get("/history", endpoints.ImportHistory)
		})
	}
}
