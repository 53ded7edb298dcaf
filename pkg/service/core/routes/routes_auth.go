package routes

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/navikt/nada-socrata/pkg/auth"
)

type AuthEndpoints struct {
	AuthToken http.HandlerFunc
	Logout    http.HandlerFunc
}

func NewAuthEndpoints(api auth.HTTP) *AuthEndpoints {
	return &AuthEndpoints{
		AuthToken: api.AuthToken,
		Logout:    api.Logout,
	}
}

func NewAuthRoutes(endpoints *AuthEndpoints) AddRoutesFn {
	return func(router chi.Router) {
		router.Get("/-/auth-token", endpoints.AuthToken)
		router.HandleFunc("/-/logout", endpoints.Logout)
	}
}
