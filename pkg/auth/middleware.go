package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/rs/zerolog"
)

type MiddlewareHandler func(http.Handler) http.Handler

type contextKey int

const ContextActorKey contextKey = 1

func GetActor(ctx context.Context) *service.Actor {
	actor := ctx.Value(ContextActorKey)
	if actor == nil {
		return nil
	}

	return actor.(*service.Actor)
}

func SetActor(ctx context.Context, actor *service.Actor) context.Context {
	return context.WithValue(ctx, ContextActorKey, actor)
}

type Middleware struct {
	signer     *Signer
	cookieName string
	log        zerolog.Logger
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r, m.cookieName)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := m.signer.Parse(token)
		if err != nil {
			// Requests with a bad token continue as anonymous
			m.log.Debug().Err(err).Msg("parsing actor token")
			next.ServeHTTP(w, r)

			return
		}

		next.ServeHTTP(w, r.WithContext(SetActor(r.Context(), actor)))
	})
}

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(r *http.Request, cookieName string) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}

func NewMiddleware(signer *Signer, cookieName string, log zerolog.Logger) *Middleware {
	return &Middleware{
		signer:     signer,
		cookieName: cookieName,
		log:        log,
	}
}
