package auth

import (
	"net/http"
	"time"

	"github.com/navikt/nada-socrata/pkg/config/v2"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/rs/zerolog"
)

type HTTP struct {
	signer    *Signer
	rootToken *RootToken
	cookie    config.CookieSettings
	log       zerolog.Logger
}

// AuthToken exchanges the root token for a signed actor cookie.
func (h HTTP) AuthToken(w http.ResponseWriter, r *http.Request) {
	if !h.rootToken.Matches(r.URL.Query().Get("token")) {
		h.log.Info().Msg("invalid root token")
		http.Error(w, "Invalid token", http.StatusForbidden)

		return
	}

	token, err := h.signer.Sign(&service.Actor{ID: service.RootActorID})
	if err != nil {
		h.log.Error().Err(err).Msg("signing root token")
		http.Error(w, "Unable to sign token", http.StatusInternalServerError)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   h.cookie.MaxAge,
		SameSite: h.cookie.GetSameSite(),
		Secure:   h.cookie.Secure,
		HttpOnly: h.cookie.HttpOnly,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h HTTP) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Expires:  time.Unix(0, 0),
		SameSite: h.cookie.GetSameSite(),
		Secure:   h.cookie.Secure,
		HttpOnly: h.cookie.HttpOnly,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func NewHTTP(signer *Signer, rootToken *RootToken, cookie config.CookieSettings, log zerolog.Logger) HTTP {
	return HTTP{
		signer:    signer,
		rootToken: rootToken,
		cookie:    cookie,
		log:       log,
	}
}
