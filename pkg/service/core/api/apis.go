package api

import (
	"github.com/navikt/nada-socrata/pkg/cache"
	"github.com/navikt/nada-socrata/pkg/config/v2"
	"github.com/navikt/nada-socrata/pkg/service"
	httpapi "github.com/navikt/nada-socrata/pkg/service/core/api/http"
	slackapi "github.com/navikt/nada-socrata/pkg/service/core/api/slack"
	"github.com/navikt/nada-socrata/pkg/service/core/api/static"
	"github.com/navikt/nada-socrata/pkg/service/core/cache/postgres"
	"github.com/navikt/nada-socrata/pkg/socrata"
	"github.com/rs/zerolog"
)

type Clients struct {
	SocrataAPI     service.SocrataAPI
	ImportNotifier service.ImportNotifier
}

func NewClients(
	cache cache.Cacher,
	fetcher socrata.Fetcher,
	cfg config.Config,
	log zerolog.Logger,
) *Clients {
	socrataAPI := httpapi.NewSocrataAPI(fetcher, log.With().Str("component", "socrata").Logger())
	socrataAPICacher := postgres.NewSocrataCache(socrataAPI, cache)

	var notifier service.ImportNotifier = static.NewSlackAPI(log.With().Str("component", "slack").Logger())
	if cfg.Slack.Token != "" {
		notifier = slackapi.New(cfg.Slack.Token, cfg.Slack.Channel)
	}

	return &Clients{
		SocrataAPI:     socrataAPICacher,
		ImportNotifier: notifier,
	}
}
