package static

import (
	"context"

	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/api/slack"
	"github.com/rs/zerolog"
)

var _ service.ImportNotifier = &slackAPI{}

// slackAPI logs notifications instead of posting them, used when no slack
// token is configured.
type slackAPI struct {
	log zerolog.Logger
}

func (s *slackAPI) ImportFinished(_ context.Context, audit *service.ImportAudit) error {
	s.log.Info().Str("status", audit.Status).Msg(slack.ImportMessage(audit))

	return nil
}

func NewSlackAPI(log zerolog.Logger) *slackAPI {
	return &slackAPI{
		log: log,
	}
}
