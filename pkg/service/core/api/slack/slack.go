package slack

import (
	"context"
	"fmt"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	slackapi "github.com/slack-go/slack"
)

// Poster is the part of the slack client we use.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

var _ service.ImportNotifier = &slackAPI{}

type slackAPI struct {
	channel string
	api     Poster
}

func (a *slackAPI) ImportFinished(ctx context.Context, audit *service.ImportAudit) error {
	const op errs.Op = "slackAPI.ImportFinished"

	_, _, err := a.api.PostMessageContext(ctx, a.channel, slackapi.MsgOptionText(ImportMessage(audit), false))
	if err != nil {
		return errs.E(errs.IO, op, err)
	}

	return nil
}

// ImportMessage is the text posted when an import finishes.
func ImportMessage(audit *service.ImportAudit) string {
	if audit.Status == service.ImportStatusFailed {
		return fmt.Sprintf(
			"Import of %s/%s into %s.%s by %s failed after %d rows: %s",
			audit.Domain,
			audit.DatasetID,
			audit.DatabaseName,
			audit.TableName,
			audit.ActorID,
			audit.RowsImported,
			audit.Error,
		)
	}

	return fmt.Sprintf(
		"Imported %s/%s into %s.%s (%d rows), requested by %s",
		audit.Domain,
		audit.DatasetID,
		audit.DatabaseName,
		audit.TableName,
		audit.RowsImported,
		audit.ActorID,
	)
}

func NewSlackAPI(channel string, api Poster) *slackAPI {
	return &slackAPI{
		channel: channel,
		api:     api,
	}
}

func New(token, channel string) *slackAPI {
	return NewSlackAPI(channel, slackapi.New(token))
}
