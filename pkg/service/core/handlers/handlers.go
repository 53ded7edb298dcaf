package handlers

import (
	"github.com/navikt/nada-socrata/pkg/config/v2"
	"github.com/navikt/nada-socrata/pkg/service/core"
	"github.com/rs/zerolog"
)

type Handlers struct {
	SocrataHandler     *SocrataHandler
	PermissionsHandler *PermissionsHandler
	BrowseHandler      *BrowseHandler
}

func NewHandlers(s *core.Services, importer Enqueuer, cfg config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		SocrataHandler:     NewSocrataHandler(s.SocrataService, importer, cfg.Socrata.RedirectDelay(), log.With().Str("handler", "socrata").Logger()),
		PermissionsHandler: NewPermissionsHandler(s.PermissionService),
		BrowseHandler:      NewBrowseHandler(s.BrowseService),
	}
}
