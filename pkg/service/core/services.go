package core

import (
	"github.com/navikt/nada-socrata/pkg/config/v2"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/api"
	"github.com/navikt/nada-socrata/pkg/service/core/storage"
	"github.com/rs/zerolog"
)

type Services struct {
	PermissionService service.PermissionService
	SocrataService    service.SocrataService
	BrowseService     service.BrowseService
}

func NewServices(
	cfg config.Config,
	stores *storage.Stores,
	clients *api.Clients,
	diskChecker service.DiskSpaceChecker,
	log zerolog.Logger,
) *Services {
	permissionService := NewPermissionService(
		stores.PermissionStorage,
		log.With().Str("service", "permissions").Logger(),
		NewAllowListPlugin(cfg.Permissions.Allow),
		NewGrantsPlugin(stores.PermissionStorage),
	)

	return &Services{
		PermissionService: permissionService,
		SocrataService: NewSocrataService(
			clients.SocrataAPI,
			stores.SocrataImportStorage,
			stores.DatabaseStorage,
			stores.ImportAuditStorage,
			permissionService,
			diskChecker,
			clients.ImportNotifier,
			cfg.Plugins.Socrata.Database,
			cfg.Socrata.BatchSize,
			log.With().Str("service", "socrata").Logger(),
		),
		BrowseService: NewBrowseService(stores.DatabaseStorage),
	}
}
