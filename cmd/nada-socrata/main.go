package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/navikt/nada-socrata/pkg/auth"
	"github.com/navikt/nada-socrata/pkg/cache"
	"github.com/navikt/nada-socrata/pkg/config/v2"
	"github.com/navikt/nada-socrata/pkg/database"
	"github.com/navikt/nada-socrata/pkg/disk"
	"github.com/navikt/nada-socrata/pkg/leaderelection"
	"github.com/navikt/nada-socrata/pkg/requestlogger"
	"github.com/navikt/nada-socrata/pkg/service/core"
	apiclients "github.com/navikt/nada-socrata/pkg/service/core/api"
	"github.com/navikt/nada-socrata/pkg/service/core/handlers"
	"github.com/navikt/nada-socrata/pkg/service/core/routes"
	"github.com/navikt/nada-socrata/pkg/service/core/storage"
	"github.com/navikt/nada-socrata/pkg/socrata"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
	"github.com/navikt/nada-socrata/pkg/syncers/importer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	configFilePath = flag.String("config", "config.yaml", "path to config file")
	printRoutes    = flag.Bool("print-routes", false, "print the routes and exit")
)

const (
	ActorTokenTTL   = 24 * time.Hour
	ShutdownTimeout = 5 * time.Second
)

func main() {
	flag.Parse()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileParts, err := config.ProcessConfigPath(*configFilePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("processing config path")
	}

	cfg, err := config.NewFileSystemLoader().Load(fileParts.FileName, fileParts.Path, config.DefaultEnvPrefix, config.NewDefaultEnvBinder())
	if err != nil {
		zlog.Fatal().Err(err).Msg("loading config")
	}

	err = cfg.Validate()
	if err != nil {
		zlog.Fatal().Err(err).Msg("validating config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("parsing log level")
	}
	zlog = zlog.Level(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	repo, err := database.New(
		cfg.Postgres.ConnectionString(),
		cfg.Postgres.Configuration.MaxIdleConnections,
		cfg.Postgres.Configuration.MaxOpenConnections,
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("setting up database")
	}

	dbs := sqlitedb.NewRegistry()
	defer func() {
		_ = dbs.Close()
	}()

	var dbPaths []string
	for _, d := range cfg.Databases {
		db, err := sqlitedb.Open(d.Name, d.Path, d.Immutable)
		if err != nil {
			zlog.Fatal().Err(err).Str("database", d.Name).Msg("opening database")
		}

		err = dbs.Add(db)
		if err != nil {
			zlog.Fatal().Err(err).Str("database", d.Name).Msg("registering database")
		}

		if !d.Immutable {
			dbPaths = append(dbPaths, d.Path)
		}
	}

	// No client timeout, it would cut off exports that take long to download
	fetcher := socrata.New(
		&http.Client{},
		socrata.WithRequestTimeout(time.Duration(cfg.Socrata.RequestTimeoutSec)*time.Second),
		socrata.WithScheme(cfg.Socrata.Scheme),
		socrata.WithAppToken(cfg.Socrata.AppToken),
		socrata.WithRateLimit(cfg.Socrata.RateLimit, cfg.Socrata.RateBurst),
	)

	cacher := cache.New(time.Duration(cfg.CacheDurationSeconds)*time.Second, repo.GetDB(), zlog.With().Str("component", "cache").Logger())

	stores := storage.NewStores(repo, dbs)
	apiClients := apiclients.NewClients(cacher, fetcher, cfg, zlog.With().Str("subsystem", "api_clients").Logger())
	services := core.NewServices(
		cfg,
		stores,
		apiClients,
		disk.NewChecker(cfg.LowDiskSpaceMB, dbPaths...),
		zlog.With().Str("subsystem", "services").Logger(),
	)

	err = services.SocrataService.Startup(ctx)
	if err != nil {
		zlog.Fatal().Err(err).Msg("preparing databases")
	}

	elector, err := leaderelection.NewFromEnv()
	if err != nil {
		zlog.Fatal().Err(err).Msg("setting up leader election")
	}

	importerMetrics := importer.NewMetrics()
	imports := importer.New(
		services.SocrataService,
		cfg.Socrata.Workers,
		time.Duration(cfg.Socrata.ImportDeadlineSec)*time.Second,
		time.Duration(cfg.Socrata.ResumeFrequencySec)*time.Second,
		importerMetrics,
		zlog.With().Str("subsystem", "importer").Logger(),
		importer.WithLeaderCheck(elector.IsLeader),
	)

	rootToken := auth.NewRootToken(cfg.Auth.RootToken)
	signer := auth.NewSigner(cfg.Auth.SigningSecret, ActorTokenTTL)
	authenticatorMiddleware := auth.NewMiddleware(signer, cfg.Auth.Cookie.Name, zlog.With().Str("subsystem", "auth").Logger()).Handler
	httpAPI := auth.NewHTTP(signer, rootToken, cfg.Auth.Cookie, zlog.With().Str("subsystem", "auth").Logger())

	h := handlers.NewHandlers(services, imports, cfg, zlog)

	router := chi.NewRouter()
	router.NotFound(routes.NotFound(zlog))
	router.Use(middleware.RequestID)
	router.Use(requestlogger.Middleware(zlog, "/internal/isalive", "/internal/metrics"))

	routes.Add(router,
		routes.NewMetricsRoutes(routes.NewMetricsEndpoints(prom(append(repo.Metrics(), importerMetrics.Collectors()...)...))),
		routes.NewAuthRoutes(routes.NewAuthEndpoints(httpAPI)),
		routes.NewSocrataRoutes(routes.NewSocrataEndpoints(zlog, h.SocrataHandler), authenticatorMiddleware),
		routes.NewPermissionsRoutes(routes.NewPermissionsEndpoints(zlog, h.PermissionsHandler), authenticatorMiddleware),
		routes.NewBrowseRoutes(routes.NewBrowseEndpoints(zlog, h.BrowseHandler), authenticatorMiddleware),
	)

	if *printRoutes {
		err = routes.Print(router, os.Stdout)
		if err != nil {
			zlog.Fatal().Err(err).Msg("printing routes")
		}

		return
	}

	importerDone := make(chan struct{})
	go func() {
		defer close(importerDone)
		imports.Run(ctx)
	}()

	server := http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Address, cfg.Server.Port),
		Handler: router,
	}

	zlog.Info().Msgf("Listening on %s:%s", cfg.Server.Address, cfg.Server.Port)
	zlog.Info().Msgf("Root login: http://%s/-/auth-token?token=%s", net.JoinHostPort(cfg.Server.Hostname, cfg.Server.Port), rootToken)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("serving http")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("shutdown error")
	}

	<-importerDone
}

func prom(cols ...prometheus.Collector) *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector())
	r.MustRegister(cols...)

	return r
}
