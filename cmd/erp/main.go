package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/erp-system/erp/internal/app"
	"github.com/erp-system/erp/internal/auth"
	"github.com/erp-system/erp/internal/betonara"
	"github.com/erp-system/erp/internal/companies"
	"github.com/erp-system/erp/internal/dashboard"
	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/observability"
	"github.com/erp-system/erp/internal/platform/cache"
	"github.com/erp-system/erp/internal/platform/db"
	"github.com/erp-system/erp/internal/profile"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/roles"
	"github.com/erp-system/erp/internal/settings"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/users"
	"github.com/erp-system/erp/internal/view"
	"github.com/erp-system/erp/jobs"
	"github.com/erp-system/erp/migrations"
	"github.com/erp-system/erp/report"
)

const sessionCookie = "erp_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		arg := "up"
		if len(os.Args) > 2 {
			arg = os.Args[2]
		}
		dir, err := db.ParseDirection(arg)
		if err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(2)
		}
		if err := db.Migrate(migrations.FS, cfg.PGDSN, dir, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("erp"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	settingsService := settings.NewService(logger, settings.NewRepository(pool), cache.NewStore(redisClient, "settings", cfg.SettingsCacheTTL), auditLogger)

	engine, err := view.NewEngine()
	if err != nil {
		logger.Error("load templates", slog.Any("error", err))
		os.Exit(1)
	}
	renderer := view.NewRenderer(logger, engine, csrfManager, navigation.Default, settingsService)

	rbacService := rbac.NewService(rbac.NewPGStore(pool))
	authService := auth.NewService(auth.NewRepository(pool), auth.WithIssuer(cfg.AppName))
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AppName, cfg.JWTTTL)
	sessionGate := gate.New(gate.Config{
		Identity:   auth.NewProvider(tokens, authService),
		Profiles:   authService,
		Roles:      rbacService,
		Responder:  renderer,
		Logger:     logger,
		Registerer: metrics.Registerer(),
	})
	authHandler := auth.NewHandler(logger, authService, renderer, sessionManager)
	authAPI := auth.NewAPIHandler(logger, authService, tokens, navigation.Default)

	companiesService := companies.NewService(companies.NewRepository(pool), auditLogger)
	usersService := users.NewService(users.NewRepository(pool), auditLogger)
	rolesService := roles.NewService(roles.NewRepository(pool), auditLogger)
	profileService := profile.NewService(profile.NewRepository(pool), authService, auditLogger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	betonaraService := betonara.NewService(betonara.Config{
		Repo:        betonara.NewRepository(pool),
		Companies:   companiesService,
		Jobs:        jobClient,
		Idempotency: idempotency,
		Audit:       auditLogger,
		Logger:      logger,
	})
	reportClient := report.NewClientWithOptions(cfg.GotenbergURL, report.Options{Landscape: true})
	pdfRenderer, err := betonara.NewPDFRenderer(reportClient)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}

	dashboardService := dashboard.NewService(dashboard.Sources{
		Users:      usersService.CountUsers,
		Roles:      rolesService.CountRoles,
		Companies:  companiesService.Count,
		Production: betonaraService,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Renderer:       renderer,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Gate:           sessionGate,
		Catalog:        navigation.Default,
		Metrics:        metrics,
		Readiness: map[string]app.ReadinessCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		AuthHandler:      authHandler,
		AuthAPI:          authAPI,
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, renderer),
		CompaniesHandler: companies.NewHandler(logger, companiesService, renderer),
		UsersHandler:     users.NewHandler(logger, usersService, renderer),
		RolesHandler:     roles.NewHandler(logger, rolesService, renderer),
		SettingsHandler:  settings.NewHandler(logger, settingsService, renderer, sessionGate),
		ProfileHandler:   profile.NewHandler(logger, profileService, renderer, authHandler),
		BetonaraHandler:  betonara.NewHandler(logger, betonaraService, renderer, sessionGate, pdfRenderer, settingsService),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
