package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medcore/hospital/internal/config"
	"github.com/medcore/hospital/internal/domain/careteam"
	"github.com/medcore/hospital/internal/domain/clinical"
	"github.com/medcore/hospital/internal/domain/facility"
	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/domain/portal"
	"github.com/medcore/hospital/internal/domain/scheduling"
	"github.com/medcore/hospital/internal/platform/auth"
	"github.com/medcore/hospital/internal/platform/db"
	"github.com/medcore/hospital/internal/platform/logging"
	"github.com/medcore/hospital/internal/platform/middleware"
	"github.com/medcore/hospital/internal/platform/telemetry"
	"github.com/medcore/hospital/internal/platform/textgen"
)

const shutdownTimeout = 10 * time.Second

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, Console: cfg.IsDev(), File: cfg.LogFile})
	defer logCloser.Close()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	revocations, closeRevocations, err := openRevocationStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to redis")
		return err
	}
	defer closeRevocations.Close()

	metrics := telemetry.New()
	metrics.WatchPool(pool)

	e, err := newServer(cfg, pool, revocations, metrics, logger)
	if err != nil {
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openRevocationStore uses Redis when configured and an in-process store
// otherwise.
func openRevocationStore(ctx context.Context, redisURL string, logger zerolog.Logger) (auth.RevocationStore, io.Closer, error) {
	if redisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; session revocation is local to this process")
		store := auth.NewMemoryRevocationStore()
		return store, closerFunc(store.Close), nil
	}
	rdb, err := auth.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisRevocationStore(rdb), rdb, nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// services holds the domain services built over the Postgres repositories.
type services struct {
	identity   *identity.Service
	careTeam   *careteam.Service
	scheduling *scheduling.Service
	clinical   *clinical.Service
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, metrics *telemetry.Metrics) *services {
	tx := db.NewTxManager(pool)
	patients := identity.NewPatientRepoPG(pool)

	people := identity.NewService(tx,
		identity.NewIdentityRepoPG(pool), patients,
		identity.NewProviderRepoPG(pool), identity.NewAdministratorRepoPG(pool),
		identity.NewPhoneNormalizer(cfg.PhoneRegion))
	careTeam := careteam.NewService(careteam.NewAssignmentRepoPG(pool), patients)

	return &services{
		identity: people,
		careTeam: careTeam,
		scheduling: scheduling.NewService(tx, scheduling.NewAppointmentRepoPG(pool), people,
			scheduling.WithConflictRecorder(metrics)),
		clinical: clinical.NewService(
			clinical.NewPrescriptionRepoPG(pool),
			clinical.NewReportRepoPG(pool),
			clinical.NewTestResultRepoPG(pool),
			careTeam, people),
	}
}

// newServer builds the echo instance with every route mounted.
func newServer(cfg *config.Config, pool *pgxpool.Pool, revocations auth.RevocationStore, metrics *telemetry.Metrics, logger zerolog.Logger) (*echo.Echo, error) {
	gate, err := auth.NewGate()
	if err != nil {
		return nil, fmt.Errorf("access gate: %w", err)
	}
	svc := newServices(pool, cfg, metrics)
	sessions := auth.NewSessionManager([]byte(cfg.SessionSigningKey), cfg.SessionTTL, cfg.IsProduction())
	describer := textgen.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.TextgenTimeout)

	e := newEcho(cfg, sessions, revocations, metrics, logger)
	registerOps(e, pool, metrics)

	g := newRouteGroups(e)
	limit := middleware.RateLimit(middleware.LoginRateLimitConfig(cfg.RateLimitRPS, cfg.RateLimitBurst))

	identity.NewHandler(svc.identity, sessions, revocations, metrics, logger).RegisterRoutes(g.root, limit)

	portal.NewHandler(svc.scheduling, svc.clinical, svc.identity, svc.careTeam, gate).
		RegisterRoutes(g.root, g.dashboard, g.patient, g.medical, g.admin)

	careteam.NewHandler(svc.careTeam, gate).RegisterRoutes(g.medical)

	appointments := scheduling.NewHandler(svc.scheduling, svc.identity, gate)
	appointments.RegisterPatientRoutes(g.patient)
	appointments.RegisterMedicalRoutes(g.medical)
	appointments.RegisterAdminRoutes(g.siteAdmin, g.records)

	records := clinical.NewHandler(svc.clinical, gate, describer, metrics, logger, cfg.Debug)
	records.RegisterMedicalRoutes(g.medical)
	records.RegisterPatientRoutes(g.patient)
	records.RegisterDashboardRoutes(g.dashboard)
	records.RegisterAdminRoutes(g.siteAdmin)

	facility.NewHandler(svc.identity, svc.scheduling, svc.clinical, svc.careTeam, gate, logger).
		RegisterRoutes(g.siteAdmin, g.records)

	return e, nil
}

func newEcho(cfg *config.Config, sessions *auth.SessionManager, revocations auth.RevocationStore, metrics *telemetry.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(auth.Session(sessions, revocations, logger))
	e.Use(middleware.Audit(logger))
	return e
}

// registerOps mounts the health and metrics endpoints.
func registerOps(e *echo.Echo, pinger db.Pinger, metrics *telemetry.Metrics) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", metrics.Handler())
}

type routeGroups struct {
	root      *echo.Group
	dashboard *echo.Group
	patient   *echo.Group
	medical   *echo.Group
	admin     *echo.Group
	siteAdmin *echo.Group
	records   *echo.Group
}

// newRouteGroups lays out the portal sections. Each role section only admits
// its own role.
func newRouteGroups(e *echo.Echo) routeGroups {
	dashboard := e.Group("/dashboard")
	adminOnly := auth.RequireRole(auth.RoleAdmin, "Only administrators can access this page.")
	return routeGroups{
		root:      e.Group(""),
		dashboard: dashboard,
		patient:   dashboard.Group("/patient", auth.RequireRole(auth.RolePatient, "Only patients can access this page.")),
		medical:   dashboard.Group("/medical", auth.RequireRole(auth.RoleMedical, "Only Medical Professionals can access this page.")),
		admin:     dashboard.Group("/admin", adminOnly),
		siteAdmin: e.Group("/admin", adminOnly),
		records:   e.Group("/facility-admin", adminOnly),
	}
}
