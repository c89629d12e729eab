package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/admin"
	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/audit"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/medicalrecord"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/notification"
	"github.com/hms/hms/internal/platform/telemetry"
	"github.com/hms/hms/internal/platform/validation"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the notification dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// app holds the wired components shared by serve and the one-shot commands.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	pool       *pgxpool.Pool
	metrics    *telemetry.Metrics
	dispatcher *notification.Dispatcher
	events     *notification.KafkaPublisher
	recorder   *audit.Recorder

	handlers []routeRegistrar
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

func enabledChannels(cfg *config.Config) []notification.Channel {
	var ch []notification.Channel
	if cfg.EmailEnabled() {
		ch = append(ch, notification.ChannelEmail)
	}
	if cfg.SMSEnabled() {
		ch = append(ch, notification.ChannelSMS)
	}
	if cfg.EventsEnabled() {
		ch = append(ch, notification.ChannelEvent)
	}
	return ch
}

func newDispatcher(cfg *config.Config, pool *pgxpool.Pool, metrics *telemetry.Metrics, logger zerolog.Logger) (*notification.Dispatcher, *notification.KafkaPublisher) {
	opts := []notification.DispatcherOption{notification.WithObserver(metrics)}
	breaker := notification.BreakerSettings{}
	if cfg.EmailEnabled() {
		smtp := notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		opts = append(opts, notification.WithEmailSender(notification.NewBreakerEmailSender(smtp, breaker, logger)))
	}
	if cfg.SMSEnabled() {
		sms := notification.NewHTTPSMSSender(notification.SMSConfig{
			URL:      cfg.SMSAPIURL,
			APIKey:   cfg.SMSAPIKey,
			SenderID: cfg.SMSSenderID,
		})
		opts = append(opts, notification.WithSMSSender(notification.NewBreakerSMSSender(sms, breaker, logger)))
	}
	var events *notification.KafkaPublisher
	if cfg.EventsEnabled() {
		events = notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts = append(opts, notification.WithEventPublisher(events))
	}

	d := notification.NewDispatcher(
		notification.NewStorePG(pool),
		notification.NewInAppStorePG(pool),
		notification.NewTemplateEngine(),
		notification.DispatcherConfig{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			MaxAttempts:  cfg.OutboxMaxAttempts,
		},
		logger,
		opts...,
	)
	return d, events
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *app {
	metrics := telemetry.NewMetrics()
	tx := db.NewTxRunner(pool)

	outboxStore := notification.NewStorePG(pool)
	inApp := notification.NewInAppStorePG(pool)
	outbox := notification.NewOutbox(outboxStore, notification.NewTemplateEngine(), enabledChannels(cfg)...)

	directory := identity.NewService(identity.NewPatientRepo(pool), identity.NewDoctorRepo(pool), identity.NewReceptionistRepo(pool))
	departments := admin.NewService(admin.NewDepartmentRepo(pool))
	bills := billing.NewService(billing.NewRepo(pool), tx)
	records := medicalrecord.NewService(medicalrecord.NewRepo(pool), tx)

	appointments := appointment.NewService(
		appointment.NewRepo(pool), directory, bills, records, outbox, tx, logger,
		appointment.WithDefaultFee(cfg.DefaultConsultationFee),
		appointment.WithClock(time.Now, hospitalZone(cfg, logger)),
		appointment.WithObserver(metrics),
	)
	prescriptions := prescription.NewService(prescription.NewRepo(pool), appointments)

	auditRepo := audit.NewRepo(pool)
	recorder := audit.NewRecorder(auditRepo, logger, audit.DefaultBufferSize, metrics)

	dispatcher, events := newDispatcher(cfg, pool, metrics, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		metrics:    metrics,
		dispatcher: dispatcher,
		events:     events,
		recorder:   recorder,
		handlers: []routeRegistrar{
			identity.NewHandler(directory),
			admin.NewHandler(departments),
			appointment.NewHandler(appointments),
			billing.NewHandler(bills),
			medicalrecord.NewHandler(records),
			prescription.NewHandler(prescriptions),
			notification.NewHandler(outboxStore, inApp),
			audit.NewHandler(audit.NewService(auditRepo)),
		},
	}
}

// hospitalZone falls back to the host zone when TIMEZONE does not load.
func hospitalZone(cfg *config.Config, logger zerolog.Logger) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn().Err(err).Msg("using the host time zone")
		return time.Local
	}
	return loc
}

func (a *app) jwtConfig() auth.JWTConfig {
	return auth.JWTConfig{Issuer: a.cfg.JWTIssuer, SigningKey: []byte(a.cfg.JWTSecret)}
}

func (a *app) router() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(a.logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader, auth.DevRoleHeader},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.Tracing(otel.Tracer(serviceName), otel.GetTextMapPropagator()))
	e.Use(middleware.Metrics(a.metrics))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/metrics", a.metrics.Handler())

	authMW := auth.JWTMiddleware(a.jwtConfig())
	if cfg.ResolvedAuthMode() == "development" {
		a.logger.Warn().Msg("development auth enabled: X-Dev-User/X-Dev-Role headers are trusted")
		authMW = auth.DevAuthMiddleware(a.jwtConfig())
	}
	api := e.Group("/api", authMW, middleware.Audit(a.logger, a.recorder))
	for _, h := range a.handlers {
		h.RegisterRoutes(api)
	}
	return e
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.recorder.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("audit recorder did not drain")
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close kafka writer")
		}
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolOptions{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		SampleRate:  cfg.TracingSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	pool, err := connect(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := newApp(cfg, pool, logger)
	defer a.close()
	e := a.router()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
