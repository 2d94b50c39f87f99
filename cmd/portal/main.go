package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/internal/config"
	"github.com/goliatone/go-portal/internal/store"
	"github.com/goliatone/go-portal/metrics"
	"github.com/goliatone/go-portal/provider/jwks"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *bun.DB
	repo      portal.RepositoryManager
	metrics   *metrics.Collector
	audit     *portal.AuditRecorder
	validator portal.TokenValidator
	auther    *portal.Authenticator
	srv       router.Server[*fiber.App]
	closers   []func()
}

func (a *App) GetLogger(component string) portal.Logger {
	return portal.NewLogrusLogger(a.logger, component)
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	app := &App{
		config:  cfg,
		logger:  NewLogger(cfg),
		metrics: metrics.New(),
	}

	app.logger.Debug(print.MaybePrettyJSON(cfg))

	portal.DefaultPhoneRegion = cfg.PhoneRegion

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		app.logger.WithError(err).Fatal("persistence")
	}
	defer app.db.Close()

	if err := WithAuth(ctx, app); err != nil {
		app.logger.WithError(err).Fatal("auth")
	}
	defer app.close()

	if err := WithHTTPServer(ctx, app); err != nil {
		app.logger.WithError(err).Fatal("http server")
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           app.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		app.logger.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.WithError(err).Error("metrics server")
		}
	}()

	go func() {
		app.logger.WithField("addr", cfg.HTTPAddr).Info("portal listening")
		if err := app.srv.Serve(cfg.HTTPAddr); err != nil {
			app.logger.WithError(err).Fatal("portal server")
		}
	}()

	sig := WaitExitSignal()
	app.logger.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		app.logger.WithError(err).Warn("portal shutdown")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		app.logger.WithError(err).Warn("metrics shutdown")
	}
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config) *logrus.Logger {
	lgr := logrus.New()
	lgr.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	lgr.SetLevel(level)

	if cfg.LogFormat == "json" {
		lgr.SetFormatter(&logrus.JSONFormatter{})
	} else {
		lgr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return lgr
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := store.Open(ctx, app.config.GetPersistence(), app.GetLogger("persistence"))
	if err != nil {
		return err
	}
	app.db = db

	repo := portal.NewRepositoryManager(app.db)
	if err := repo.Validate(); err != nil {
		return err
	}
	app.repo = repo

	app.audit = portal.NewAuditRecorder(repo.AuditLogs(),
		portal.WithAuditLogger(app.GetLogger("audit")),
		portal.WithAuditMetrics(app.metrics),
	)
	return nil
}

func WithAuth(_ context.Context, app *App) error {
	tokens := portal.NewTokenServiceFromConfig(app.config, app.GetLogger("tokens"))
	app.validator = tokens

	if app.config.UsesHostedIdentity() {
		v, err := jwks.New(jwks.Config{
			URLs:     app.config.JWKSURLs,
			Issuer:   app.config.JWKSIssuer,
			Audience: app.config.JWKSAudience,
			Logger:   app.GetLogger("jwks"),
		})
		if err != nil {
			return err
		}
		app.validator = v
		app.closers = append(app.closers, v.Close)
	}

	provider := portal.NewCredentialIdentityProvider(app.repo.Credentials(), portal.BcryptHasher{}, app.GetLogger("identity"))

	app.auther = portal.NewAuthenticator(provider, app.repo.Principals(), tokens,
		portal.WithAuthenticatorLogger(app.GetLogger("auth")),
		portal.WithAuthenticatorAudit(app.audit),
		portal.WithAuthenticatorLimiter(portal.NewAttemptLimiter(app.config.RedeemEvery, app.config.RedeemBurst)),
		portal.WithTokenValidator(app.validator),
	)
	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: false,
			StrictRouting:     false,
		}))
	})

	guard := portal.NewRouteGuard(app.config, app.validator, app.auther.Resolver(),
		portal.WithRouteGuardMetrics(app.metrics),
		portal.WithRouteGuardLogger(app.GetLogger("guard")),
	)

	redeem := portal.NewRedeemInviteHandler(app.repo,
		portal.WithRedeemAuditRecorder(app.audit),
		portal.WithRedeemLimiter(portal.NewAttemptLimiter(app.config.RedeemEvery, app.config.RedeemBurst)),
		portal.WithRedeemMetrics(app.metrics),
		portal.WithRedeemLogger(app.GetLogger("invites")),
	)

	issue := portal.NewIssueInviteHandler(app.repo, app.audit)

	transitions := portal.NewRecordStateMachine(app.repo,
		portal.WithStateMachineAuditRecorder(app.audit),
		portal.WithStateMachineMetrics(app.metrics),
	)

	workflows := portal.NewWorkflows(app.repo, app.audit,
		portal.WithWorkflowsLogger(app.GetLogger("workflows")),
	)

	watermarks := portal.NewWatermarks(app.repo,
		portal.WithWatermarksLogger(app.GetLogger("watermarks")),
	)

	controller := portal.NewController(app.repo, app.auther, guard, redeem, issue, transitions, workflows, watermarks,
		portal.WithControllerLogger(app.GetLogger("http")),
		portal.WithControllerConfig(portal.ControllerConfig{
			CookieName:       app.config.ContextKey,
			DefaultInviteTTL: app.config.InviteTTL,
		}),
	)

	controller.RegisterRoutes(srv.Router())

	app.srv = srv
	return nil
}

func (a *App) close() {
	for _, fn := range a.closers {
		fn()
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
