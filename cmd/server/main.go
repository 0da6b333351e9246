// @title                      Estate API
// @version                    1.0
// @description                Identity, role seeding and transactional email for the estate platform.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
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

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/realfinance/estate-api/internal/api"
	"github.com/realfinance/estate-api/internal/api/metrics"
	"github.com/realfinance/estate-api/internal/core/ports"
	"github.com/realfinance/estate-api/internal/core/service"
	mongostore "github.com/realfinance/estate-api/internal/infrastructure/db/mongo"
	redisstore "github.com/realfinance/estate-api/internal/infrastructure/db/redis"
	"github.com/realfinance/estate-api/internal/infrastructure/db/sqlite"
	"github.com/realfinance/estate-api/internal/infrastructure/http/handlers"
	"github.com/realfinance/estate-api/internal/infrastructure/mail"
	"github.com/realfinance/estate-api/internal/pkg/config"
	"github.com/realfinance/estate-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Logger
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "estate-api",
	})
	log.Info().Str("env", cfg.Env).Str("db_driver", cfg.Database.Driver).Msg("starting")

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// 3. Credential store
	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("closing credential store")
		}
	}()

	// 4. Password-reset tokens
	redisClient, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()
	resets := redisstore.NewResetTokenStore(redisClient)

	// 5. Seed roles and the admin account before anything can be served
	report, err := service.Bootstrap(ctx, store, service.SeedPlan{
		Roles:         cfg.Seed.ExtraRoles,
		AdminEmail:    cfg.Seed.AdminEmail,
		AdminPassword: cfg.Seed.AdminPassword,
	}, logger.Component("bootstrap"))
	if err != nil {
		return err
	}
	metrics.RecordBootstrap(len(report.RolesCreated), report.AdminCreated)
	if report.GeneratedPassword != "" {
		announceGeneratedPassword(os.Stderr, log, cfg.Seed.AdminEmail, report.GeneratedPassword)
	}

	// 6. Tokens
	tokens, err := service.NewTokenService(service.TokenConfig{
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Key:       []byte(cfg.JWT.Key),
		TTL:       cfg.JWT.TTL,
		ClockSkew: cfg.JWT.ClockSkew,
	})
	if err != nil {
		return err
	}
	log.Info().Str("kid", tokens.KeyID()).Str("issuer", cfg.JWT.Issuer).Msg("token service ready")

	// 7. Mail
	smtp, err := mail.NewSMTPSender(mail.Config{
		Host:        cfg.SMTP.Server,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromName:    cfg.SMTP.FromName,
		FromAddress: cfg.SMTP.FromAddress,
		TLSPolicy:   cfg.SMTP.TLSPolicy,
		Timeout:     cfg.SMTP.Timeout,
	}, logger.Component("mail"))
	if err != nil {
		return err
	}
	mailer := metrics.NewInstrumentedSender(smtp)

	// 8. Services
	authService := service.NewAuthService(store, tokens, resets, mailer, cfg.Auth.ResetTokenTTL, logger.Component("auth"))

	// 9. HTTP
	e := api.NewRouter(api.Deps{
		Log:         logger.Component("http"),
		Development: cfg.IsDevelopment(),
		AuthService: authService,
		Tokens:      tokens,
		Roles:       store,
		Mailer:      mailer,
		Readiness: map[string]handlers.Pinger{
			"store": store,
			"redis": resets,
		},
		AuthRate:  rate.Limit(cfg.Auth.RateLimit),
		AuthBurst: cfg.Auth.RateBurst,
	})

	// 10. Serve until a signal arrives
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// announceGeneratedPassword writes the one-time admin password to the
// operator's terminal only. The structured log records that it happened.
func announceGeneratedPassword(w io.Writer, log zerolog.Logger, email, password string) {
	fmt.Fprintf(w, "\nOne-time password for %s: %s\nRotate it after first login.\n\n", email, password)
	log.Warn().
		Str("email", email).
		Msg("admin account created with a one-time password, printed to stderr")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (ports.CredentialStore, error) {
	switch cfg.Driver {
	case "mongo":
		store, err := mongostore.Open(ctx, mongostore.Config{
			URI:      cfg.Connection,
			Database: cfg.MongoDB,
			AppName:  "estate-api",
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		db, err := sqlite.New(cfg.Connection, log.With().Str("component", "sqlite").Logger())
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqlite.NewCredentialStore(db), nil
	}
}
