// Command authd runs the Avi Health identity service: registration, login
// and token-gated account management over HTTP.
//
// @title                       Avi Health Identity API
// @version                     1.0
// @description                 Credential issuance and authorization for the Avi Health record backend.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/avi-health/identity-service/internal/api"
	"github.com/avi-health/identity-service/internal/api/handler"
	"github.com/avi-health/identity-service/internal/core/ports"
	"github.com/avi-health/identity-service/internal/core/service"
	"github.com/avi-health/identity-service/internal/infrastructure/audit"
	"github.com/avi-health/identity-service/internal/infrastructure/config"
	"github.com/avi-health/identity-service/internal/infrastructure/crypto"
	"github.com/avi-health/identity-service/internal/infrastructure/db/memory"
	mongostore "github.com/avi-health/identity-service/internal/infrastructure/db/mongo"
	redisstore "github.com/avi-health/identity-service/internal/infrastructure/db/redis"
	"github.com/avi-health/identity-service/internal/infrastructure/queue"
	"github.com/avi-health/identity-service/internal/infrastructure/token"
	"github.com/avi-health/identity-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

// backend bundles the selected credential store with what it needs at
// runtime and on shutdown.
type backend struct {
	store     ports.CredentialStore
	auditRepo ports.AuditRepository
	readiness map[string]handler.Pinger
	close     func(context.Context)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "authd",
	})

	codec, err := token.NewJWTCodec(token.Config{
		Secret:         cfg.Token.Secret,
		MinSecretBytes: cfg.Token.MinSecretBytes,
		TTL:            cfg.Token.TTL,
		Issuer:         cfg.Token.Issuer,
	})
	if err != nil {
		log.Error().Err(err).Msg("refusing to start without a usable signing secret")
		return err
	}
	hasher := crypto.NewBcryptHasher(cfg.Token.BcryptCost)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		be.close(closeCtx)
	}()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, be.auditRepo, log)
	dispatcher.Start(workerCtx)

	authService := service.NewAuthService(be.store, hasher, codec, dispatcher, log)
	authorizer := service.NewAuthorizer(be.store, codec, dispatcher, log)

	if cfg.Admin.Enabled() {
		admin, created, err := authService.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return err
		}
		log.Info().Str("identity_id", admin.ID).Bool("created", created).Msg("admin account ready")
	}

	e := api.NewRouter(api.Deps{
		Log:         log,
		AuthService: authService,
		Authorizer:  authorizer,
		Readiness:   be.readiness,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.StoreBackend).
			Dur("token_ttl", codec.TTL()).
			Int("bcrypt_cost", hasher.Cost()).
			Msg("identity service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		store := mongostore.NewCredentialStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongo credential store ready")
		return &backend{
			store:     store,
			auditRepo: mongostore.NewAuditRepository(db),
			readiness: map[string]handler.Pinger{"mongodb": store},
			close:     func(ctx context.Context) { _ = client.Disconnect(ctx) },
		}, nil

	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		store := redisstore.NewCredentialStore(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis credential store ready")
		return &backend{
			store:     store,
			auditRepo: audit.NewLogRepository(log),
			readiness: map[string]handler.Pinger{"redis": store},
			close:     func(context.Context) { _ = client.Close() },
		}, nil

	default:
		log.Warn().Msg("using in-memory credential store; identities are lost on restart")
		store := memory.NewCredentialStore()
		return &backend{
			store:     store,
			auditRepo: audit.NewLogRepository(log),
			readiness: map[string]handler.Pinger{"memory": store},
			close:     func(context.Context) {},
		}, nil
	}
}
