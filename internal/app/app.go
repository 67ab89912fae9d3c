package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/config"
	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/relay/redisrelay"
	"github.com/vovakirdan/marketchat-server/internal/store"
	"github.com/vovakirdan/marketchat-server/internal/store/mongo"
	"github.com/vovakirdan/marketchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/marketchat-server/internal/transport/http"
)

// DefaultTokenTTL is the lifetime of tokens minted by the dev CLI.
const DefaultTokenTTL = 24 * time.Hour

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	relay           *redisrelay.Relay
	log             *zerolog.Logger
}

// JWTConfig derives the token verification settings from cfg.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      DefaultTokenTTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("jwt_secret is the default placeholder; set a real secret before exposing the server")
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	opts := core.Options{
		StoreTimeout:     cfg.StoreTimeout,
		MaxContentLength: cfg.MaxContentLength,
		Logger:           logger,
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		relay, err := redisrelay.New(ctx, client, cfg.Redis.Channel, logger)
		if err != nil {
			_ = client.Close()
			a.cleanup()
			return nil, fmt.Errorf("init relay: %w", err)
		}
		a.relay = relay
		opts.Relay = relay
		opts.Tracker = redisrelay.NewPresence(client, cfg.Redis.KeyPrefix)
		logger.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("redis relay enabled")
	}

	a.hub = core.NewHub(st, opts)
	a.server = transporthttp.NewServer(a.hub, auth.NewGatekeeper(JWTConfig(cfg)), st, cfg, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		st, err := mongo.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("database", cfg.Store.MongoDatabase).Msg("mongodb store initialized")
		return st, nil
	default:
		st, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("db_path", cfg.Store.SQLitePath).Msg("database initialized")
		return st, nil
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := a.hub.Run(hubCtx); err != nil {
			a.log.Error().Err(err).Msg("hub relay stopped")
		}
	}()
	defer func() {
		stopHub()
		<-hubDone
		a.cleanup()
	}()

	if a.relay != nil {
		select {
		case <-a.relay.Ready():
		case <-hubDone:
			return errors.New("relay subscription failed")
		case <-ctx.Done():
			return nil
		}
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting http server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes the relay and the store.
func (a *App) cleanup() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close relay")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
