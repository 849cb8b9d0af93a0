package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/api"
	"github.com/pimworks/golden-cli/internal/resilience"
	"github.com/pimworks/golden-cli/internal/session"
	"github.com/pimworks/golden-cli/internal/store"
)

// env bundles the wired subsystems commands run against.
type env struct {
	API    *api.Client
	Store  store.Store
	Tokens session.TokenSource
}

func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("closing store", zap.Error(err))
		}
	}
}

// initEnv constructs the API client and store from config.
func initEnv(ctx context.Context) (*env, error) {
	tokens := session.TokenSource(session.StaticTokenSource(cfg.API.Token))

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.API.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.API.MaxRetries
	}
	retryCfg.OnRetry = resilience.RetryLogger("api")

	timeout := 30 * time.Second
	if cfg.API.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.API.TimeoutSecs) * time.Second
	}

	client := api.NewClient(cfg.API.BaseURL, tokens,
		api.WithHTTPClient(&http.Client{Timeout: timeout}),
		api.WithRetryConfig(retryCfg),
	)

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	return &env{API: client, Store: st, Tokens: tokens}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
