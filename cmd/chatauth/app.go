package main

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/avorobev/chatauth/internal/apiclient"
	"github.com/avorobev/chatauth/internal/db"
	"github.com/avorobev/chatauth/internal/logger"
	"github.com/avorobev/chatauth/internal/repository"
	"github.com/avorobev/chatauth/internal/repository/memory"
	sqlitestore "github.com/avorobev/chatauth/internal/repository/sqlite"
	valkeystore "github.com/avorobev/chatauth/internal/repository/valkey"
	"github.com/avorobev/chatauth/internal/service/authflow"
	"github.com/avorobev/chatauth/internal/service/session"
)

// App wires the credential store, session manager, request layer and auth
// flows together for the CLI commands.
type App struct {
	Logger   logger.Logger
	Sessions *session.Manager
	API      *apiclient.Client
	Auth     *authflow.Service

	closeFn func() error
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	store, closeFn, err := newStore(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("error while opening credential store: %w", err)
	}

	sessions, err := session.NewManager(ctx, session.Config{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error while initializing session manager: %w", err)
	}

	api, err := apiclient.New(apiclient.Config{
		BaseURL: c.BaseURL,
		Tokens:  sessions,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error while initializing api client: %w", err)
	}

	auth, err := authflow.NewService(authflow.Config{
		API:      api,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error while initializing auth flows: %w", err)
	}

	return &App{
		Logger:   logger,
		Sessions: sessions,
		API:      api,
		Auth:     auth,
		closeFn:  closeFn,
	}, nil
}

func (a *App) Close() error {
	if a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}

func newStore(ctx context.Context, c *Config, l logger.Logger) (repository.TokenStore, func() error, error) {
	switch c.StoreBackend {
	case "sqlite", "":
		path, err := c.ResolveStorePath()
		if err != nil {
			return nil, nil, err
		}
		conn, err := db.ConnectAndMigrate(path)
		if err != nil {
			return nil, nil, err
		}
		return sqlitestore.NewStore(conn, l), conn.Close, nil

	case "valkey":
		client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{c.ValkeyAddr}})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			client.Close()
			return nil
		}
		return valkeystore.NewStore(client, "", l), closeFn, nil

	case "memory":
		return memory.NewStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", c.StoreBackend)
	}
}
