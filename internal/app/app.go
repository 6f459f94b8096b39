package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/apulibrary/backend/internal/adapter/postgres"
	itemrepo "github.com/apulibrary/backend/internal/adapter/postgres/item"
	userrepo "github.com/apulibrary/backend/internal/adapter/postgres/user"
	"github.com/apulibrary/backend/internal/auth"
	"github.com/apulibrary/backend/internal/config"
	"github.com/apulibrary/backend/internal/service/catalog"
	"github.com/apulibrary/backend/internal/subscription"
	"github.com/apulibrary/backend/internal/transport/graphql"
	"github.com/apulibrary/backend/internal/transport/graphql/dataloader"
	"github.com/apulibrary/backend/internal/transport/graphql/resolver"
	"github.com/apulibrary/backend/internal/transport/middleware"
	"github.com/apulibrary/backend/internal/transport/rest"
	"github.com/apulibrary/backend/internal/transport/ws"
)

// Run is the application entry point. It loads configuration, connects to
// the database, runs migrations, wires every component, and serves HTTP
// until ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(ctx, logger, cfg.Database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Storage and domain layers.
	users := userrepo.New(pool)
	items := itemrepo.New(pool)
	registry := subscription.NewRegistry(logger)
	svc := catalog.NewService(logger, items, users, registry)

	// Transport layers.
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	res := resolver.NewResolver(logger, svc)
	exec := graphql.NewExecutor(res, graphql.NewErrorPresenter(logger))
	repos := &dataloader.Repos{Owner: users, Item: items}

	gqlHandler := graphql.NewHandler(logger, exec, int64(cfg.GraphQL.MaxQueryBytes))
	channelHandler := ws.NewHandler(logger, exec, registry, repos, int64(cfg.GraphQL.MaxQueryBytes))
	health := rest.NewHealthHandler(pool, registry, subscription.TopicItemAdded, BuildVersion())

	mux := http.NewServeMux()
	mux.Handle(cfg.GraphQL.Path, dataloader.Middleware(repos)(gqlHandler))
	mux.Handle(cfg.GraphQL.ChannelPath, channelHandler)
	mux.HandleFunc("/live", health.Live)
	mux.HandleFunc("/ready", health.Ready)
	mux.HandleFunc("/health", health.Health)

	chain := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.CORS(cfg.CORS),
		middleware.Auth(jwtManager),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      chain(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server listening",
		slog.String("addr", srv.Addr),
		slog.String("graphql_path", cfg.GraphQL.Path),
		slog.String("channel_path", cfg.GraphQL.ChannelPath),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runMigrations applies pending goose migrations. goose needs database/sql,
// so it gets its own short-lived connection next to the pgx pool.
func runMigrations(ctx context.Context, logger *slog.Logger, cfg config.DatabaseConfig) error {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	if len(results) > 0 {
		logger.Info("migrations applied", slog.Int("count", len(results)))
	}
	return nil
}
