package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/foodpoint_auth/internal/events"
	"github.com/Skotchmaster/foodpoint_auth/internal/httpserver"
	"github.com/Skotchmaster/foodpoint_auth/internal/notify"
	"github.com/Skotchmaster/foodpoint_auth/internal/ratelimit"
	"github.com/Skotchmaster/foodpoint_auth/internal/repo"
	"github.com/Skotchmaster/foodpoint_auth/internal/service"
	"github.com/Skotchmaster/foodpoint_auth/pkg/config"
	"github.com/Skotchmaster/foodpoint_auth/pkg/db"
	"github.com/Skotchmaster/foodpoint_auth/pkg/hash"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
	authmw "github.com/Skotchmaster/foodpoint_auth/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/foodpoint_auth/pkg/middleware/logging"
	"github.com/Skotchmaster/foodpoint_auth/pkg/mongodb"
	"github.com/Skotchmaster/foodpoint_auth/pkg/tokens"
)

type storage struct {
	users     repo.UserStore
	rateStore ratelimit.Store
	close     func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		gdb, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repo.AutoMigrate(gdb); err != nil {
			_ = db.Close(gdb)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		rs := ratelimit.NewGormStore(gdb)
		if err := rs.Migrate(); err != nil {
			_ = db.Close(gdb)
			return nil, fmt.Errorf("migrate rate limits: %w", err)
		}
		return &storage{
			users:     repo.NewGormRepo(gdb),
			rateStore: rs,
			close:     func(context.Context) error { return db.Close(gdb) },
		}, nil

	default:
		client, err := mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		users := repo.NewMongoRepo(client.Database())
		if err := users.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		rs := ratelimit.NewMongoStore(client.Database())
		if err := rs.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("ensure rate limit indexes: %w", err)
		}
		return &storage{users: users, rateStore: rs, close: client.Close}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	st, err := openStorage(initCtx, cfg)
	cancel()
	if err != nil {
		logger.Error("storage_init_failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewFromConfig(cfg, st.rateStore)

	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher = events.NewProducer(brokers, cfg.KafkaTopic)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.MailEnabled() {
		notifier = notify.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunAPIBase, cfg.MailFrom)
	}

	issuer := tokens.NewIssuer(tokens.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	})
	hasher := hash.NewHasher(cfg.BcryptCost, cfg.HashConcurrency)

	authSvc := service.NewAuthService(st.users, issuer, hasher, publisher, notifier)
	usersSvc := &service.UsersService{Repo: st.users, Hasher: hasher, Events: publisher}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.HTTPErrorHandler
	e.Validator = httpserver.NewValidator()

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		loggingmw.RequestLogger(logger),
		middleware.BodyLimit("1M"),
	)
	if origins := cfg.AllowOrigins(); len(origins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:  &httpserver.AuthHTTP{Svc: authSvc},
		UsersHandler: &httpserver.UsersHTTP{Svc: usersSvc},
		Auth:         authmw.NewBearerAuth(issuer),
		Limiter:      limiter,
		Store:        st.users,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("http_server_started", "addr", srv.Addr, "backend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka_close_failed", "error", err)
	}
	if err := st.close(ctx); err != nil {
		logger.Error("storage_close_failed", "error", err)
	}

	logger.Info("shutdown_complete")
}
