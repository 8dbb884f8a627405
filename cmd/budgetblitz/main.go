package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/budgetblitz/budgetblitz/internal/app"
	"github.com/budgetblitz/budgetblitz/internal/auth"
	"github.com/budgetblitz/budgetblitz/internal/codes"
	"github.com/budgetblitz/budgetblitz/internal/observability"
	"github.com/budgetblitz/budgetblitz/internal/platform/cache"
	"github.com/budgetblitz/budgetblitz/internal/platform/db"
	"github.com/budgetblitz/budgetblitz/internal/rbac"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	"github.com/budgetblitz/budgetblitz/internal/token"
	"github.com/budgetblitz/budgetblitz/internal/users"
	"github.com/budgetblitz/budgetblitz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	keys, err := token.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		logger.Error("load signing keys", slog.Any("error", err))
		os.Exit(1)
	}
	tokens, err := token.NewService(keys, token.Config{
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
		ResetTTL:   cfg.JWTResetTTL,
	})
	if err != nil {
		logger.Error("init token service", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	validate := shared.NewValidator(cfg.DisposableEmailDomains)
	passwordHasher := shared.NewBcryptHasher(cfg.BcryptCost)
	codeHasher := shared.NewBcryptHasher(cfg.CodeHashCost)

	userRepo := users.NewRepository(dbpool)
	codeStore := codes.NewStore(codes.NewRepository(dbpool), codeHasher, codes.Config{TTL: cfg.CodeTTL})

	authService, err := auth.NewService(userRepo, codeStore, tokens, passwordHasher, jobs.NewMailer(jobClient), logger, auth.WithEvents(metrics))
	if err != nil {
		logger.Error("init auth service", slog.Any("error", err))
		os.Exit(1)
	}
	attempts := shared.NewAttemptLimiter(redisClient, "auth", cfg.CodeAttemptLimit, cfg.CodeAttemptWindow)
	authHandler := auth.NewHandler(logger, authService, validate, attempts)
	authFilter := auth.NewFilter(tokens, userRepo, logger, nil)

	rbacMiddleware := rbac.Middleware{Logger: logger}
	usersService := users.NewService(userRepo, passwordHasher, logger)
	usersHandler := users.NewHandler(logger, usersService, validate, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    authHandler,
		AuthFilter:     authFilter,
		UsersHandler:   usersHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
		RBACMiddleware: rbacMiddleware,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
