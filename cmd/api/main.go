package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/auth"
	"github.com/ahwlsqja/walletlogin/internal/common/handler"
	"github.com/ahwlsqja/walletlogin/internal/common/middleware"
	"github.com/ahwlsqja/walletlogin/internal/config"
	pkgdb "github.com/ahwlsqja/walletlogin/pkg/db"
	"github.com/ahwlsqja/walletlogin/pkg/nonce"
	pkgredis "github.com/ahwlsqja/walletlogin/pkg/redis"
	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ahwlsqja/walletlogin/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// @title Wallet Login API
// @version 1.0
// @description Nonce issuance and wallet signature sign-in for the wallet login client

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// 1) 로거 초기화
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2) 설정 로드
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("addr", cfg.Server.Addr()),
	)

	// 3) DB 초기화
	db, err := pkgdb.New(pkgdb.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 4) Redis 초기화
	rdb := pkgredis.New(cfg.Redis.Client())
	defer rdb.Close()

	// 5) 연결 테스트 (fail-fast)
	if err := testConnections(db, rdb); err != nil {
		logger.Fatal("failed to test connections", zap.Error(err))
	}

	// 6) 라우터 구성
	router, err := setupRouter(cfg, logger, db, rdb)
	if err != nil {
		logger.Fatal("failed to set up router", zap.Error(err))
	}

	// 7) HTTP 서버 생성
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8) 서버 비동기 시작
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("addr", cfg.Server.Addr()))

	// 9) 종료 시그널 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// 10) Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func testConnections(db *sql.DB, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pkgdb.Ping(ctx, db); err != nil {
		return err
	}
	return pkgredis.Ping(ctx, rdb)
}

func setupRouter(cfg *config.Config, logger *zap.Logger, db *sql.DB, rdb *redis.Client) (*gin.Engine, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger, "/health", "/ready"))

	// Health endpoints
	redisPinger := handler.PingFunc(func(ctx context.Context) error {
		return pkgredis.Ping(ctx, rdb)
	})
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"db":    db,
		"redis": redisPinger,
	}, logger)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// ============================================================================
	// Dependencies Setup
	// ============================================================================

	// Session rows for issued tokens
	sessions := auth.NewMySQLSessionRepository(pkgdb.NewTxRunner(db))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sessions.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	// Nonce store for signature replay protection
	nonceStore := nonce.NewRedisStoreWithTTL(rdb, cfg.Auth.NonceTTL, logger)

	// personal_sign verifier for wallet signatures
	verifier := sigverify.NewEthVerifier(logger)

	// Session token issuer
	tokens, err := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	// ============================================================================
	// Service & Handler Setup
	// ============================================================================

	authService := auth.NewService(nonceStore, verifier, tokens, sessions, cfg.Auth.Statement, logger)
	authHandler := auth.NewHandler(authService)

	// ============================================================================
	// Route Registration
	// ============================================================================

	api := router.Group("/api")
	authHandler.RegisterRoutes(api)

	return router, nil
}
