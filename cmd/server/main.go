package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filedrive/internal/api"
	"filedrive/internal/config"
	"filedrive/internal/database"
	"filedrive/internal/logging"
	"filedrive/internal/middleware"
	"filedrive/internal/migrations"
	"filedrive/internal/repository"
	"filedrive/internal/repository/memory"
	"filedrive/internal/repository/postgres"
	"filedrive/internal/service"
	"filedrive/internal/storage"
	"filedrive/internal/storage/awss3"
	"filedrive/internal/storage/s3"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logging.SlogLogger) error {
	log.Info(ctx, "配置加载完成，开始启动服务", "db_driver", cfg.DBDriver, "storage_driver", cfg.StorageDriver, "auth_mode", cfg.AuthMode)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}

	uploads := service.NewUploadCoordinator(store, gateway, log, service.UploadOptions{
		UploadURLTTL:  cfg.UploadURLTTL,
		ChunkURLTTL:   cfg.ChunkURLTTL,
		MaxUploadSize: cfg.MaxUploadSize,
	})
	files := service.NewFileService(store, gateway, log, cfg.DownloadURLTTL)

	auth, closeAuth := authMiddleware(ctx, cfg, log)
	defer closeAuth()

	router := api.NewRouter(cfg, auth, api.Handlers{
		Uploads:       api.NewUploadHandler(uploads, log, cfg.StaleUploadMaxAge),
		Files:         api.NewFileHandler(files, log),
		Notifications: api.NewNotificationHandler(uploads, cfg.NotifyToken, log),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      router,
		ErrorLog:     newStdLogger(log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "服务监听端口", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info(shutdownCtx, "服务已停止")
		return nil
	})
	return g.Wait()
}

// openStore 按 DB_DRIVER 选择元数据存储，postgres 启动时自动迁移。
func openStore(ctx context.Context, cfg *config.Config, log logging.Logger) (repository.Store, func(), error) {
	if cfg.DBDriver == "memory" {
		log.Warn(ctx, "using in-memory metadata store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.NewStore(db), func() { db.Close() }, nil
}

func openGateway(ctx context.Context, cfg *config.Config) (storage.Gateway, error) {
	switch cfg.StorageDriver {
	case "aws":
		endpoint := cfg.S3Endpoint
		if endpoint != "" && !strings.Contains(endpoint, "://") {
			scheme := "http://"
			if cfg.S3UseSSL {
				scheme = "https://"
			}
			endpoint = scheme + endpoint
		}
		return awss3.New(ctx, awss3.Config{
			Endpoint:  endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
	}
}

func authMiddleware(ctx context.Context, cfg *config.Config, log logging.Logger) (func(http.Handler) http.Handler, func()) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		v := middleware.NewJWTVerifier(ctx, middleware.JWTConfig{
			Secret:      cfg.JWTSecret,
			JWKSURL:     cfg.JWKSURL,
			UserInfoURL: cfg.AuthUserInfoURL,
			APIKey:      cfg.AuthAPIKey,
		}, log)
		return middleware.JWTAuth(v), v.Close
	case config.AuthModeNone:
		log.Warn(ctx, "AUTH_MODE=none trusts the X-User-ID header, do not expose this instance")
		return middleware.HeaderIdentity(), func() {}
	default:
		return middleware.APIKeyAuth(cfg.APIKeys), func() {}
	}
}
