package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sjc1990app/server/internal/approval"
	"github.com/sjc1990app/server/internal/auth"
	"github.com/sjc1990app/server/internal/classroom"
	"github.com/sjc1990app/server/internal/config"
	"github.com/sjc1990app/server/internal/db"
	httphandler "github.com/sjc1990app/server/internal/http"
	"github.com/sjc1990app/server/internal/http/handlers"
	"github.com/sjc1990app/server/internal/middleware"
	"github.com/sjc1990app/server/internal/notify"
	"github.com/sjc1990app/server/internal/profile"
	"github.com/sjc1990app/server/internal/repo"
	"github.com/sjc1990app/server/internal/repo/memstore"
	"github.com/sjc1990app/server/internal/storage"
	"go.uber.org/zap"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := newLogger(cfg.DevMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	repos, closeStore := openRepos(ctx, cfg, log)
	defer closeStore()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		repos.Challenges = repo.NewRedisChallengeRepo(rdb)
		log.Info("verification challenges stored in redis")
	}

	if cfg.ClassroomsSeedFile != "" {
		n, err := classroom.SeedFromFile(ctx, repos.Classrooms, cfg.ClassroomsSeedFile)
		if err != nil {
			log.Fatal("failed to seed classrooms", zap.Error(err))
		}
		log.Info("classrooms seeded", zap.Int("count", n))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	notifier, closeNotifier, err := newNotifier(cfg, log)
	if err != nil {
		log.Fatal("failed to configure notifier", zap.Error(err))
	}
	defer closeNotifier()
	instrumented := notify.Instrument(notifier, registry)

	objects, err := newObjectStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to configure object store", zap.Error(err))
	}

	stop := make(chan struct{})
	defer close(stop)

	// Services
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	verification := auth.NewVerificationService(repos.Accounts, repos.Challenges, instrumented, jwtService, auth.VerificationOptions{
		Salt:        cfg.OTPSalt,
		AppName:     cfg.AppName,
		IsAdmin:     cfg.IsAdminPhone,
		SendLimiter: middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.PhoneSendLimit, stop),
	}, log)
	approvals := approval.NewService(repos.Accounts, repos.Approvals, instrumented, cfg.AppName, log)
	profiles := profile.NewService(repos.Accounts, repos.Preferences, objects, log)
	classrooms := classroom.NewService(repos.Accounts, repos.Classrooms, repos.Memberships, log)

	limiters := httphandler.Limiters{
		Register: middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RegisterRateLimit, stop),
		Verify:   middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.VerifyRateLimit, stop),
	}

	router := httphandler.NewRouter(httphandler.RouterConfig{
		Routes: httphandler.Routes(httphandler.Handlers{
			Auth:       handlers.NewAuthHandler(verification, approvals, log),
			Users:      handlers.NewUserHandler(profiles, classrooms, log),
			Classrooms: handlers.NewClassroomHandler(classrooms, log),
		}, limiters),
		Tokens:   jwtService,
		Log:      log,
		Registry: registry,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Bool("dev_mode", cfg.DevMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("server exited")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openRepos connects to Postgres and runs migrations. In dev mode without a
// database URL everything lives in memory.
func openRepos(ctx context.Context, cfg *config.Config, log *zap.Logger) (repo.Repos, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return memstore.New().Repos(), func() {}
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := db.Migrate(database); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	return repo.NewPostgres(database), func() { closeDB(database, log) }
}

func closeDB(database *sql.DB, log *zap.Logger) {
	if err := database.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

// newNotifier publishes SMS events to Kafka. Dev mode without brokers logs
// them instead.
func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		if !cfg.DevMode {
			return nil, nil, errors.New("KAFKA_BROKERS is required outside dev mode")
		}
		log.Warn("KAFKA_BROKERS not set in dev mode, notifications are logged only")
		return notify.NewLogNotifier(log), func() {}, nil
	}
	producer := notify.NewKafkaNotifier(notify.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		Username: cfg.KafkaUsername,
		Password: cfg.KafkaPassword,
	})
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (profile.ObjectStore, error) {
	if cfg.DevMode && cfg.S3Endpoint == "" {
		log.Warn("S3_ENDPOINT not set in dev mode, photo uploads use an in-memory store")
		return storage.NewMemoryStore(cfg.CDNBaseURL), nil
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Region:     cfg.AWSRegion,
		Bucket:     cfg.PhotosBucket,
		Endpoint:   cfg.S3Endpoint,
		CDNBaseURL: cfg.CDNBaseURL,
	})
}
