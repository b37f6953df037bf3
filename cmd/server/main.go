package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image_gen/internal/api"
	"image_gen/internal/api/handler"
	"image_gen/internal/api/middleware"
	"image_gen/internal/app/generator"
	"image_gen/internal/app/service"
	"image_gen/internal/common/security"
	"image_gen/internal/domain/repository"
	"image_gen/internal/platform/blob"
	"image_gen/internal/platform/cache"
	"image_gen/internal/platform/config"
	"image_gen/internal/platform/database"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	port := pflag.String("port", "", "listen port, overrides API_PORT")
	migrate := pflag.Bool("migrate", true, "apply database migrations on startup")
	pflag.Parse()

	// 1. Load Configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.APIPort = *port
	}

	log := newLogger(cfg)
	if err := run(cfg, *migrate, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.IsProduction() {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log.Level(level).With().Timestamp().Str("service", "image_gen").Logger()
}

func run(cfg *config.Config, migrate bool, log zerolog.Logger) error {
	ctx := context.Background()

	// 2. Initialize Database and Repositories
	var (
		db     *sql.DB
		users  repository.UserRepository
		images repository.ImageRepository
	)
	switch cfg.StoreDriver {
	case "postgres":
		var err error
		db, err = database.Open(ctx, cfg.DBConnStr)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info().Msg("database connected")

		if migrate {
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
		}
		users = repository.NewPgUserRepository(db)
		images = repository.NewPgImageRepository(db)
	default:
		memUsers := repository.NewMemoryUserRepository()
		users = memUsers
		images = repository.NewMemoryImageRepository(memUsers)
		log.Warn().Msg("using in-memory stores, data is lost on restart")
	}

	// 3. Initialize Blob Store
	blobs, err := newBlobStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	log.Info().Str("backend", cfg.BlobBackend).Msg("blob store ready")

	// 4. Initialize Redis (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	}

	// 5. Rate Limiters
	limiterStore, err := middleware.NewLimiterStore(rdb)
	if err != nil {
		return err
	}
	ipLimit, err := middleware.NewIPRateLimiter(cfg.IPRateLimit, limiterStore, log)
	if err != nil {
		return err
	}
	generateLimit, err := middleware.NewUserRateLimiter(cfg.GenerateRateLimit, limiterStore, log)
	if err != nil {
		return err
	}

	// 6. Initialize Services
	if cfg.ReplicateAPIToken == "" {
		log.Warn().Msg("REPLICATE_API_TOKEN is empty, generation requests will fail")
	}
	tokens := security.NewTokenIssuer(cfg.JWTKey)
	replicate := generator.NewReplicateClient(generator.ReplicateConfig{
		APIToken: cfg.ReplicateAPIToken,
		BaseURL:  cfg.ReplicateBaseURL,
		Model:    cfg.ReplicateModel,
	}, log)

	authService := service.NewAuthService(users, tokens, service.AuthConfig{
		SignupTokenTTL: cfg.SignupTokenTTL,
		LoginTokenTTL:  cfg.LoginTokenTTL,
		AdminSecret:    cfg.AdminSecret,
	}, log)
	generationService := service.NewGenerationService(replicate, images, blobs, cfg.GenerationTimeout, log)
	imageService := service.NewImageService(images, blobs)

	// 7. Initialize Router & HTTP Server
	router := api.NewRouter(api.RouterConfig{
		Auth:        handler.NewAuthHandler(authService, log),
		Image:       handler.NewImageHandler(generationService, imageService, generateLimit, log),
		Admin:       handler.NewAdminHandler(imageService, log),
		Health:      handler.NewHealthHandler(db, rdb),
		Tokens:      tokens,
		Users:       users,
		Log:         log,
		Secure:      middleware.NewSecure(middleware.SecureOptions(!cfg.IsProduction())),
		IPRateLimit: ipLimit,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Metrics:     true,
	})

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Longer than the provider deadline so a timeout still gets a response.
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.APIPort).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("listen on %s: %w", cfg.APIPort, err)
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, db *sql.DB) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "postgres":
		return blob.NewPostgresStore(db), nil
	case "s3":
		client, err := blob.NewS3Client(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return blob.NewS3Store(client, cfg.S3Bucket), nil
	default:
		return blob.NewMemoryStore(), nil
	}
}
