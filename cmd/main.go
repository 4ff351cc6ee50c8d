package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/sbilibin2017/gw-user-signup/docs"
	"github.com/sbilibin2017/gw-user-signup/internal/handlers"
	"github.com/sbilibin2017/gw-user-signup/internal/logger"
	"github.com/sbilibin2017/gw-user-signup/internal/middlewares"
	"github.com/sbilibin2017/gw-user-signup/internal/notifiers"
	"github.com/sbilibin2017/gw-user-signup/internal/repositories"
	"github.com/sbilibin2017/gw-user-signup/internal/services"

	_ "github.com/jackc/pgx/v5/stdlib"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// @title gw-user-signup API
// @version 1.0.0
// @description Microservice for registering users
// @host localhost:8080
// @BasePath /api
// @schemes http
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting service version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// config holds application, store, mail, event and security settings.
type config struct {
	AppHost            string
	AppPort            string
	AppEnv             string
	LogLevel           string
	RateLimitPerMinute int

	StoreDriver string

	MongoURI        string
	MongoDBName     string
	MongoCollection string
	MongoTimeout    time.Duration

	PGHost         string
	PGPort         int
	PGUser         string
	PGPassword     string
	PGDB           string
	PGMaxOpenConns int
	PGMaxIdleConns int
	PGTimeout      time.Duration

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	DefaultFromEmail string
	NotifyTimeout    time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PasswordHasher string
}

// parseConfig loads environment variables from a file and returns the application configuration.
func parseConfig(path string) (cfg config, err error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}
	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return v, nil
	}

	// Application config
	cfg.AppHost = getEnv("APP_HOST", "localhost")
	cfg.AppPort = getEnv("APP_PORT", "8080")
	cfg.AppEnv = getEnv("APP_ENV", "development")
	cfg.LogLevel = getEnv("APP_LOG_LEVEL", "info")
	if cfg.RateLimitPerMinute, err = getInt("APP_RATE_LIMIT_PER_MINUTE", "30"); err != nil {
		return
	}
	cfg.StoreDriver = getEnv("STORE_DRIVER", "mongo")

	// MongoDB config
	cfg.MongoURI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDBName = getEnv("MONGODB_DB_NAME", "signup")
	cfg.MongoCollection = getEnv("MONGODB_COLLECTION", "users")
	timeoutSecond, err := getInt("MONGODB_TIMEOUT_SECOND", "30")
	if err != nil {
		return
	}
	cfg.MongoTimeout = time.Duration(timeoutSecond) * time.Second

	// PostgreSQL config
	cfg.PGHost = getEnv("POSTGRES_HOST", "localhost")
	cfg.PGUser = getEnv("POSTGRES_USER", "user")
	cfg.PGPassword = getEnv("POSTGRES_PASSWORD", "password")
	cfg.PGDB = getEnv("POSTGRES_DB", "database")
	if cfg.PGPort, err = getInt("POSTGRES_PORT", "5432"); err != nil {
		return
	}
	if cfg.PGMaxOpenConns, err = getInt("POSTGRES_MAX_OPEN_CONNS", "16"); err != nil {
		return
	}
	if cfg.PGMaxIdleConns, err = getInt("POSTGRES_MAX_IDLE_CONNS", "8"); err != nil {
		return
	}
	pgTimeoutSecond, err := getInt("POSTGRES_TIMEOUT_SECOND", "30")
	if err != nil {
		return
	}
	cfg.PGTimeout = time.Duration(pgTimeoutSecond) * time.Second

	// SMTP config
	cfg.SMTPHost = getEnv("SMTP_HOST", "localhost")
	if cfg.SMTPPort, err = getInt("SMTP_PORT", "25"); err != nil {
		return
	}
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", "")
	cfg.DefaultFromEmail = getEnv("DEFAULT_FROM_EMAIL", "webmaster@localhost")
	notifyTimeoutSecond, err := getInt("NOTIFY_TIMEOUT_SECOND", "10")
	if err != nil {
		return
	}
	cfg.NotifyTimeout = time.Duration(notifyTimeoutSecond) * time.Second

	// Kafka config
	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "user-registered")

	cfg.PasswordHasher = getEnv("PASSWORD_HASHER", services.HasherSHA256)

	return
}

// postgresDSN builds the connection string for the PostgreSQL store.
// connect_timeout bounds each new connection to cfg.PGTimeout.
func postgresDSN(cfg config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&connect_timeout=%d",
		cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, cfg.PGDB, int(cfg.PGTimeout.Seconds()))
}

// userStore is implemented by every repository backend.
type userStore interface {
	services.StorePinger
	services.UserReader
	services.UserWriter
}

// newUserStore opens the backend selected by cfg.StoreDriver.
// The returned cleanup releases its connections.
func newUserStore(ctx context.Context, cfg config) (userStore, func(), error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, err := repositories.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoTimeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Log.Infof("Using MongoDB store: %s", repositories.MaskURI(cfg.MongoURI))

		repo := repositories.NewMongoUserRepository(client, cfg.MongoDBName, cfg.MongoCollection)
		idxCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		defer cancel()
		if err := repo.EnsureIndexes(idxCtx); err != nil {
			logger.Log.Warnw("failed to create user indexes", "err", err)
		}

		cleanup := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				logger.Log.Errorw("MongoDB disconnect error", "err", err)
			}
		}
		return repo, cleanup, nil

	case "postgres":
		dsn := postgresDSN(cfg)
		logger.Log.Infof("Using PostgreSQL store: %s", repositories.MaskURI(dsn))

		db, err := sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(cfg.PGMaxOpenConns)
		db.SetMaxIdleConns(cfg.PGMaxIdleConns)

		repo := repositories.NewPostgresUserRepository(db, cfg.PGTimeout)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Log.Warnw("failed to create users table", "err", err)
		}

		cleanup := func() {
			if err := db.Close(); err != nil {
				logger.Log.Errorw("PostgreSQL close error", "err", err)
			}
		}
		return repo, cleanup, nil

	case "memory":
		logger.Log.Warn("Using in-memory store, users are lost on restart")
		return repositories.NewMemoryUserRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newRouter wires middleware and routes.
func newRouter(cfg config, svc handlers.Signuper, store handlers.Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.StripSlashes)
	r.Use(middlewares.LoggingMiddleware)
	r.Use(middlewares.SecureHeadersMiddleware(cfg.AppEnv != "production"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", handlers.NewHealthHandler(store, 5*time.Second))
		r.With(middlewares.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute)).
			Post("/signup", handlers.NewSignupHandler(svc))
	})

	docs.SwaggerInfo.Host = fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://%s:%s/swagger/doc.json", cfg.AppHost, cfg.AppPort)),
	))

	return r
}

// run initializes the logger, user store, notifiers and HTTP server.
// It sets up routes, applies middleware, and handles graceful shutdown.
func run(ctx context.Context, cfg config) error {
	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.LogLevel)

	// Open user store
	store, closeStore, err := newUserStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	defer closeStore()

	hasher, err := services.NewPasswordHasher(cfg.PasswordHasher)
	if err != nil {
		return err
	}
	if cfg.PasswordHasher != services.HasherBcrypt {
		logger.Log.Warn("Passwords are stored as unsalted SHA-256 digests; set PASSWORD_HASHER=bcrypt for new deployments")
	}

	// Initialize notifiers
	notifier := notifiers.NewEmailNotifier(
		notifiers.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	)

	var publisher services.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := notifiers.NewKafkaPublisher(notifiers.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Log.Errorw("Kafka writer close error", "err", err)
			}
		}()
		publisher = kafkaPublisher
		logger.Log.Infof("Publishing registration events to %s", cfg.KafkaTopic)
	}

	// Initialize services
	signupService := services.NewSignupService(
		services.Config{FromEmail: cfg.DefaultFromEmail, NotifyTimeout: cfg.NotifyTimeout},
		store, store, store, hasher, notifier, publisher,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort),
		Handler:           newRouter(cfg, signupService, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s:%s", cfg.AppHost, cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctxShutdown.Done():
		logger.Log.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}
	signupService.Wait()

	logger.Log.Info("HTTP server stopped gracefully")
	return nil
}
