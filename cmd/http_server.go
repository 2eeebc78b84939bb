package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	internal "github.com/eventtix/multisafepay-provider/internal"
	"github.com/eventtix/multisafepay-provider/internal/core/events"
	"github.com/eventtix/multisafepay-provider/internal/gateway"
	"github.com/eventtix/multisafepay-provider/internal/method"
	"github.com/eventtix/multisafepay-provider/internal/payment"
	paymentpostgres "github.com/eventtix/multisafepay-provider/internal/payment/postgres"
	"github.com/eventtix/multisafepay-provider/internal/redirect"
	"github.com/eventtix/multisafepay-provider/internal/transport"
	"github.com/eventtix/multisafepay-provider/internal/transport/rest"
	"github.com/eventtix/multisafepay-provider/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives gateway webhooks and payer returns`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	Router         *chi.Mux
	WebhookHandler *payment.WebhookHandler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Config.Provider, deps.WebhookHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)
	if msg := deps.Config.Provider.TestModeMessage(); msg != "" {
		deps.Logger.Warn(msg)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm rides on the already-pooled pgx connection.
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	repo := paymentpostgres.NewPaymentRepository(gormDB)
	registry := method.NewRegistry(config.Provider)
	client := gateway.NewClient(config.Provider, lg)
	signer := redirect.NewSigner([]byte(config.Server.SessionSecret))
	bus := events.NewEventBus(lg)
	registerEventHandlers(bus, lg)

	service := payment.NewService(repo, client, registry, config.Provider, signer,
		config.Server.BaseURL, bus, lg)

	webhookHandler := payment.NewWebhookHandler(transport.NewBaseHandler(lg), service, lg)

	return &Dependencies{
		Config:         config,
		Logger:         lg,
		DB:             db,
		Router:         chi.NewRouter(),
		WebhookHandler: webhookHandler,
	}, nil
}

// registerEventHandlers attaches the host-platform notification hooks. The
// standalone deployment only logs; an embedded deployment subscribes its own
// order machinery here.
func registerEventHandlers(bus *events.EventBus, lg *slog.Logger) {
	bus.Subscribe(events.EventTypePaymentConfirmed, func(ctx context.Context, e events.Event) error {
		lg.Info("order payment confirmed", "event_id", e.EventID(), "payload", e.Payload())
		return nil
	})
	bus.Subscribe(events.EventTypePaymentFailed, func(ctx context.Context, e events.Event) error {
		lg.Info("order payment failed", "event_id", e.EventID(), "payload", e.Payload())
		return nil
	})
	bus.Subscribe(events.EventTypeRefundDone, func(ctx context.Context, e events.Event) error {
		lg.Info("order refund settled", "event_id", e.EventID(), "payload", e.Payload())
		return nil
	})
}

// initDB opens the pgx-backed connection pool.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
