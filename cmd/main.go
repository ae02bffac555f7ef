package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/auth"
	"github.com/ukydev/carlink/internal/config"
	"github.com/ukydev/carlink/internal/db"
	"github.com/ukydev/carlink/internal/handlers"
	"github.com/ukydev/carlink/internal/middleware"
	"github.com/ukydev/carlink/internal/notify"
	"github.com/ukydev/carlink/internal/services"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()
	logger.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	store := db.NewStore(client, cfg.MongoDB)
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	notifier, closeNotifier := newNotifier(cfg, logger)
	defer closeNotifier()

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	listings := services.NewListingService(store.Cars, store.BuyRequests, logger)
	requests := services.NewBuyRequestService(store.Cars, store.BuyRequests, store.Users, notifier, logger)

	app := &application{
		logger:   logger,
		authMW:   middleware.NewAuthMiddleware(authService),
		limiter:  middleware.NewRateLimitMiddleware(cfg.TrustProxy),
		cfg:      cfg,
		auth:     handlers.NewAuthHandler(authService, store.Users, logger),
		cars:     handlers.NewCarHandler(listings, logger),
		requests: handlers.NewBuyRequestHandler(requests, logger),
		health:   handlers.Health(store, logger),
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(cfg.ClientURL, app.routes()),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLogger builds a logrus logger from the configured level and format.
func newLogger(level, format string) (*log.Logger, error) {
	logger := log.New()
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// newNotifier always logs notifications and also publishes them over
// MQTT when a broker is configured. An unreachable broker only disables
// the MQTT sink.
func newNotifier(cfg *config.Config, logger *log.Logger) (notify.Notifier, func()) {
	sinks := []notify.Sink{notify.LogSink{Logger: logger}}
	closeFn := func() {}

	if cfg.MQTTBroker != "" {
		client, err := notify.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			logger.WithError(err).Warn("MQTT notifications disabled")
		} else {
			logger.WithField("broker", cfg.MQTTBroker).Info("Publishing notifications over MQTT")
			sinks = append(sinks, &notify.MQTTSink{Client: client, Prefix: cfg.MQTTTopicPrefix, QoS: 1})
			closeFn = func() { client.Disconnect(250) }
		}
	}
	return notify.NewDispatcher(sinks...), closeFn
}

func withCORS(origin string, h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
	})
	return c.Handler(h)
}
