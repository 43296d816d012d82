package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tranvanhung2003/digital-world-cart/internal/cache"
	"github.com/tranvanhung2003/digital-world-cart/internal/catalog"
	"github.com/tranvanhung2003/digital-world-cart/internal/httpapi"
	"github.com/tranvanhung2003/digital-world-cart/internal/poller"
	"github.com/tranvanhung2003/digital-world-cart/internal/repository"
	"github.com/tranvanhung2003/digital-world-cart/internal/service"
)

type Config struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	MongoURI        string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName     string        `envconfig:"MONGO_DB_NAME" default:"cartdb"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD" default:""`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS"`
	AuthSecret      string        `envconfig:"AUTH_SECRET" default:"dev-secret"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	var cfg Config
	if err := envconfig.Process("CART", &cfg); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}

	repo := repository.NewMongoRepository(mongoDB)
	if err := repository.EnsureIndexes(ctx, mongoDB); err != nil {
		log.WithError(err).Fatal("failed to create indexes")
	}
	log.WithField("uri", cfg.MongoURI).Info("connected to MongoDB")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	cartCache := cache.NewRedisCache(redisClient)
	cat := catalog.NewMongoCatalog(mongoDB)
	cartService := service.NewCartService(repo, cartCache, cat, log)
	cartHandler := httpapi.NewCartHandler(cartService, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httpapi.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(httpapi.SessionMiddleware)
	r.Use(httpapi.AuthMiddleware(httpapi.HMACVerifier(cfg.AuthSecret)))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", cartHandler.Routes)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cartd"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollerCtx, cancelPoller := context.WithCancel(ctx)
	defer cancelPoller()
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(repo, cartCache, log, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(pollerCtx)
		log.WithField("brokers", cfg.KafkaBrokers).Info("order-completed poller started")
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("cart service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancelPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}
