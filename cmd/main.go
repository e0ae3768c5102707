package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ruby4mag/firewatch-backend/internal/ai"
	"github.com/ruby4mag/firewatch-backend/internal/config"
	"github.com/ruby4mag/firewatch-backend/internal/db"
	"github.com/ruby4mag/firewatch-backend/internal/events"
	"github.com/ruby4mag/firewatch-backend/internal/handlers"
	"github.com/ruby4mag/firewatch-backend/internal/logging"
	"github.com/ruby4mag/firewatch-backend/internal/metrics"
	"github.com/ruby4mag/firewatch-backend/internal/storage"
)

const reportsCacheKey = "firewatch:reports:list"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := cfg.Models()
	if err != nil {
		log.WithError(err).Fatal("failed to load model registry")
	}
	engine, err := ai.NewEngine(
		ai.NewServingClient(cfg.ModelServerURL, cfg.ModelServerTimeout),
		registry, cfg.Features, cfg.InferenceConcurrency,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to build inference engine")
	}
	engine.SetMaxPixels(cfg.MaxImagePixels)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := engine.Warmup(warmCtx); err != nil {
		log.WithError(err).Warn("model server not ready, predictions will fail until it is")
	}
	cancel()

	opts := handlers.Options{
		Detector:       engine,
		Persistence:    cfg.Persistence,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		Publisher:      events.NopPublisher{},
	}

	if cfg.Persistence {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to mongo")
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Warn("mongo disconnect failed")
			}
		}()

		reports := db.NewReportStore(client.Database(cfg.MongoDB).Collection(cfg.MongoCollection))
		if err := reports.EnsureIndexes(ctx); err != nil {
			log.WithError(err).Warn("could not create report indexes")
		}
		opts.Store = reports

		if cfg.RedisURI != "" {
			rdb, err := db.NewRedisClient(ctx, cfg.RedisURI)
			if err != nil {
				log.WithError(err).Warn("redis unavailable, serving report list uncached")
			} else {
				defer rdb.Close()
				opts.Store = db.NewCachedStore(reports, db.NewRedisListCache(rdb, reportsCacheKey, cfg.ReportsCacheTTL))
			}
		}

		uploader, err := storage.NewCloudinaryUploader(
			cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder,
		)
		if err != nil {
			log.WithError(err).Fatal("failed to configure photo upload")
		}
		opts.Uploader = uploader
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, report events disabled")
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}

	h, err := handlers.NewHandler(opts)
	if err != nil {
		log.WithError(err).Fatal("failed to build handlers")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		log.WithFields(log.Fields{
			"port":        cfg.Port,
			"persistence": cfg.Persistence,
			"models":      len(engine.Models()),
		}).Info("fire detection api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "X-Requested-With", "Content-Type", "Accept", handlers.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handlers.RequestIDHeader},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
