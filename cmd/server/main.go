// @title        API Rate Validator
// @version      1.0
// @description  Rejects duplicate requests from the same client within a short TTL window.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mqttsvc "api-rate-validator/cmd/server/mqtt"
	_ "api-rate-validator/docs"
	"api-rate-validator/internal/cache"
	"api-rate-validator/internal/config"
	"api-rate-validator/internal/gate"
	"api-rate-validator/internal/logging"
	"api-rate-validator/internal/metrics"
	"api-rate-validator/internal/validation"
	"api-rate-validator/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("[fatal] config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("[fatal] logger: %v", err)
	}

	// ctx for graceful shutdown of the whole app
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(err, "server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logr.Logger) error {
	log := logger.WithName("startup")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	tiered, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	g, ctx := errgroup.WithContext(ctx)

	// WS Hub
	hub := ws.NewHub(256, logger)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	opts := []gate.Option{
		gate.WithLogger(logger),
		gate.WithStrictAdmission(cfg.StrictAdmission),
		gate.WithObserver(hub),
	}

	if cfg.MQTTBroker != "" {
		pub := mqttsvc.NewPublisher(mqttsvc.Config{
			Broker:      cfg.MQTTBroker,
			TopicPrefix: cfg.MQTTTopicPrefix,
			ClientID:    cfg.MQTTClientID,
		}, logger)
		opts = append(opts, gate.WithObserver(pub))
		g.Go(func() error {
			log.Info("starting MQTT publisher", "broker", cfg.MQTTBroker)
			return pub.Start(ctx)
		})
	}

	gt := gate.New(tiered, cfg.CacheTTL, opts...)
	r := newRouter(cfg, gt, hub, reg, logger)

	// Run server
	srv := config.NewHTTPServer(cfg, r)
	g.Go(func() error {
		log.Info("listening", "addr", srv.Addr, "ttl", gt.TTL(), "redis", cfg.RedisEnabled, "strict", cfg.StrictAdmission)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newCache builds the tiered cache: always a local tier, plus Redis unless
// disabled. Without Redis the local tier is the only record of admissions,
// so it is left unbounded: an evicted entry would be admitted again.
func newCache(ctx context.Context, cfg *config.Config, logger logr.Logger) (*cache.Tiered, func(), error) {
	if !cfg.RedisEnabled {
		local := cache.NewLocal(0)
		go local.Start()
		logger.Info("redis disabled, using an unbounded local tier only", "ignoredCapacity", cfg.LocalCacheCapacity)
		return cache.NewTiered(local, nil, logger), local.Stop, nil
	}

	local := cache.NewLocal(uint64(cfg.LocalCacheCapacity))
	go local.Start()

	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		local.Stop()
		return nil, nil, err
	}
	closeAll := func() {
		local.Stop()
		_ = client.Close()
	}
	return cache.NewTiered(local, cache.NewShared(client, cfg.RedisKeyPrefix), logger), closeAll, nil
}

func newRouter(cfg *config.Config, gt *gate.Gate, hub *ws.Hub, reg *prometheus.Registry, logger logr.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), config.RequestIDMiddleware(), config.LoggerMiddleware(logger), config.CORSMiddleware(cfg.CORSOrigins))

	validation.NewHandler(gt, cfg.BodyLimit, logger).Register(r)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// admission feeds
	upgrader := upgraderFor(cfg.CORSOrigins)
	r.GET("/ws/admissions", serveAdmissionsWS(hub, upgrader))
	r.GET("/ws/admissions/:client", serveAdmissionsWS(hub, upgrader))

	return r
}
