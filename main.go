package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"memory-match/config"
	"memory-match/game"
	"memory-match/handlers"
	"memory-match/metrics"
	"memory-match/middleware"
	"memory-match/services"
	"memory-match/store"
	"memory-match/store/memstore"
	"memory-match/store/postgres"
	"memory-match/utils"
	"memory-match/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gameMetrics := metrics.NewMetrics(registry)

	clock := game.Clock(time.Now)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	configService := services.NewConfigService(st)
	if _, err := configService.Ensure(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to ensure game config")
	}
	progression := services.NewProgressionService(st, configService, cfg.DefaultRating, cfg.DefaultTitle)
	pairing := services.NewPairingService(st, progression, configService, gameMetrics, clock, cfg.QueueTTL, rng)
	matches := services.NewMatchService(st, game.NewEngine(clock, cfg.RatingK), progression, gameMetrics, cfg.TurnLockLease)
	matches.PartialUpdates = cfg.PartialUpdateMode

	if cfg.NatsURL != "" {
		nc, err := utils.BrokerConnect(cfg.NatsURL, "memory-match")
		if err != nil {
			logrus.WithError(err).Fatal("failed to connect to NATS")
		}
		publisher := utils.NewBoardPublisher(nc, cfg.NatsSubjectPrefix)
		defer publisher.Close()
		matches.Notifier = publisher
		logrus.WithField("prefix", cfg.NatsSubjectPrefix).Info("📡 board updates published to NATS")
	}

	jobs := []services.Job{pairing.QueueSweepJob(cfg.QueueSweepInterval)}
	if cfg.ArchiveBucket != "" {
		archiver, err := utils.NewArchiver(ctx, utils.ArchiveConfig{
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			Region:          cfg.ArchiveRegion,
		})
		if err != nil {
			logrus.WithError(err).Fatal("failed to initialize archive client")
		}
		jobs = append(jobs, workers.NewMatchArchiveWorker(st, archiver, clock).Job(cfg.ArchiveInterval))
	}
	if _, err := services.StartScheduler(ctx, jobs...); err != nil {
		logrus.WithError(err).Fatal("failed to start scheduler")
	}

	app := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
	})

	// 🩺 Probes and scrapes bypass the gateway check.
	handlers.SetupSystemRoutes(app, registry)

	// 🔐❗ Everything else must come from the gateway.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Service-Token, X-User-ID, X-User-Name, X-User-Roles, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContextMiddleware())
	app.Use(middleware.RequestLogger())

	handlers.SetupPlayRoutes(app, pairing, matches)
	handlers.SetupProgressionRoutes(app, progression)
	handlers.SetupAdminRoutes(app, configService)

	go func() {
		if err := app.Listen(cfg.Port); err != nil {
			logrus.WithError(err).Error("server error")
			stop()
		}
	}()

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"store":   cfg.StoreDriver,
		"origins": cfg.AllowedOrigins,
	}).Info("✅ memory-match running")

	<-ctx.Done()
	logrus.Info("shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Warn("server shutdown failed")
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logrus.Warn("⚠️  using in-memory store, state is lost on restart")
		return memstore.New(), nil
	}
	pg, err := postgres.Open(cfg.DatabaseURL, cfg.WatchPollInterval)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
