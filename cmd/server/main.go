package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/linkpulse/linkpulse/config"
	appmodel "github.com/linkpulse/linkpulse/internal/app/model"
	apprepository "github.com/linkpulse/linkpulse/internal/app/repository"
	appserver "github.com/linkpulse/linkpulse/internal/app/server"
	appservice "github.com/linkpulse/linkpulse/internal/app/service"
	"github.com/linkpulse/linkpulse/internal/infra/logger"
	infraNATS "github.com/linkpulse/linkpulse/internal/infra/nats"
	infraPostgres "github.com/linkpulse/linkpulse/internal/infra/postgres"
	infraPrometheus "github.com/linkpulse/linkpulse/internal/infra/prometheus"
	infraRedis "github.com/linkpulse/linkpulse/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
		Service:     "linkpulse",
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.String("oracle_model", cfg.Oracle.Model),
		zap.Duration("forecast_interval", cfg.Forecast.IntervalDuration()),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.User{},
		&appmodel.Link{},
		&appmodel.HourlyClickStat{},
		&appmodel.Forecast{},
		&appmodel.ForecastPoint{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	statRepo := apprepository.NewClickStatRepository(gormDB, pool)
	forecastRepo := apprepository.NewForecastRepository(gormDB)
	userRepo := apprepository.NewUserRepository(gormDB)

	clickPublisher := appservice.NewClickPublisher(js)
	clickConsumer := appservice.NewClickConsumer(js, log, statRepo)
	if err := clickConsumer.Start(); err != nil {
		log.Fatal("Failed to start click consumer", zap.Error(err))
	}

	linkService := appservice.NewLinkService(appservice.LinkServiceDeps{
		Logger:    log,
		Links:     linkRepo,
		Forecasts: forecastRepo,
		Cache:     redisClient,
		Clicks:    clickPublisher,
	})
	if err := linkService.Warm(ctx); err != nil {
		log.Warn("Failed to warm short-code filter", zap.Error(err))
	}

	scheduler := appservice.NewForecastScheduler(appservice.SchedulerDeps{
		Logger:     log,
		Links:      linkRepo,
		Stats:      statRepo,
		Forecasts:  forecastRepo,
		Users:      userRepo,
		Forecaster: appservice.NewOracle(log, appservice.NewChatCompleter(cfg.Oracle), cfg.Forecast.Horizon()),
		Evaluator:  appservice.NewSpikeEvaluator(cfg.Forecast.MinClicksThreshold(), cfg.Forecast.SpikeMultiplier()),
		Alerter:    appservice.NewSpikeAlerter(log, appservice.NewSMTPSender(cfg.SMTP), cfg.Forecast.BaseURL),
		Forecast:   cfg.Forecast,
	})
	scheduler.Start()
	defer scheduler.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Redis:       redisClient,
		LinkService: linkService,
		BaseURL:     cfg.Forecast.BaseURL,
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
