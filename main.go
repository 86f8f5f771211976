package main

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jpillora/overseer"
	"github.com/jpillora/overseer/fetcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"tournament-ledger/config"
	"tournament-ledger/handlers"
	"tournament-ledger/health"
	"tournament-ledger/middleware"
	"tournament-ledger/models"
	"tournament-ledger/services"
	"tournament-ledger/utils"
	"tournament-ledger/workers"
)

func main() {
	overseer.Run(overseer.Config{
		Program: program,
		// [0] HTTP, [1] gRPC health
		Addresses:     []string{":" + config.GetAppPort(), ":" + config.GetGRPCPort()},
		Fetcher:       &fetcher.File{Path: config.GetAppBinFile(), Interval: 5 * time.Second},
		Debug:         config.GetAppEnv() == "development",
		RestartSignal: utils.RestartSignal,
	})
}

func program(state overseer.State) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	utils.SetupGracefulShutdown(cancel)

	cfg := config.Load()
	utils.SetLogLevel(cfg.App.LogLevel)

	// --- Database ---
	db, err := utils.OpenDB(utils.DBOptions{
		Driver:          cfg.DB.Driver,
		DSN:             cfg.DB.DSN,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.DB.ConnMaxIdleTime,
	})
	if err != nil {
		utils.Fatal("❌ failed to connect to database: ", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		utils.Fatal("❌ failed to migrate database: ", err)
	}
	utils.Infof("✅ DB connected (%s)", cfg.DB.Driver)

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	// --- Side-effect sinks ---
	notifiers := []services.Notifier{services.DBNotifier{DB: db}}
	audits := []services.AuditSink{services.DBAuditSink{DB: db}}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			utils.Warnf("⚠️ Redis ping failed, stream notifications will retry per event: %v", err)
		}
		notifiers = append(notifiers, services.RedisStreamNotifier{Client: rdb, Stream: cfg.Redis.NotifyStream})
		utils.Infof("✅ Redis notifications → %s", cfg.Redis.NotifyStream)
	}

	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret)
		if err != nil {
			utils.Fatal("❌ failed to initialize R2 client: ", err)
		}
		audits = append(audits, services.R2AuditArchive{Client: r2, Bucket: cfg.R2.Bucket})
		utils.Infof("✅ Audit archive → r2://%s", cfg.R2.Bucket)
	}

	dispatcher := workers.NewDispatcher(workers.DispatcherOptions{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
	}, notifiers, audits, metrics)
	dispatcher.Start()

	// --- Services ---
	store := services.NewLedgerStore(db, metrics, cfg.Ledger.Currency)
	gateway := services.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret)
	walletService := services.NewWalletService(store, gateway, dispatcher)
	joinCoordinator := services.NewJoinCoordinator(store, dispatcher)
	matchService := services.NewMatchService(store, dispatcher)
	activityService := services.NewActivityService(store)

	// --- Background work ---
	scheduler, err := services.StartScheduler(matchService, walletService, cfg.Ledger.TopupOrderTTL)
	if err != nil {
		utils.Fatal("❌ failed to start scheduler: ", err)
	}

	var wg sync.WaitGroup
	if cfg.Gateway.BaseURL != "" {
		settlement := workers.NewSettlementWorker(gateway, walletService, cfg.Gateway.SettleInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			settlement.Poll(ctx)
		}()
	} else {
		utils.Warn("⚠️ GATEWAY_BASE_URL not set, running with sandbox orders and no settlement polling")
	}

	if cfg.Sync.ServiceURL != "" {
		workers.NewProfileSyncWorker(db, store, cfg.Sync.ServiceURL, cfg.Sync.ProfilesPath, cfg.Sync.ServiceToken).Start(ctx)
	}

	// --- HTTP ---
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	// 🔐 Gateway token on everything except health checks, metrics and signed webhooks
	app.Use(middleware.GatewayAuthMiddleware(cfg.Sync.ServiceToken, "/healthz", "/metrics", "/webhooks/"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupSystemRoutes(app, db, registry, walletService)
	handlers.SetupWalletRoutes(app, walletService, activityService)
	handlers.SetupMatchRoutes(app, matchService, joinCoordinator)
	handlers.SetupAdminRoutes(app, handlers.AdminServices{
		Wallet:   walletService,
		Matches:  matchService,
		Activity: activityService,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.StartGRPCServer(ctx, state.Listeners[1], health.DBPinger(db))
	}()

	go func() {
		utils.Infof("✅ HTTP server listening on %s", state.Listeners[0].Addr())
		if err := app.Listener(state.Listeners[0]); err != nil {
			utils.Errorf("❌ HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	utils.Info("🛑 Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.Warnf("⚠️ HTTP shutdown: %v", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		utils.Warnf("⚠️ scheduler shutdown: %v", err)
	}
	wg.Wait()
	// after every producer has stopped
	dispatcher.Stop()
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	utils.Info("✅ Cleanup done. Exiting.")
}
