package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/audit"
	"tradesim/internal/config"
	cronrunner "tradesim/internal/cron"
	"tradesim/internal/db"
	"tradesim/internal/handler"
	"tradesim/internal/logger"
	"tradesim/internal/oracle"
	"tradesim/internal/payout"
	"tradesim/internal/policy"
	gormrepository "tradesim/internal/repository/gorm"
	"tradesim/internal/service"
	"tradesim/internal/settlement"
)

func main() {
	cfgPath := os.Getenv("TS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	policyStore := policy.NewStore(store, logger)
	if err := policyStore.Load(context.Background()); err != nil {
		logger.Fatal("outcome policy load failed", zap.Error(err))
	}
	payoutTable := payout.NewTable(store)
	if err := payoutTable.Load(context.Background()); err != nil {
		logger.Fatal("payout table load failed", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	oracleHTTP := &http.Client{Timeout: cfg.Oracle.Timeout}
	priceOracle := &oracle.Oracle{
		Client: oracle.NewClient(oracleHTTP, cfg.Oracle.BaseURL),
		MaxAge: cfg.Oracle.CacheMaxAge,
		Logger: logger,
	}
	if rdb != nil {
		priceOracle.Cache = oracle.NewPriceCache(rdb)
	}

	auditSvc := &audit.Service{Repo: store, Logger: logger}

	var strategy policy.OutcomeStrategy
	if cfg.Settlement.RandomizedOutcomes {
		strategy = &policy.PolicyOutcomeStrategy{Engine: policy.NewEngine(policyStore)}
	} else {
		strategy = policy.NewPriceComparisonStrategy(priceOracle)
	}

	ledger := settlement.NewLedger(store, strategy, payout.NewCalculator(payoutTable), auditSvc, logger)
	tradeSvc := service.NewTradeService(store, ledger, payoutTable, priceOracle, auditSvc, logger, service.TradeLimits{
		MinStake: decimal.NewFromFloat(cfg.Trading.MinStake),
		MaxStake: decimal.NewFromFloat(cfg.Trading.MaxStake),
	})
	sweepSvc := &service.SettlementSweepService{
		Repo:      store,
		Ledger:    ledger,
		Flags:     settingsSvc,
		Logger:    logger,
		BatchSize: cfg.Settlement.SweepBatchSize,
	}
	refreshSvc := &service.PriceRefreshService{
		Oracle:  priceOracle,
		Flags:   settingsSvc,
		Logger:  logger,
		Symbols: cfg.Oracle.Symbols,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	accountHandler := &handler.AccountHandler{Repo: store}
	accountHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{Service: tradeSvc, Logger: logger}
	tradeHandler.Register(engine)
	adminHandler := &handler.AdminHandler{
		Policy:   policyStore,
		Payout:   payoutTable,
		Trades:   tradeSvc,
		Settings: settingsSvc,
	}
	adminHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.SettlementSweep, func(ctx context.Context) {
			if err := sweepSvc.RunOnce(ctx); err != nil {
				logger.Warn("settlement sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register settlement sweep failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.PriceRefresh, func(ctx context.Context) {
			if err := refreshSvc.RunOnce(ctx); err != nil {
				logger.Warn("price refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register price refresh failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	// Warm the quote cache so immediate trades have entry prices on the
	// first request instead of paying the REST round-trip.
	if err := refreshSvc.RunOnce(ctx); err != nil {
		logger.Warn("initial price warmup failed (continuing)", zap.Error(err))
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
