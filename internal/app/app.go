package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/automarket/consignment-service/internal/adapter/client"
	emailadapter "github.com/automarket/consignment-service/internal/adapter/email"
	mongoadapter "github.com/automarket/consignment-service/internal/adapter/mongo"
	natsadapter "github.com/automarket/consignment-service/internal/adapter/nats"
	redisadapter "github.com/automarket/consignment-service/internal/adapter/redis"
	"github.com/automarket/consignment-service/internal/app/config"
	"github.com/automarket/consignment-service/internal/marketplace"
	"github.com/automarket/consignment-service/internal/marketplace/amazon"
	"github.com/automarket/consignment-service/internal/marketplace/ebay"
	"github.com/automarket/consignment-service/internal/platform/logger"
	httpport "github.com/automarket/consignment-service/internal/port/http"
	"github.com/automarket/consignment-service/internal/service"
)

type App struct {
	cfg         *config.Config
	log         logger.Logger
	server      *httpport.Server
	reconciler  *service.Reconciler
	mongoClient *mongo.Client
	redisClient *redis.Client
	natsConn    *nats.Conn
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	appLogger, err := logger.NewZapLogger(logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Infof("Configuration loaded: Env=%s, HTTP addr: %s", cfg.Env, cfg.HTTPServer.Addr)

	mongoClient, err := mongoadapter.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
	}
	appLogger.Info("MongoDB client initialized")

	redisClient, err := redisadapter.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}
	appLogger.Info("Redis client initialized")

	natsConn, err := natsadapter.NewConnection(cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	publisher, err := natsadapter.NewNATSPublisher(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize NATS publisher: %w", err)
	}
	appLogger.Info("NATS publisher initialized")

	itemRepo := mongoadapter.NewItemRepository(mongoClient, cfg.MongoDB)
	statusCache := redisadapter.NewListingStatusCacheRepository(redisClient)

	valuationClient, err := client.NewValuationClient(client.ValuationClientConfig{
		Address: cfg.Valuation.Address,
		APIKey:  cfg.Valuation.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize valuation client: %w", err)
	}

	var notifier *emailadapter.OpsNotifier
	if cfg.SMTP.Host != "" {
		sender, err := emailadapter.NewSMTPSender(cfg.SMTP, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SMTP sender: %w", err)
		}
		notifier = emailadapter.NewOpsNotifier(sender, cfg.SMTP.OpsEmail, appLogger)
		appLogger.Info("Ops email notifier initialized")
	} else {
		appLogger.Warn("SMTP not configured, ops notifications disabled")
	}

	ebayAdapter, err := ebay.NewAdapter(ebay.Config{
		BaseURL:       cfg.Ebay.BaseURL,
		TokenURL:      cfg.Ebay.TokenURL,
		ClientID:      cfg.Ebay.ClientID,
		ClientSecret:  cfg.Ebay.ClientSecret,
		FulfillmentID: cfg.Ebay.FulfillmentID,
		PaymentID:     cfg.Ebay.PaymentID,
		ReturnID:      cfg.Ebay.ReturnID,
		LocationKey:   cfg.Ebay.LocationKey,
		CategoryID:    cfg.Ebay.CategoryID,
	}, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize eBay adapter: %w", err)
	}

	amazonAdapter, err := amazon.NewAdapter(amazon.Config{
		BaseURL:       cfg.Amazon.BaseURL,
		TokenURL:      cfg.Amazon.TokenURL,
		ClientID:      cfg.Amazon.ClientID,
		ClientSecret:  cfg.Amazon.ClientSecret,
		RefreshToken:  cfg.Amazon.RefreshToken,
		SellerID:      cfg.Amazon.SellerID,
		MarketplaceID: cfg.Amazon.MarketplaceID,
		ProductType:   cfg.Amazon.ProductType,
	}, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Amazon adapter: %w", err)
	}

	retryCfg := marketplace.RetryConfig{
		CallTimeout:      cfg.Marketplace.CallTimeout,
		TransientRetries: cfg.Marketplace.TransientRetries,
	}
	adapters := []marketplace.Adapter{
		marketplace.WithResilience(ebayAdapter, retryCfg, appLogger),
		marketplace.WithResilience(amazonAdapter, retryCfg, appLogger),
	}
	appLogger.Info("Marketplace adapters initialized")

	orchestrator := service.NewOrchestrator(itemRepo, adapters, statusCache, publisher, notifierOrNil(notifier), appLogger)
	orchestrator.SetCacheTTL(cfg.StatusCache.TTL)
	submissions := service.NewSubmissionService(itemRepo, valuationClient, publisher, appLogger)
	reconciler := service.NewReconciler(orchestrator, itemRepo, appLogger, cfg.Sweep.Interval, cfg.Sweep.BatchSize)

	handler := httpport.NewItemHandler(submissions, orchestrator, appLogger)
	server := httpport.NewServer(cfg.HTTPServer.Addr, handler, appLogger)

	return &App{
		cfg:         cfg,
		log:         appLogger,
		server:      server,
		reconciler:  reconciler,
		mongoClient: mongoClient,
		redisClient: redisClient,
		natsConn:    natsConn,
	}, nil
}

// notifierOrNil keeps a nil *OpsNotifier from becoming a non-nil interface.
func notifierOrNil(n *emailadapter.OpsNotifier) service.SaleNotifier {
	if n == nil {
		return nil
	}
	return n
}

func (a *App) Run() {
	a.log.Info("Starting application components...")

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go a.reconciler.Run(sweepCtx)

	go func() {
		if err := a.server.Run(); err != nil {
			a.log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit
	a.log.Infof("Received shutdown signal: %v. Shutting down application...", receivedSignal)

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPServer.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("Error during HTTP server graceful shutdown: %v", err)
	} else {
		a.log.Info("HTTP server stopped")
	}

	if a.natsConn != nil {
		a.natsConn.Close()
		a.log.Info("NATS connection closed")
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(shutdownCtx); err != nil {
			a.log.Errorf("Error disconnecting from MongoDB: %v", err)
		} else {
			a.log.Info("MongoDB connection closed")
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Errorf("Error closing Redis client: %v", err)
		} else {
			a.log.Info("Redis client closed")
		}
	}

	a.log.Info("Application shut down successfully")
}
