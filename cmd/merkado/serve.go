package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fekuna/merkado-order-service/config"
	"github.com/fekuna/merkado-order-service/internal/apperror"
	"github.com/fekuna/merkado-order-service/internal/order"
	"github.com/fekuna/merkado-order-service/internal/storage"
	"github.com/fekuna/merkado-order-service/pkg/broker"
	"github.com/fekuna/merkado-order-service/pkg/cache"
	"github.com/fekuna/merkado-order-service/pkg/logger"
	"github.com/fekuna/merkado-order-service/pkg/metrics"
	"github.com/fekuna/merkado-order-service/pkg/tracing"

	batchH "github.com/fekuna/merkado-order-service/internal/batch/handler"
	batchRepoPkg "github.com/fekuna/merkado-order-service/internal/batch/repository"
	batchUCPkg "github.com/fekuna/merkado-order-service/internal/batch/usecase"

	invH "github.com/fekuna/merkado-order-service/internal/inventory/handler"
	invRepoPkg "github.com/fekuna/merkado-order-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/merkado-order-service/internal/inventory/usecase"

	orderH "github.com/fekuna/merkado-order-service/internal/order/handler"
	orderListenerPkg "github.com/fekuna/merkado-order-service/internal/order/listener"
	orderRepoPkg "github.com/fekuna/merkado-order-service/internal/order/repository"
	orderUCPkg "github.com/fekuna/merkado-order-service/internal/order/usecase"

	prodRepoPkg "github.com/fekuna/merkado-order-service/internal/product/repository"
)

const version = "0.1.0"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health endpoint and the shipping listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(loadConfig())
		},
	}
}

func serve(cfg *config.Config) error {
	appLogger := newLogger(cfg)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Setup(ctx, &tracing.Config{
			ServiceName: cfg.Server.ServiceName,
			Version:     version,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			appLogger.Warn("Tracing disabled", zap.Error(err))
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(flushCtx)
			}()
			appLogger.Info("Tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint))
		}
	}

	// Database
	db, err := openPostgres(cfg)
	if err != nil {
		appLogger.Error("Could not connect to database", zap.Error(err))
		return err
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// Redis is optional: without it orders are read straight from Postgres.
	var orderCache order.Cache
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Redis, order cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		orderCache = redisClient
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Kafka
	producer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrderTopic,
	})
	defer producer.Close()

	consumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ShippingTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer consumer.Close()
	appLogger.Info("Kafka configured",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("publish_topic", cfg.Kafka.OrderTopic),
		zap.String("consume_topic", cfg.Kafka.ShippingTopic),
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(cfg.Server.ServiceName, registry)

	// Repositories
	txm := storage.NewTxManager(db)
	prodRepo := prodRepoPkg.NewPGRepository(db)
	invRepo := invRepoPkg.NewPGRepository(db)
	batchRepo := batchRepoPkg.NewPGRepository(db)
	orderRepo := orderRepoPkg.NewPGRepository(db)

	// UseCases
	invUC := invUCPkg.NewInventoryUseCase(invRepo, db, appLogger)
	batchUC := batchUCPkg.NewBatchUseCase(batchRepo, prodRepo, invUC, txm, appLogger)
	allocator := batchUCPkg.NewAllocator(batchRepo, invRepo, prodRepo, appLogger)
	orderUC := orderUCPkg.NewOrderUseCase(
		orderRepo, allocator, batchUC, invUC, txm,
		producer, orderCache, appMetrics, cfg.Order, appLogger,
	)

	// Listener
	listenerCtx, cancelListener := context.WithCancel(ctx)
	defer cancelListener()
	shippingListener := orderListenerPkg.NewShippingListener(consumer, orderUC, appLogger)
	listenerDone := make(chan struct{})
	go func() {
		shippingListener.Start(listenerCtx)
		close(listenerDone)
	}()

	// HTTP
	e := newEcho(appLogger, appMetrics, db)
	invH.NewInventoryHandler(invUC, appLogger).Register(e.Group("/inventory"))
	batchH.NewBatchHandler(batchUC, appLogger).Register(e.Group("/batch"))
	orderH.NewOrderHandler(orderUC, appLogger).Register(e.Group("/order"))

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Server.HTTPPort))
		if err := e.Start(normalizePort(cfg.Server.HTTPPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	// gRPC health
	grpcServer, err := startGRPC(cfg, appLogger, stop)
	if err != nil {
		return err
	}

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	cancelListener()
	<-listenerDone

	appLogger.Info("Server stopped")
	return nil
}

func newEcho(appLogger logger.ZapLogger, appMetrics *metrics.Metrics, db *sqlx.DB) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(appLogger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	e.Use(logger.Middleware(appLogger))
	e.Use(appMetrics.Middleware())

	e.GET("/metrics", echo.WrapHandler(appMetrics.Handler()))
	e.GET("/health", func(c echo.Context) error {
		response := map[string]interface{}{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		}
		if c.QueryParam("check") == "db" {
			if err := db.PingContext(c.Request().Context()); err != nil {
				logger.FromContext(c.Request().Context(), appLogger).Error("Database ping error", zap.Error(err))
				response["status"] = "error"
				response["db_status"] = "error"
				return c.JSON(http.StatusServiceUnavailable, response)
			}
			response["db_status"] = "ok"
		}
		return c.JSON(http.StatusOK, response)
	})
	return e
}

func startGRPC(cfg *config.Config, appLogger logger.ZapLogger, stop context.CancelFunc) (*grpc.Server, error) {
	port := normalizePort(cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", port)
	if err != nil {
		appLogger.Error("failed to listen", zap.String("port", port), zap.Error(err))
		return nil, err
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(cfg.Server.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("failed to serve", zap.Error(err))
			stop()
		}
	}()
	return grpcServer, nil
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}
