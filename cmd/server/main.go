package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alenorgue/E-Comerce-API/config"
	"github.com/alenorgue/E-Comerce-API/internal/api"
	"github.com/alenorgue/E-Comerce-API/internal/auth"
	"github.com/alenorgue/E-Comerce-API/internal/broker"
	"github.com/alenorgue/E-Comerce-API/internal/gateway"
	"github.com/alenorgue/E-Comerce-API/internal/redisclient"
	"github.com/alenorgue/E-Comerce-API/internal/service"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"
	"github.com/alenorgue/E-Comerce-API/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting e-commerce API")

	tp, err := util.InitTracer("ecommerce-api", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	paymentGateway := gateway.NewStripeGateway(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)

	authService := service.NewAuthService(db, tokens)
	catalogService := service.NewCatalogService(db, redisClient)
	cartService := service.NewCartService(db)
	checkoutService := service.NewCheckoutService(db, redisClient, paymentGateway, eventPublisher, cfg.Gateway.Currency)
	orderService := service.NewOrderService(db, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	scanner := worker.NewReconcileScanner(db, eventPublisher, cfg.Worker.ReconcileInterval, cfg.Worker.ReconcileGrace)
	go func() {
		if err := scanner.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Reconcile scanner error: %v", err)
		}
	}()

	reconcileConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	reconcileWorker := worker.NewReconcileWorker(reconcileConsumer, db)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Reconcile worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(authService, catalogService, cartService, checkoutService, orderService, tokens)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	reconcileWorker.Stop()

	log.Println("Server exited")
}
