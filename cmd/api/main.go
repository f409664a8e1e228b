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

	"github.com/farm-api-push/internal/application/detection"
	"github.com/farm-api-push/internal/application/device"
	"github.com/farm-api-push/internal/application/dispatch"
	"github.com/farm-api-push/internal/application/notification"
	"github.com/farm-api-push/internal/application/receipt"
	"github.com/farm-api-push/internal/config"
	"github.com/farm-api-push/internal/infrastructure/dynamo"
	"github.com/farm-api-push/internal/infrastructure/expo"
	"github.com/farm-api-push/internal/infrastructure/fcm"
	jwtinfra "github.com/farm-api-push/internal/infrastructure/jwt"
	"github.com/farm-api-push/internal/infrastructure/sns"
	"github.com/farm-api-push/internal/scheduler"
	transporthttp "github.com/farm-api-push/internal/transport/http"
	"github.com/joho/godotenv"
	gocache "github.com/patrickmn/go-cache"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	deviceRepo := dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices)
	notifRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	inventoryRepo := dynamo.NewInventoryRepo(dynamoClient, cfg.DynamoTables.Inventory)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	// Push transports. FCM credentials are required: uncertain tokens route
	// to FCM, so without it part of the fleet is unreachable.
	expoTransport := expo.NewTransport(cfg.Push)
	fcmTransport, err := fcm.NewTransport(context.Background(), cfg.Push)
	if err != nil {
		log.Fatalf("FCM transport unavailable: %v", err)
	}

	mode := "lenient"
	if cfg.Push.StrictTokens {
		mode = "strict"
	}
	log.Printf("Push token classification mode: %s", mode)

	deviceSvc := device.NewService(deviceRepo, cfg.Push.StrictTokens)
	router := dispatch.NewRouter(expoTransport, fcmTransport, cfg.Push.StrictTokens, cfg.Push.Concurrency)

	reconciler := receipt.NewReconciler(expoTransport, deviceSvc, cfg.Push.ExpoReceiptDelay)
	reconciler.Start(context.Background())

	notifSvc := notification.NewService(notification.ServiceDeps{
		Repo:      notifRepo,
		Devices:   deviceRepo,
		Lifecycle: deviceSvc,
		Router:    router,
		Receipts:  reconciler,
		SMS:       smsSender,
		Contacts:  userRepo,
		Timeout:   cfg.Push.Timeout,
	})

	dedup := gocache.New(cfg.Push.DedupTTL, 10*time.Minute)
	jobs := detection.NewJobs(inventoryRepo, notifSvc, dedup, cfg.Push.ExpiryHorizon)
	sched := scheduler.New(jobs, cfg.Push.LowStockScanTime)
	sched.Start(context.Background())

	deps := &transporthttp.Deps{
		DeviceSvc:       deviceSvc,
		NotificationSvc: notifSvc,
		JWTProvider:     jwtProvider,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	sched.Stop()
	reconciler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
