package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cartsync/cartsync-backend/internal/commands"
	"github.com/cartsync/cartsync-backend/internal/handlers"
	"github.com/cartsync/cartsync-backend/internal/liststore"
	"github.com/cartsync/cartsync-backend/internal/observability"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
	"github.com/cartsync/cartsync-backend/internal/realtime/bus"
	"github.com/cartsync/cartsync-backend/internal/seed"
	"github.com/cartsync/cartsync-backend/internal/server"
	"github.com/cartsync/cartsync-backend/internal/storage"
	"github.com/cartsync/cartsync-backend/internal/utils"
)

const serviceName = "cartsync-backend"

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	if shutdownTracing := observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: serviceName,
		Environment: logMode,
	}); shutdownTracing != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	// Storage
	log.Info("Setting up storage adapter...")
	adapter, err := storage.New(log)
	if err != nil {
		log.Error("Could not init storage adapter", "error", err)
		os.Exit(1)
	}

	// List store
	log.Info("Loading list state...")
	store := liststore.New(log, adapter)
	if err := store.Load(ctx); err != nil {
		log.Error("Could not load list state", "error", err)
		os.Exit(1)
	}

	// Broadcast hub
	hub := realtime.NewHub(log)

	// Optional cross-instance event bus
	instanceID := uuid.NewString()
	var publisher *bus.Publisher
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		eventBus, err := bus.NewRedisBus(log)
		if err != nil {
			log.Error("Could not init redis event bus", "error", err)
			os.Exit(1)
		}
		defer eventBus.Close()
		if err := eventBus.StartForwarder(ctx, bus.OriginFilter(instanceID, hub.Broadcast)); err != nil {
			log.Error("Could not start event forwarder", "error", err)
			os.Exit(1)
		}
		publisher = bus.NewPublisher(ctx, eventBus, instanceID, log)
		log.Info("Cross-instance event bus enabled", "instance_id", instanceID)
	}

	store.SetNotifier(func(ev realtime.Event) {
		hub.Broadcast(ev)
		if publisher != nil {
			publisher.Enqueue(ev)
		}
	})

	// Seed data (fresh installs only)
	if err := seed.Apply(store, log); err != nil {
		log.Warn("Seeding failed, continuing with empty state", "error", err)
	}

	// Persistence loop
	store.Start(ctx)

	// Command router + handlers
	log.Info("Setting up handlers...")
	router := commands.NewRouter(log, store, hub)
	wsHandler := handlers.NewWSHandler(log, hub, router)
	listHandler := handlers.NewListHandler(log, store)
	healthHandler := handlers.NewHealthHandler(store)

	// HTTP router
	engine := server.NewRouter(server.RouterConfig{
		ServiceName:   serviceName,
		AllowOrigins:  strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ","),
		HealthHandler: healthHandler,
		ListHandler:   listHandler,
		WSHandler:     wsHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{Addr: ":" + port, Handler: engine}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
	}

	// Make sure the last mutations hit storage before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Flush(flushCtx); err != nil {
		log.Error("Final flush failed", "error", err)
	}
	log.Info("Shutdown complete")
}
