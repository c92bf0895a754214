package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adpulse/perftracker/internal/api"
	"github.com/adpulse/perftracker/internal/config"
	"github.com/adpulse/perftracker/internal/deepdive"
	"github.com/adpulse/perftracker/internal/lookup"
	"github.com/adpulse/perftracker/internal/pkg/logger"
	"github.com/adpulse/perftracker/internal/warehouse"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("AdPulse Performance Tracker (cmd/server)")

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Initialize the warehouse client
	whCfg := warehouse.Config{
		Account:   cfg.Warehouse.Account,
		User:      cfg.Warehouse.User,
		Password:  cfg.Warehouse.Password,
		Database:  cfg.Warehouse.Database,
		Schema:    cfg.Warehouse.Schema,
		Warehouse: cfg.Warehouse.Warehouse,
		Table:     cfg.Warehouse.Table,
	}
	if cfg.Warehouse.ConnectionString != "" {
		parsed := warehouse.ParseConnectionString(cfg.Warehouse.ConnectionString)
		whCfg.Account = parsed.Account
		whCfg.User = parsed.User
		whCfg.Password = parsed.Password
		if parsed.Database != "" {
			whCfg.Database = parsed.Database
		}
		if parsed.Schema != "" {
			whCfg.Schema = parsed.Schema
		}
	}

	whClient, err := warehouse.NewClient(whCfg)
	if err != nil {
		log.Fatalf("Failed to initialize warehouse client: %v", err)
	}
	defer whClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := whClient.Ping(pingCtx); err != nil {
		log.Printf("Warning: warehouse ping failed: %v — queries will fail until it recovers", err)
	} else {
		log.Printf("Warehouse connected: %s", whCfg.QualifiedTable())
	}
	pingCancel()

	// Initialize Redis (optional: lookups and snapshots degrade without it)
	var redisClient *redis.Client
	redisURL := cfg.Redis.URL
	if redisURL == "" {
		redisURL = cfg.Redis.Addr
	}
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — lookups and snapshots run uncached", redisURL, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", redisURL)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured — lookups and snapshots run uncached")
	}

	// Wire the deep-dive pipeline
	tracker := deepdive.NewService(whClient, whCfg.QualifiedTable(), cfg.Tracker.MaxResultRows)
	lookups := lookup.NewCache(whClient, redisClient, cfg.Lookup.TTL())
	snapshots := api.NewSnapshotStore(redisClient, cfg.Tracker.SnapshotTTL())
	handlers := api.NewHandlers(tracker, lookups, snapshots, cfg.Warehouse.Timeout())

	server := api.NewServer(cfg.Server, cfg.Auth, handlers)

	addr := fmt.Sprintf("%s:%d", host, port)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}

	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Server stopped")
}
