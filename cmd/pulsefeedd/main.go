// Command pulsefeedd runs the live state streaming daemon.
//
// It serves SSE streams of order progress, delivery status and merchant
// activity, refreshed from a sqlite database on a fixed broadcast cycle.
//
// Usage:
//
//	pulsefeedd [flags]
//
// Flags:
//
//	-config string  YAML config file (optional; defaults apply without it)
//	-db string      SQLite database path, overrides config
//	-addr string    HTTP listen address, overrides config
//	-seed           Insert demo rows into the database and exit
//	-debug          Debug-level console logging
//
// Examples:
//
//	# Start with defaults (sqlite file pulsefeed.db, port 8080)
//	pulsefeedd
//
//	# Seed demo data, then serve it
//	pulsefeedd -db demo.db -seed
//	pulsefeedd -db demo.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pulsefeed/pulsefeed-go/pkg/config"
	"github.com/pulsefeed/pulsefeed-go/pkg/discovery"
	"github.com/pulsefeed/pulsefeed-go/pkg/log"
	"github.com/pulsefeed/pulsefeed-go/pkg/states"
	"github.com/pulsefeed/pulsefeed-go/pkg/storage"
	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
	"github.com/pulsefeed/pulsefeed-go/pkg/transport"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
	seed       = flag.Bool("seed", false, "Insert demo rows into the database and exit")
	debug      = flag.Bool("debug", false, "Debug-level console logging")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *debug {
		cfg.Log.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Log.Debug {
		level = slog.LevelDebug
	}
	console := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(console)

	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if *seed {
		if err := seedDemo(context.Background(), store); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println("demo data written to", cfg.Database.Path)
		return 0
	}

	logger := buildLogger(console, cfg.Log)

	service := stream.NewService(cfg.EngineConfig(), logger)
	service.RegisterCategory(stream.CategoryOrder, states.NewOrderState(store))
	service.RegisterCategory(stream.CategoryDelivery, states.NewDeliveryState(store))
	service.RegisterCategory(stream.CategoryMerchant, states.NewMerchantState(store))

	service.Start()
	defer service.Stop()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	transport.NewHandler(service).RegisterRoutes(router)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	if cfg.Discovery.Enabled {
		advertiser := discovery.NewAdvertiser()
		if port, ok := listenPort(cfg.HTTP.Addr); ok {
			if err := advertiser.Advertise(cfg.Discovery.Instance, port); err != nil {
				slog.Warn("mDNS advertisement failed", "error", err)
			} else {
				defer advertiser.Shutdown()
			}
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	slog.Info("pulsefeedd listening", "addr", cfg.HTTP.Addr, "db", cfg.Database.Path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	return 0
}

// buildLogger assembles the stream event logger from config: console via
// slog, plus an optional CBOR event file.
func buildLogger(console *slog.Logger, cfg config.LogConfig) log.Logger {
	loggers := []log.Logger{log.NewSlogAdapter(console)}
	if cfg.File != "" {
		fileLogger, err := log.NewFileLogger(cfg.File)
		if err != nil {
			slog.Warn("event log file unavailable", "path", cfg.File, "error", err)
		} else {
			loggers = append(loggers, fileLogger)
		}
	}
	if len(loggers) == 1 {
		return loggers[0]
	}
	return log.NewMultiLogger(loggers...)
}

// listenPort extracts the numeric port from a listen address.
func listenPort(addr string) (int, bool) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	return port, true
}

// seedDemo writes a small set of rows so the daemon has something to stream.
func seedDemo(ctx context.Context, store *storage.Store) error {
	now := time.Now().UTC()

	orders := []*states.OrderRecord{
		{ID: "order-42", Status: "PACKED", ItemCount: 3, TotalCents: 2897, EtaMinutes: 25, CourierID: "courier-7", Note: "ring twice", UpdatedAt: now},
		{ID: "order-43", Status: "PREPARING", ItemCount: 1, TotalCents: 950, EtaMinutes: 40, UpdatedAt: now},
	}
	for _, order := range orders {
		if err := store.UpsertOrder(ctx, order); err != nil {
			return err
		}
	}

	deliveries := []*states.DeliveryRecord{
		{ID: "delivery-7", OrderID: "order-42", CourierID: "courier-7", Status: "EN_ROUTE", Lat: 52.5211, Lng: 13.4094, UpdatedAt: now},
	}
	for _, delivery := range deliveries {
		if err := store.UpsertDelivery(ctx, delivery); err != nil {
			return err
		}
	}

	merchants := []*states.MerchantRecord{
		{ID: "merchant-1", Name: "Brick Lane Bagels", Open: true, QueueLength: 4, AvgPrepMinutes: 12, UpdatedAt: now},
	}
	for _, merchant := range merchants {
		if err := store.UpsertMerchant(ctx, merchant); err != nil {
			return err
		}
	}
	return nil
}
