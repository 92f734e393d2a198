package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yegors/navwatch/internal/api"
	"github.com/yegors/navwatch/internal/config"
	"github.com/yegors/navwatch/internal/messaging"
	"github.com/yegors/navwatch/internal/simulation"
	"github.com/yegors/navwatch/internal/storage/sqlite"
	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/internal/websocket"
	"github.com/yegors/navwatch/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting navwatch server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.String("telemetry_url", cfg.Telemetry.BaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry source and engine
	fetcher := telemetry.NewFetcher(cfg.Telemetry.BaseURL, config.Seconds(cfg.Telemetry.FetchTimeoutSecs), log)
	resolver := telemetry.NewResolver(fetcher, telemetry.StrategiesFor(cfg.Telemetry.Endpoints), log)
	defer resolver.Close()

	var source telemetry.Source = resolver
	var sim *simulation.Source
	if cfg.Simulation.Enabled {
		sim = simulation.NewSource(simulation.Options{
			Latitude:    cfg.Simulation.Latitude,
			Longitude:   cfg.Simulation.Longitude,
			ElevationFt: cfg.Simulation.ElevationFt,
			HeadingDeg:  cfg.Simulation.HeadingDeg,
		}, log)
		source = sim
		log.Info("Using simulated aircraft instead of the telemetry host",
			logger.Float64("lat", cfg.Simulation.Latitude),
			logger.Float64("lon", cfg.Simulation.Longitude))
	}

	engine := telemetry.NewEngine(source, telemetry.Options{
		PollInterval:         config.Seconds(cfg.Telemetry.PollIntervalSecs),
		ErrorBackoff:         config.Seconds(cfg.Telemetry.ErrorBackoffSecs),
		MaxConsecutiveErrors: cfg.Telemetry.MaxConsecutiveErrors,
		ExtendedBackoff:      config.Seconds(cfg.Telemetry.ExtendedBackoffSecs),
		ListenerTimeout:      config.Seconds(cfg.Telemetry.ListenerTimeoutSecs),
		SkipUnchanged:        *cfg.Telemetry.SkipUnchanged,
	}, log)

	airports := telemetry.NewAirportService(fetcher, telemetry.AirportOptions{
		APIKey:       cfg.Airport.APIKey,
		SecondaryURL: cfg.Airport.AviationstackURL,
		CacheSize:    cfg.Airport.CacheSize,
		CacheTTL:     time.Duration(cfg.Airport.CacheTTLSecs) * time.Second,
	}, log)
	query := telemetry.NewQuery(engine, airports)

	// Create WebSocket server
	var wsServer *websocket.Server
	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()
	if cfg.WebSocket.Enabled {
		wsServer = websocket.NewServer(log)
		wsServer.SetMessageHandler(websocket.NewTelemetryHandler(query, log))
		go wsServer.Run(wsCtx)

		engine.AddAsyncListener("websocket", websocket.NewEventBroadcaster(wsServer, cfg.WebSocket.RawUpdates), cfg.WebSocket.QueueSize)
	}

	// Create flight log
	var events api.EventStore
	var flightLog *sqlite.FlightLog
	if cfg.Storage.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0755); err != nil {
			log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLitePath))
			os.Exit(1)
		}

		flightLog, err = sqlite.NewFlightLog(cfg.Storage.SQLitePath, time.Duration(cfg.Storage.SampleIntervalSecs)*time.Second, log)
		if err != nil {
			log.Error("Failed to create flight log", logger.Error(err))
			os.Exit(1)
		}
		events = flightLog
		engine.AddListener("flight-log", flightLog)
	}

	// Connect event publisher
	var publisher *messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = messaging.Connect(cfg.NATS.URL, cfg.NATS.Name, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			// Continue without publishing rather than failing
			log.Error("Failed to connect to NATS, events will not be published", logger.Error(err))
		} else {
			engine.AddListener("nats", publisher)
		}
	}

	// Start polling
	if err := engine.Start(ctx); err != nil {
		log.Error("Failed to start telemetry engine", logger.Error(err))
		os.Exit(1)
	}

	// Create API router
	handler := api.NewHandler(engine, query, events, cfg.Storage.MaxEventsInAPI, log)
	if sim != nil {
		handler.SetSimulation(sim)
	}
	router := api.NewRouter(handler, wsServer, cfg.Server, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop polling first so no listener sees events during teardown
	log.Info("Stopping telemetry engine...")
	engine.Stop()
	log.Info("Telemetry engine stopped.")

	if publisher != nil {
		publisher.Close()
	}
	if flightLog != nil {
		if err := flightLog.Close(); err != nil {
			log.Error("Failed to close flight log", logger.Error(err))
		}
	}
	wsCancel()

	cancel()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
