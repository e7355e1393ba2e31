package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/typeracer/config"
	"github.com/wfunc/typeracer/logger"
	"github.com/wfunc/typeracer/monitor"
	"github.com/wfunc/typeracer/persistence"
	"github.com/wfunc/typeracer/server"
	"github.com/wfunc/typeracer/services"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize race history backend
	history := newHistory(cfg)
	defer history.Close()

	// Initialize metrics
	mon := monitor.NewMonitor("typeracer")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, services.NewResultsService(history), mon)

	// Shut down cleanly on SIGINT/SIGTERM so connected clients hear about it.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Log.Infof("Received signal %v, shutting down", sig)
		gameServer.Shutdown()
		os.Exit(0)
	}()

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

func newHistory(cfg *config.Config) persistence.RaceHistory {
	if !cfg.Database.Enabled {
		return persistence.NewNoopHistory()
	}

	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case "pq":
		history, err := persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Database connection successful.")
		return history
	default:
		history, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Database connection successful.")
		return history
	}
}
