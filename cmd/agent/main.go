package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alicas/linecall-agent/internal/api"
	"github.com/alicas/linecall-agent/internal/backend"
	"github.com/alicas/linecall-agent/internal/config"
	"github.com/alicas/linecall-agent/internal/db"
	"github.com/alicas/linecall-agent/internal/logging"
	"github.com/alicas/linecall-agent/internal/preview"
	"github.com/alicas/linecall-agent/internal/session"
	"github.com/alicas/linecall-agent/internal/ui"
	"github.com/alicas/linecall-agent/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting line-call agent",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"config_file", cfg.SourceFile(),
	)

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := session.NewRepository(database.Conn())

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()

	deviceID, err := session.EnsureDeviceID(initCtx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := session.EnsureAuthToken(initCtx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	backendClient := backend.NewHTTPClient(cfg.BackendURL(), cfg.MediaPrefix(), cfg.BackendTimeout(),
		logging.WithComponent(logger, "backend"))

	registry := preview.NewRegistry(logging.WithComponent(logger, "preview"))
	uploads, err := preview.NewUploadCache(cfg.UploadDir(), cfg.MaxUploadBytes(), logging.WithComponent(logger, "uploads"))
	if err != nil {
		return err
	}

	ctrl := workflow.NewController(workflow.Config{
		Backend:   backendClient,
		Previewer: registry,
		Logger:    logging.WithComponent(logger, "workflow"),
	})

	restored, err := session.Restore(initCtx, repo, ctrl)
	if err != nil {
		logger.Warn("failed to restore session", "error", err)
	} else if restored != nil {
		logger.Info("restored selection", "name", restored.Name(), "path", logging.SanitizePath(restored.Path()))
	}
	keep := ""
	if restored != nil && restored.Owned() {
		keep = restored.Path()
	}
	uploads.Prune(cfg.UploadMaxAge(), keep)

	persister := session.NewPersister(repo, logging.WithComponent(logger, "session"))
	ctrl.OnChange(persister.Observe)

	if msg, err := backendClient.Ping(initCtx); err != nil {
		logger.Warn("analysis backend not reachable", "url", cfg.BackendURL(), "error", err)
	} else {
		logger.Info("analysis backend reachable", "url", cfg.BackendURL(), "message", msg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Controller:     ctrl,
		Previews:       preview.NewServer(registry, logging.WithComponent(logger, "preview")),
		Uploads:        uploads,
		Repository:     repo,
		Backend:        backendClient,
		RunContext:     ctx,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logging.WithComponent(logger, "api"),
		StartTime:      startTime,
		DeviceID:       deviceID,
		Version:        config.Version,
	})

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                 LINE-CALL AGENT v%-24s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Page URL:   http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Backend:    %-45s ║\n", cfg.BackendURL())
	fmt.Printf("║  Auth Token: %-45s ║\n", logging.SanitizeToken(authToken))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Open", apiServer.URL(authToken))
	fmt.Println()

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Controller: ctrl,
			Context:    ctx,
			PageURL:    apiServer.URL(authToken),
			Logger:     logging.WithComponent(logger, "tray"),
			OnQuit:     quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
