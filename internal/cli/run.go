package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jimbolo/convtrack/internal/config"
	"github.com/jimbolo/convtrack/internal/detector"
	"github.com/jimbolo/convtrack/internal/logger"
	"github.com/jimbolo/convtrack/internal/server"
	"github.com/jimbolo/convtrack/pkg/models"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// runDaemon runs the detector, its HTTP surface and the config watcher until
// ctx is cancelled or the HTTP server fails. Logs go to logOut.
func runDaemon(ctx context.Context, configPath string, logOut io.Writer) error {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration from '%s': %w", configPath, err)
	}
	if err := logger.Init(cfg.Application, logOut); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	log := logger.L()
	log.Info("convtrack daemon starting", "config", configPath)

	// --- PID File Handling ---
	if pidFilePath := cfg.Application.PIDFilePath; pidFilePath != "" {
		if err := acquirePIDFile(pidFilePath); err != nil {
			return err
		}
		log.Info("Wrote PID file", "path", pidFilePath, "pid", os.Getpid())
		defer func() {
			log.Info("Removing PID file on exit", "path", pidFilePath)
			_ = os.Remove(pidFilePath)
		}()
	}

	// --- Service Initialization ---
	det, err := detector.New(cfg, detector.NewHost())
	if err != nil {
		return err
	}
	reload := func() error {
		newCfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		det.UpdateRules(newCfg.Detection)
		return nil
	}
	httpServer := server.NewHTTPServer(cfg, det, reload)
	cfgWatcher, err := config.NewWatcher(configPath, func(newCfg *models.Config) {
		det.UpdateRules(newCfg.Detection)
	})
	if err != nil {
		det.Destroy()
		return err
	}

	// --- Start Services ---
	g, gctx := errgroup.WithContext(ctx)
	if err := det.Start(gctx); err != nil {
		cfgWatcher.Stop()
		return err
	}
	if err := cfgWatcher.Start(gctx); err != nil {
		log.Warn("Config hot reload disabled", "error", err)
	}
	httpServer.Start()
	log.Info("All services started successfully", "sources", det.Installed())

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-httpServer.Done():
			if gctx.Err() != nil {
				return nil
			}
			return errors.New("http server exited unexpectedly")
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("stopping HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		cfgWatcher.Stop()
		return det.Destroy()
	})

	err = g.Wait()
	if err != nil {
		log.Error("convtrack daemon stopped with error", "error", err)
		return err
	}
	log.Info("convtrack daemon shut down gracefully")
	return nil
}
