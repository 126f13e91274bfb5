package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver"
	"github.com/menta2k/mlserver/internal/config"
	"github.com/menta2k/mlserver/internal/logging"
	"github.com/menta2k/mlserver/internal/utils"
)

func main() {
	var configDir, addr string

	flag.StringVar(&configDir, "config", config.GetConfigPath(), "directory holding app.json and app.local.json")
	flag.StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	flag.Parse()

	if err := logging.FromEnv(); err != nil {
		log.Fatal(err)
	}
	logger := log.WithField("context", "main")

	cfg, err := config.Resolve(configDir)
	if err != nil {
		logger.WithError(err).Fatal("Unable to load configuration")
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.Server.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if !utils.DirExists(cfg.Models.Dir) {
		logger.WithField("dir", cfg.Models.Dir).Warn("Models directory does not exist")
	}

	ctx := context.Background()
	srv, err := mlserver.Open(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Unable to load plugins")
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":    cfg.Server.Addr,
			"plugins": srv.Dispatcher().Plugins(),
			"version": mlserver.Version,
		}).Info("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		logger.WithError(err).Error("Server failed")
		srv.Close()
		os.Exit(1)
	case <-quit:
	}
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server stopped")
}
