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

	"github.com/lisuiheng/rfid-bridge/logger"
	"github.com/lisuiheng/rfid-bridge/possim"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address")
	level := flag.String("log-level", "info", "Log level (debug/info/warn/error)")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *level, Outputs: []string{"stdout"}}); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	sim := possim.NewServer(nil, logger.Logger().With("component", "possim"))
	srv := &http.Server{
		Addr:              *addr,
		Handler:           sim.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("POS simulator listening", "addr", *addr, "path", possim.PathPOS)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("POS simulator stopped", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, shutting down", "signal", sig)

	sim.DropAll()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
}
