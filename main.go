package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lab1702/battleship-web/server"
	"github.com/lab1702/battleship-web/store"
)

const (
	releaseVersion = "1.0.0"
)

func main() {
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func run(cfg *Config) error {
	logger, err := newLogger(cfg.debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.Open(cfg.dataDir, logger)
	if err != nil {
		return err
	}

	gameServer := server.NewServer(server.Config{
		ListenAddr:       cfg.listen,
		MatchWindow:      cfg.matchWindow,
		RatingDelta:      cfg.ratingDelta,
		ReaperPeriod:     cfg.reaperPeriod,
		IdleTimeout:      cfg.idleTimeout,
		HandshakeTimeout: cfg.handshakeTimeout,
		MaxGames:         cfg.maxGames,
	}, st, logger)

	errCh := make(chan error, 2)

	go func() {
		errCh <- gameServer.Serve()
	}()

	// Optional WebSocket gateway speaking the same protocol
	var httpSrv *http.Server
	if cfg.httpListen != "" {
		httpSrv = &http.Server{
			Addr:         cfg.httpListen,
			Handler:      gameServer.HTTPHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		logger.Info("websocket gateway listening", zap.String("addr", cfg.httpListen))
	}

	// Wait for a shutdown signal or a fatal listener error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	gameServer.Shutdown()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
