package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/config"
	"github.com/neurobot/backend/internal/ingest"
	"github.com/neurobot/backend/internal/logging"
	"github.com/neurobot/backend/internal/mock"
	"github.com/neurobot/backend/internal/record"
	"github.com/neurobot/backend/internal/relay"
	"github.com/neurobot/backend/internal/ws"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Feed synthetic EEG recordings through the pipeline")
	flag.Parse()

	cfg, err := config.Load(*configPath, *configPath == defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log, level, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(*configPath); err == nil {
		go func() {
			err := config.Watch(ctx, *configPath, log, func(next *config.Config) {
				lvl, err := logging.ParseLevel(next.Log.Level)
				if err != nil {
					log.Warn("ignoring log level from reloaded config", zap.Error(err))
					return
				}
				level.SetLevel(lvl)
				log.Info("log level updated", zap.Stringer("level", lvl))
			})
			if err != nil {
				log.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	if err := run(ctx, cfg, log, *mockMode); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, mockMode bool) error {
	c, err := newContainer(cfg, log)
	if err != nil {
		return err
	}

	return c.Invoke(func(srv *http.Server, hub *ws.Hub, rl *relay.Relay, repo record.Repository, h *ingest.Handler) error {
		if mockMode {
			log.Info("starting in mock mode")
			mock.NewGenerator(h, 2*time.Second, time.Now().UnixNano(), log.Named("mock")).Start(ctx)
		}
		if rl != nil {
			go func() {
				if err := rl.Run(ctx); err != nil {
					log.Error("relay stopped", zap.Error(err))
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		if rl != nil {
			if cerr := rl.Close(); cerr != nil {
				log.Warn("relay close", zap.Error(cerr))
			}
		}
		if closer, ok := repo.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				log.Warn("database close", zap.Error(cerr))
			}
		}
		return err
	})
}
