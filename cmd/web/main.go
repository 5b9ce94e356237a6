package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"thirdcoast.systems/relay/cmd/web/internal/web"
	"thirdcoast.systems/relay/internal/application"
	"thirdcoast.systems/relay/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting relay service")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := application.OpenStore(ctx, *conf)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	channel, err := application.OpenChannel(*conf)
	if err != nil {
		slog.Error("failed to open storage channel", "error", err)
		os.Exit(1)
	}

	application.CheckTools(ctx, *conf)

	manager := application.NewManager(*conf, st, channel)
	if err := manager.Start(ctx); err != nil {
		slog.Error("failed to start job queue", "error", err)
		os.Exit(1)
	}
	defer manager.Stop()

	transcoder := application.NewTranscoder(*conf, st, channel)
	defer transcoder.Close()

	e, err := web.NewWebserver(web.Deps{
		Store:      st,
		Channel:    channel,
		Manager:    manager,
		Transcoder: transcoder,
	})
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return transcoder.RunReaper(gctx, conf.VariantReapInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("Listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Relay service stopped")
}
