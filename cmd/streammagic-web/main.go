// Command streammagic-web serves the web dashboard bridge: a JSON API
// over the shared browsing/queue session, polling the selected device
// in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"streammagic/bridge"
	"streammagic/config"
	"streammagic/logging"
	"streammagic/session"
	"streammagic/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "streammagic-web: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("STREAMMAGIC_CONFIG"), "path to config file")
	host := flag.String("host", "", "StreamMagic device host (overrides config)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Device.Host = *host
	}
	if *port != 0 {
		cfg.Web.Port = *port
	}

	logger, err := logging.InitLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Warn("session store unavailable, preferences will not persist", zap.Error(err))
		st = nil
	} else {
		defer st.Close()
	}

	server := bridge.New(cfg, logger, st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller := session.NewPoller(server.Session(), server.Devices(), cfg.Poller.Interval, logger)
	go poller.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	}

	if err := server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
