package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/synadia-labs/cli-harness/internal/config"
	"github.com/synadia-labs/cli-harness/internal/logger"
	"github.com/synadia-labs/cli-harness/internal/service"
)

func main() {
	log := logger.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("error loading config: %s", err)
	}

	exec := service.NewExecutor(service.ExecutorOptions{
		Binary:  cfg.Endpoint.Binary,
		Timeout: cfg.Endpoint.CommandTimeout,
	})

	// nats is optional
	var svc micro.Service
	if cfg.Nats.Enabled() {
		// save user creds to file if inside a container
		if os.Getenv("container") != "" {
			path, err := cfg.SaveCreds()
			if err != nil {
				log.Fatalf("%s", err)
			}
			log.Infof("nats creds file written to %s", path)
		}

		nc, err := nats.Connect(cfg.Nats.Url, nats.UserJWTAndSeed(cfg.Nats.Jwt, cfg.Nats.Nkey), nats.Name(service.Name))
		if err != nil {
			log.Fatalf("error connecting to nats: %s", err)
		}
		defer nc.Close()

		svc, err = service.StartNATSMicro(nc, cfg.Nats.Prefix, exec, log)
		if err != nil {
			log.Fatalf("%s", err)
		}
		defer svc.Stop()
	}

	srv, err := service.NewHTTPServer(cfg, exec, log)
	if err != nil {
		log.Fatalf("error creating http server: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Infof("%s started", service.Name)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Errorf("http server error: %s", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error shutting down http server: %s", err)
	}
	log.Infof("%s stopped", service.Name)
}
