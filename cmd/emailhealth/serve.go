package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/config"
	"github.com/optimode/emailhealth/internal/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(args []string) int {
	l := config.NewLoader("emailhealth serve")
	cfg, log, code := load(l, args)
	if cfg == nil {
		return code
	}

	v := emailhealth.New().WithOptions(cfg.Validation).WithLogger(log)
	srv, err := server.New(*cfg, v, log, version)
	if err != nil {
		log.WithError(err).Error("cannot start server")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(cfg.Server.Addr) }()

	select {
	case err := <-errc:
		log.WithError(err).Error("server stopped")
		return 1
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Error("shutdown")
		return 1
	}
	return 0
}
