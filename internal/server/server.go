// Package server exposes batch validation over HTTP. Runs are started in the
// background, kept in memory for a retention window, and can be polled,
// streamed over a websocket, downloaded as CSV or cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/config"
	"github.com/optimode/emailhealth/internal/csvinput"
)

// Server owns the fiber app and the runs it started.
type Server struct {
	app       *fiber.App
	validator *emailhealth.Validator
	runs      *Registry
	log       logrus.FieldLogger
	input     config.Input
	version   string
	tick      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	access io.WriteCloser
}

// New builds the server. Sentry is initialised when cfg.Server.SentryDSN is
// set; without it error capture is a no-op.
func New(cfg config.Config, v *emailhealth.Validator, log *logrus.Logger, version string) (*Server, error) {
	if cfg.Server.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Server.SentryDSN,
			Environment: cfg.Server.Environment,
			Release:     "emailhealth@" + version,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry init: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		validator: v,
		runs:      NewRegistry(cfg.Server.Retention),
		log:       log,
		input:     cfg.Input,
		version:   version,
		tick:      250 * time.Millisecond,
		ctx:       ctx,
		cancel:    cancel,
		access:    log.WriterLevel(logrus.DebugLevel),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "emailhealth",
		BodyLimit:             cfg.Server.MaxUploadMB << 20,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: s.reportPanic,
	}))
	s.app.Use(logger.New(logger.Config{
		Format: "${status} - ${latency} ${method} ${path}\n",
		Output: s.access,
	}))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)

	api := s.app.Group("/api/v1")
	api.Post("/runs", s.createRun)
	api.Get("/runs/:id", s.getRun)
	api.Get("/runs/:id/report", s.getReport)
	api.Get("/runs/:id/csv", s.getCSV)
	api.Delete("/runs/:id", s.cancelRun)

	s.app.Get("/ws/runs/:id", s.upgrade, websocket.New(s.streamRun))
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Runs returns the run registry.
func (s *Server) Runs() *Registry {
	return s.runs
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("server listening")
	return s.app.Listen(addr)
}

// Shutdown cancels every run, stops accepting requests and flushes Sentry.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.runs.CancelAll()
	err := s.app.ShutdownWithContext(ctx)
	sentry.Flush(2 * time.Second)
	_ = s.access.Close()
	return err
}

// start registers a run and validates addresses in the background.
func (s *Server) start(addresses []string, src *csvinput.Extraction, workers int) *Run {
	ctx, cancel := context.WithCancel(s.ctx)
	run := newRun(len(addresses), src, cancel)
	s.runs.Add(run)
	go s.execute(ctx, run, addresses, workers)
	return run
}

func (s *Server) execute(ctx context.Context, run *Run, addresses []string, workers int) {
	log := s.log.WithFields(logrus.Fields{"run": run.ID, "total": run.Total})
	defer func() {
		if p := recover(); p != nil {
			sentry.CurrentHub().Recover(p)
			err := fmt.Errorf("run panicked: %v", p)
			log.WithError(err).Error("run failed")
			run.finish(nil, err)
		}
	}()

	log.Info("run started")
	report, err := s.validator.ValidateBatch(ctx, addresses, emailhealth.BatchOptions{
		Workers: workers,
		Tracker: run.tracker,
	})
	if err != nil {
		s.capture(err, run)
		log.WithError(err).Error("run failed")
		run.finish(nil, err)
		return
	}
	log.WithFields(logrus.Fields{
		"processed":    report.Summary.Processed,
		"health_ratio": report.Summary.HealthRatio,
		"completed":    report.Completed,
	}).Info("run finished")
	run.finish(report, nil)
}

func (s *Server) capture(err error, run *Run) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", run.ID)
		scope.SetExtra("total", run.Total)
		sentry.CaptureException(err)
	})
}

func (s *Server) reportPanic(c *fiber.Ctx, e interface{}) {
	s.log.WithFields(logrus.Fields{"method": c.Method(), "path": c.Path(), "panic": e}).Error("handler panicked")
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("path", c.Path())
		sentry.CurrentHub().Recover(e)
	})
}

// handleError renders every error as {"error": message}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
