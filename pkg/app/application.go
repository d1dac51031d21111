package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"reserva/internal/reservations/handler"
	"reserva/pkg/config"
	"reserva/pkg/contracts"
	"reserva/pkg/middleware"
)

// eventStreamSuffix is exempt from the request timeout so SSE connections can
// stay open.
const eventStreamSuffix = "/events"

type Application struct {
	cfg            *config.Config
	server         *http.Server
	healthHandler  http.Handler
	appHTTPHandler http.Handler

	workersCtx    context.Context
	workersCancel context.CancelFunc
	workers       sync.WaitGroup

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func NewApplication(cfg *config.Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		cfg:           cfg,
		workersCtx:    ctx,
		workersCancel: cancel,
	}
}

func (a *Application) SetApp(appHandlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(appHandlers)
	a.setAppServer()
}

// AddWorker starts a background loop that runs until shutdown cancels its
// context.
func (a *Application) AddWorker(name string, run func(ctx context.Context)) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		a.cfg.Log.Info("Background worker started", "worker", name)
		run(a.workersCtx)
		a.cfg.Log.Info("Background worker stopped", "worker", name)
	}()
}

// AddCloser registers a resource to close during graceful shutdown, after the
// HTTP server and workers have stopped.
func (a *Application) AddCloser(name string, close func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: close})
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	healthHandler := handler.NewHealthHandler(a.cfg.Client.Mongo, a.cfg.Log)
	healthHandler.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandlers []contracts.Handler) {
	appRouter := httprouter.New()
	for _, appHandler := range appHandlers {
		appHandler.RegisterRoutes(appRouter)
	}

	var appHTTPHandler http.Handler = appRouter
	appHTTPHandler = middleware.RequestTimeout(a.cfg.RequestTimeout, eventStreamSuffix)(appHTTPHandler)
	appHTTPHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHTTPHandler)
	appHTTPHandler = middleware.RequestLogging(a.cfg.Log)(appHTTPHandler)
	appHTTPHandler = middleware.Recovery(a.cfg.Log)(appHTTPHandler)
	a.appHTTPHandler = appHTTPHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHTTPHandler)

	a.server = &http.Server{
		Addr:        ":" + a.cfg.Port,
		Handler:     mux,
		ReadTimeout: a.cfg.ReadTimeout,
		// WriteTimeout would sever long-lived event streams, so the
		// per-request timeout middleware bounds writes instead.
		IdleTimeout: a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.workersCancel()
	a.workers.Wait()
	a.cfg.Log.Info("Background workers stopped")

	for _, c := range a.closers {
		if err := c.close(); err != nil {
			a.cfg.Log.Error("Failed to close resource", "resource", c.name, "error", err)
		}
	}

	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}
