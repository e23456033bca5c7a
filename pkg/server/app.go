package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "PriceWatch/internal/middleware"
	"PriceWatch/internal/usecase"
	"PriceWatch/pkg/config"
	xhttp "PriceWatch/pkg/http"
	pkgkafka "PriceWatch/pkg/kafka"
	applogger "PriceWatch/pkg/logger"
	"PriceWatch/pkg/queue"
)

// Closer is an infrastructure client released at shutdown, in registration order.
type Closer struct {
	Name string
	C    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	engine     *usecase.AlertEngine
	pipeline   *mid.EventPipeline
	consumer   *pkgkafka.Consumer
	commands   pkgkafka.MessageHandler
	queue      *queue.RedisQueue
	httpServer *xhttp.Server
	closers    []Closer
}

// New creates a new App instance with all dependencies. consumer, commands and q may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.AlertEngine,
	pipeline *mid.EventPipeline,
	consumer *pkgkafka.Consumer,
	commands pkgkafka.MessageHandler,
	q *queue.RedisQueue,
	httpServer *xhttp.Server,
	closers []Closer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		pipeline:   pipeline,
		consumer:   consumer,
		commands:   commands,
		queue:      q,
		httpServer: httpServer,
		closers:    closers,
	}
}

// Start brings the engine and its surfaces up without blocking.
func (a *App) Start(ctx context.Context) error {
	if err := a.engine.Load(ctx); err != nil {
		return err
	}

	a.pipeline.Start(ctx)

	if a.cfg.Engine.MonitorOnStart {
		if _, err := a.engine.StartMonitoring(ctx); err != nil {
			return err
		}
	}

	if a.consumer != nil && a.commands != nil {
		a.consumer.RegisterHandler(a.commands)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.commands.Topic()))
		}
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			a.log.Error("command queue start error", applogger.Error(err))
		}
	}

	return a.httpServer.Start()
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		a.log.Error("startup failed", applogger.Error(err))
		_ = a.Shutdown(ctx)
		return err
	}
	a.log.Info("pricewatch started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("feed", a.cfg.Feed.Type),
		applogger.String("store", a.cfg.Store.Type),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.Shutdown(ctx)
}

// Shutdown stops surfaces first, then drains workers and the pipeline, then closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a.log.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("command queue stop error", applogger.Error(err))
		}
	}

	if _, err := a.engine.StopMonitoring(ctx); err != nil {
		a.log.Warn("stop monitoring error", applogger.Error(err))
	}

	if err := a.pipeline.Stop(ctx); err != nil {
		a.log.Warn("event pipeline stop error", applogger.Error(err))
	}

	// flush log digests while the kafka producer is still open
	a.log.RemoveCollector()

	for _, c := range a.closers {
		if err := c.C.Close(); err != nil {
			a.log.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
