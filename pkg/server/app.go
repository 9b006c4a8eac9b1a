package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "TradePulse/internal/domain/repository"
	mid "TradePulse/internal/middleware"
	"TradePulse/internal/service/feed"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	applogger "TradePulse/pkg/logger"
	"TradePulse/pkg/queue"
)

// App owns the process lifecycle: it starts the tick pipeline, the feed,
// the work queue and the HTTP server, then tears everything down in
// reverse order on SIGINT/SIGTERM.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	feedClient *feed.Client
	pipe       *mid.TickPipeline
	workQueue  *queue.RedisQueue
	jobs       []queue.Job
	events     drepo.SignalEvents
	store      drepo.SignalStore
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	feedClient *feed.Client,
	pipe *mid.TickPipeline,
	workQueue *queue.RedisQueue,
	jobs []queue.Job,
	events drepo.SignalEvents,
	store drepo.SignalStore,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		handler:    handler,
		feedClient: feedClient,
		pipe:       pipe,
		workQueue:  workQueue,
		jobs:       jobs,
		events:     events,
		store:      store,
		chClient:   chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.pipe.Start(ctx)

	if a.feedClient != nil {
		if err := a.feedClient.Start(ctx); err != nil {
			a.log.Error("feed start failed", applogger.Error(err))
			return err
		}
		if len(a.cfg.Feed.Symbols) > 0 {
			if err := a.feedClient.Subscribe(a.cfg.Feed.Symbols); err != nil {
				a.log.Warn("initial feed subscription failed", applogger.Error(err))
			} else {
				a.log.Info("feed subscribed",
					applogger.Strings("symbols", a.cfg.Feed.Symbols),
					applogger.Strings("segments", a.cfg.Feed.Segments))
			}
		}
	}

	if a.workQueue != nil {
		a.workQueue.RegisterJobs(a.jobs)
		if err := a.workQueue.Start(); err != nil {
			a.log.Error("work queue start failed", applogger.Error(err))
			return err
		}
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start failed", applogger.Error(err))
		return err
	}
	a.log.Info("http server listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops all services, consumers first so in-flight work drains
// before its dependencies close.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Warn("http shutdown error", applogger.Error(err))
		}
	}

	if a.feedClient != nil {
		if err := a.feedClient.Close(); err != nil {
			a.log.Warn("feed close error", applogger.Error(err))
		}
	}

	if a.workQueue != nil {
		if err := a.workQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("work queue stop error", applogger.Error(err))
		}
	}

	a.pipe.Stop()

	if err := a.events.Close(); err != nil {
		a.log.Warn("event publisher close error", applogger.Error(err))
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("signal store close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
