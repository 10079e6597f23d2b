package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"sheetrelay/gateway/config"
	"sheetrelay/gateway/handlers"
	"sheetrelay/gateway/internal/download"
	"sheetrelay/gateway/internal/jobs"
	"sheetrelay/gateway/internal/mirror"
	"sheetrelay/gateway/internal/webhook"
	"sheetrelay/gateway/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// ServeAction runs the relay until the context is cancelled.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	var storeOpts []jobs.Option
	var jobMirror *mirror.Mirror
	if cfg.MirrorEnabled() {
		jobMirror, err = mirror.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseJobsTable, log)
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, jobs.WithObserver(jobMirror))
	}
	store := jobs.NewStore(storeOpts...)

	pool := worker.NewPool("webhook-dispatch", cfg.DispatchWorkers, cfg.DispatchQueueSize, log)
	dispatcher := webhook.NewDispatcher(webhook.Config{
		Endpoint:      cfg.N8NWebhookURL,
		Timeout:       cfg.DispatchTimeout,
		PublicBaseURL: cfg.PublicBaseURL,
		CompletedDir:  cfg.CompletedDir,
	}, store, pool, log)
	resolver := download.NewResolver(store, &http.Client{}, cfg.DownloadTimeout, log)

	sweeper := jobs.NewSweeper(store, cfg.JobRetention, cfg.SweepInterval, log)
	sweeper.OnEvict(dispatcher.Evicted)

	h := handlers.NewApplicationHandler(store, dispatcher, resolver, log, handlers.Settings{
		UploadDir:            cfg.UploadDir,
		RequireCallbackToken: cfg.RequireCallbackToken,
	})
	app := handlers.NewApp(h, handlers.AppOptions{
		SharedSecret: cfg.SharedSecretKey,
		BodyLimit:    cfg.MaxUploadBytes(),
	})

	// The mirror outlives the request context so the FAILED transitions
	// written during shutdown still reach it.
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	defer stopMirror()

	pool.Start(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	if jobMirror != nil {
		g.Go(func() error { return jobMirror.Run(mirrorCtx) })
	}
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.WithFields(logrus.Fields{
			"addr":              addr,
			"webhook_ready":     dispatcher.EndpointError() == nil,
			"dispatch_timeout":  cfg.DispatchTimeout.String(),
			"job_retention":     cfg.JobRetention.String(),
			"mirror_enabled":    jobMirror != nil,
			"callback_required": cfg.RequireCallbackToken,
		}).Info("Starting sheet relay")
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		err := app.ShutdownWithTimeout(shutdownTimeout)
		dispatcher.Shutdown()
		pool.Stop(true)
		stopMirror()
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Sheet relay stopped with error")
		return err
	}
	log.Info("Sheet relay stopped")
	return nil
}
