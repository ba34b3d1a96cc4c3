package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dsvrelay/dsv-relay/internal/api"
	"github.com/dsvrelay/dsv-relay/internal/config"
	"github.com/dsvrelay/dsv-relay/internal/notifications"
	"github.com/dsvrelay/dsv-relay/internal/practicecode"
	"github.com/dsvrelay/dsv-relay/internal/report"
	"github.com/dsvrelay/dsv-relay/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report intake HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	mgr, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := mgr.Get()
	mgr.Watch(func(c *config.Config) {
		if c.PracticeCode != cfg.PracticeCode || c.Server.Port != cfg.Server.Port {
			logger.Warn("counter store and listen address changes need a restart")
		}
	})

	setup, err := practicecode.SetupFromConfig(ctx, cfg.PracticeCode, cfg.App.Location(), logger)
	if err != nil {
		return err
	}
	defer setup.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.Collector(),
	)

	mailer := notifications.NewConfigProvider(func() config.MailConfig { return mgr.Get().Mail }, logger.Named("mail"))
	svc := report.NewService(setup.Allocator, mailer, report.SettingsFromConfig(mgr),
		report.WithMetrics(report.NewMetrics(reg)),
		report.WithLogger(logger.Named("report")))

	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterOptions{
		Reports:  svc,
		Config:   mgr,
		Logger:   logger.Named("http"),
		Gatherer: reg,
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("version", version.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
