package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/partner-engine/internal/httpapi"
)

const defaultShutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the vetting and matching entry points over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen-addr", "", "address to listen on (default :8080)")
	viper.BindPFlag("listen-addr", serveCmd.Flags().Lookup("listen-addr"))
}

func serve() {
	config, logger := bootstrap(false)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting the partner-engine", zap.String("version", buildVersion()), zap.String("data_source", config.DataSource))

	e, err := newEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}
	defer e.Close()

	requestTimeout, shutdownTimeout := httpapi.DefaultRequestTimeout, defaultShutdownTimeout
	if config.HTTP != nil {
		if config.HTTP.RequestTimeout > 0 {
			requestTimeout = config.HTTP.RequestTimeout
		}
		if config.HTTP.ShutdownTimeout > 0 {
			shutdownTimeout = config.HTTP.ShutdownTimeout
		}
	}

	srv := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           httpapi.New(e.vetter, e.matcher, requestTimeout, logger.Named("http")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}
