// Command pluginhostd runs the VerifyWise plugin host: it opens persistence
// and blob storage, installs the bundled plugins and serves their routes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/blob"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/config"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/core"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/logging"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/notify"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/server"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
	"github.com/verifywise-ai/plugin-marketplace-sub002/plugins/activityfeed"
	"github.com/verifywise-ai/plugin-marketplace-sub002/plugins/datasetupload"
	"github.com/verifywise-ai/plugin-marketplace-sub002/plugins/frameworks"
	"github.com/verifywise-ai/plugin-marketplace-sub002/plugins/notifier"
	"github.com/verifywise-ai/plugin-marketplace-sub002/plugins/riskimport"
	"github.com/verifywise-ai/plugin-marketplace-sub002/plugins/webhookreceiver"
)

func main() {
	root := &cobra.Command{
		Use:           "pluginhostd",
		Short:         "VerifyWise plugin host",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the plugin API contract version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(pluginapi.Version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cleanup, err := logging.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer cleanup()
	log := logging.Get()

	engine := domain.NewRulesEngine()
	store, err := core.OpenPersistentStore(core.StorageOptions{
		Driver:      core.StorageDriver(strings.ToLower(cfg.StorageDriver)),
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}, engine)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	blobs, err := blob.Open(ctx, blob.Options{
		Driver: cfg.BlobDriver,
		Dir:    cfg.BlobDir,
		Bucket: cfg.BlobBucket,
	})
	if err != nil {
		return fmt.Errorf("open blob storage: %w", err)
	}
	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc := core.NewService(store, engine,
		core.WithLogger(*log),
		core.WithMetricsRecorder(metrics),
		core.WithBlobStore(blobs),
	)

	dispatcher := notify.NewDispatcher(notify.Settings{},
		notify.WithDispatchLogger(*log),
		notify.WithOutcomeCounter(prometheus.DefaultRegisterer),
	)
	dispatcher.StartSweeper(ctx, 30*time.Second)

	bundled := []pluginapi.Plugin{
		frameworks.MustNew(),
		riskimport.New(),
		datasetupload.New(),
		notifier.New(dispatcher),
		webhookreceiver.New(),
		activityfeed.New(),
	}
	for _, plugin := range bundled {
		if _, err := svc.InstallPlugin(ctx, plugin); err != nil {
			return fmt.Errorf("install plugin %s: %w", plugin.Manifest().Name, err)
		}
	}

	srv := server.NewServer(svc, cfg.ListenAddr(), server.WithServerLogger(*log))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Info().
		Str("addr", cfg.ListenAddr()).
		Str("storage", cfg.StorageDriver).
		Str("blob", cfg.BlobDriver).
		Int("plugins", len(bundled)).
		Msg("plugin host listening")

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
