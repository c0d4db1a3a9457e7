// Package cmd defines and implements the CLI commands for the reconciler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/config"
	"github.com/JakeFAU/catalog-reconciler/internal/server"
	"github.com/JakeFAU/catalog-reconciler/internal/service"
)

// App defines the application surface that commands use.
// Tests swap newApp to inject a fake.
type App interface {
	Service() *service.Service
	Logger() *zap.Logger
	Run(ctx context.Context) error
	Close() error
}

type appKeyType string

const appKey appKeyType = "app"

// newApp loads configuration from cfgFile (and RECONCILER_* variables) and
// builds the application.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Collects a remote catalog and reconciles it against a known baseline.",
		Long: `reconciler pages through a remote catalog search endpoint, extracts product
identifiers, and compares them with a baseline list. Identifiers that vanish
from this vantage point are recorded as region restricted.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				_ = appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the running command, which then reports
// whatever it collected so far.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
