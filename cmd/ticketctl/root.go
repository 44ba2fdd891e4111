package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/app"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/observability"
)

type rootOptions struct {
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ticketctl",
		Short: "Operate the ticket workflow service",
		Long: `ticketctl runs maintenance tasks against the configured ticket store:
migrations, SLA reports, auto-close sweeps and reopen reviews.
Configuration comes from the same environment variables as the API.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON instead of tables")

	cmd.AddCommand(
		newMigrateCmd(),
		newSLACmd(opts),
		newAutoCloseCmd(opts),
		newReviewCmd(opts),
		newTokenCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewCLILogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withRuntime bootstraps stores and services for the duration of fn.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
