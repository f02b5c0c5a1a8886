package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/handler"
	server2 "record-sync/server"
)

// withApp wires the app and runs fn. A wiring failure is alerted as
// critical, the same way a failed run is.
func withApp(cfg *config.Config, fn func(ctx context.Context, app *server2.App) error) error {
	ctx := server2.SetupLogger(cfg)
	app, err := server2.NewApp(ctx, cfg)
	if err != nil {
		if alertErr := server2.NewAlerter(cfg).Alert(ctx, constant.SeverityCritical, "startup failed", err.Error()); alertErr != nil {
			zerolog.Ctx(ctx).Error().Err(alertErr).Msg("failed to send alert")
		}
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func runMode(cfg *config.Config, mode constant.RunMode) error {
	return withApp(cfg, func(ctx context.Context, app *server2.App) error {
		return handler.Dispatch(ctx, mode, app.Deps)
	})
}

func syncCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "collect, ingest, match and ship the standard batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cfg, constant.RunModeSync)
		},
	}
}

func nonStandard(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "nonstandard",
		Short: "ship recordings still unmatched at yesterday 00:00",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cfg, constant.RunModeNonStandard)
		},
	}
}

func report(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "report today|yesterday",
		Short:     "send the upload statistics and the unmatched export to the group chat",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"today", "yesterday"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "today":
				return runMode(cfg, constant.RunModeReportToday)
			case "yesterday":
				return runMode(cfg, constant.RunModeReportYesterday)
			default:
				return fmt.Errorf("unknown report %q, want today or yesterday", args[0])
			}
		},
	}
}

func export(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "write every recording without a case or mark to a spreadsheet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "unmatched_recordings.xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			return withApp(cfg, func(ctx context.Context, app *server2.App) error {
				n, err := app.Deps.ReportService.ExportUnmatched(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d recordings written to %s\n", n, path)
				return nil
			})
		},
	}
}

func migrate(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the records and upload_batches tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(ctx context.Context, app *server2.App) error {
				if err := app.Repo.Migrate(ctx); err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().Msg("migration finished")
				return nil
			})
		},
	}
}
