package cmd

import (
	"github.com/spf13/cobra"
	"record-sync/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "record-sync",
		Short:         "collect call recordings, match them to cases and ship them over sftp",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		server(config),
		syncCmd(config),
		nonStandard(config),
		report(config),
		export(config),
		trigger(config),
		migrate(config),
	)
	return rootCmd
}
