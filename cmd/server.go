package cmd

import (
	"github.com/spf13/cobra"
	"record-sync/config"
	server2 "record-sync/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "consume run requests and serve health/stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunWorker(config)
		},
	}
}
