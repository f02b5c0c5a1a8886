package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/rabbitmq"
	server2 "record-sync/server"
)

var triggerModes = map[string]constant.RunMode{
	string(constant.RunModeSync):            constant.RunModeSync,
	string(constant.RunModeNonStandard):     constant.RunModeNonStandard,
	string(constant.RunModeReportToday):     constant.RunModeReportToday,
	string(constant.RunModeReportYesterday): constant.RunModeReportYesterday,
}

func trigger(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger sync|nonstandard|report-today|report-yesterday",
		Short: "ask a running worker to start a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := triggerModes[args[0]]
			if !ok {
				return fmt.Errorf("unknown mode %q", args[0])
			}

			ctx, cancel := context.WithTimeout(server2.SetupLogger(cfg), time.Minute)
			defer cancel()

			conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
			if err != nil {
				return err
			}
			defer conn.Close()

			msg := dto.RunMessage{RequestId: uuid.New(), Mode: mode, SentAt: time.Now()}
			if err := rabbitmq.Publish(ctx, conn, cfg.Queue, rabbitmq.RunTopology, msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s requested (%s)\n", mode, msg.RequestId)
			return nil
		},
	}
}
