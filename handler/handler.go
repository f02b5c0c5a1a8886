package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/notify"
	"record-sync/service"
)

type ServiceDependencies struct {
	SyncService   service.SyncService
	UploadService service.UploadService
	ReportService service.ReportService
	Alerter       notify.Alerter
}

func RunHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var run dto.RunMessage
	if err := json.Unmarshal(msg.Body, &run); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal run message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("request_id", run.RequestId.String()).
		Str("mode", string(run.Mode)).
		Msg("received run message")

	return Dispatch(ctx, run.Mode, deps)
}

// Dispatch executes one run. Any failure, a panic included, is reported as a
// critical alert before being returned.
func Dispatch(ctx context.Context, mode constant.RunMode, deps ServiceDependencies) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("run panicked")
			err = fmt.Errorf("%s run panicked: %v", mode, r)
		}
		if err == nil {
			return
		}
		if alertErr := deps.Alerter.Alert(ctx, constant.SeverityCritical, fmt.Sprintf("%s run failed", mode), err.Error()); alertErr != nil {
			zerolog.Ctx(ctx).Error().Err(alertErr).Msg("failed to send alert")
		}
	}()
	return dispatch(ctx, mode, deps)
}

func dispatch(ctx context.Context, mode constant.RunMode, deps ServiceDependencies) error {
	switch mode {
	case constant.RunModeSync:
		_, err := deps.SyncService.Run(ctx)
		return err
	case constant.RunModeNonStandard:
		_, err := deps.UploadService.RunNonStandard(ctx)
		return err
	case constant.RunModeReportToday, constant.RunModeReportYesterday:
		return deps.ReportService.Broadcast(ctx, mode)
	default:
		return fmt.Errorf("unknown run mode %q", mode)
	}
}
