package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"record-sync/config"
	jobHandler "record-sync/handler"
	"record-sync/pkg/archive"
	"record-sync/pkg/notify"
	"record-sync/pkg/registry"
	"record-sync/pkg/retention"
	"record-sync/pkg/source"
	"record-sync/pkg/transfer"
	"record-sync/repository"
	"record-sync/service"
)

// App holds everything a run needs.
type App struct {
	Cfg  *config.Config
	Repo repository.RecordingRepository
	Deps jobHandler.ServiceDependencies
}

// NewAlerter builds the alert channel on its own so failures that happen
// before the app is wired can still be reported.
func NewAlerter(cfg *config.Config) notify.Alerter {
	return notify.NewAlerter(cfg.Alert, cfg.Notify.Attempts)
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := config.OpenDatabase(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	repo := repository.NewRepo(db)

	minioClient, err := config.NewMinioClient(cfg.Minio)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	notifier := notify.NewNotifier(cfg.Notify)
	alerter := NewAlerter(cfg)

	transport := transfer.NewSFTPTransport(transfer.Options{
		Endpoint: cfg.Transfer.Endpoint,
		User:     cfg.Transfer.User,
		Password: cfg.Transfer.Password,
		HostKey:  cfg.Transfer.HostKey,
		Timeout:  cfg.Transfer.Timeout,
	})

	ingestService := service.NewIngestService(repo)
	matchService := service.NewMatchService(repo, registry.NewLoader(cfg.Registry.Root))
	uploadService := service.NewUploadService(
		repo,
		cfg,
		archive.NewCommandEncryptor(cfg.Encrypt.Command, cfg.Encrypt.Suffix),
		transport,
		retention.NewStore(minioClient, cfg.Minio.Bucket),
	)
	reportService := service.NewReportService(repo, cfg, notifier)
	syncService := service.NewSyncService(
		BuildSources(cfg.Sources),
		ingestService,
		matchService,
		uploadService,
		notifier,
		alerter,
		service.SyncOptions{Lookback: cfg.App.Lookback(), WindowDays: cfg.App.WindowDays},
	)

	zerolog.Ctx(ctx).Debug().Str("driver", cfg.Storage.Driver).Bool("retention", minioClient != nil).Msg("app wired")
	return &App{
		Cfg:  cfg,
		Repo: repo,
		Deps: jobHandler.ServiceDependencies{
			SyncService:   syncService,
			UploadService: uploadService,
			ReportService: reportService,
			Alerter:       alerter,
		},
	}, nil
}

// BuildSources returns the enabled adapters in a fixed order.
func BuildSources(cfg config.Sources) []source.Source {
	var sources []source.Source
	if cfg.Share.Enabled {
		sources = append(sources, source.NewShareScan(cfg.Share))
	}
	if cfg.Voip.Enabled {
		sources = append(sources, source.NewVoipCDR(cfg.Voip))
	}
	if cfg.Okcc.Enabled {
		sources = append(sources, source.NewOkccCDR(cfg.Okcc))
	}
	if cfg.Manual.Enabled {
		sources = append(sources, source.NewManualFolder(cfg.Manual))
	}
	return sources
}

func (a *App) Close() error {
	sqlDB, err := a.Repo.GetDB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
