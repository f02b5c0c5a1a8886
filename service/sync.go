package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/notify"
	"record-sync/pkg/source"
)

type SyncResult struct {
	Fetched       int
	Inserted      int
	FailedSources []string
	Match         *MatchResult
	Upload        *UploadResult
}

type SyncService interface {
	// Run collects from every source, ingests, matches at now-lookback and
	// ships the standard batch.
	Run(ctx context.Context) (*SyncResult, error)
}

type SyncOptions struct {
	Lookback   time.Duration
	WindowDays int
}

type syncService struct {
	sources  []source.Source
	ingest   IngestService
	matcher  MatchService
	upload   UploadService
	notifier notify.Notifier
	alerter  notify.Alerter
	opts     SyncOptions
	now      func() time.Time
}

func NewSyncService(
	sources []source.Source,
	ingest IngestService,
	matcher MatchService,
	upload UploadService,
	notifier notify.Notifier,
	alerter notify.Alerter,
	opts SyncOptions,
) SyncService {
	return &syncService{
		sources:  sources,
		ingest:   ingest,
		matcher:  matcher,
		upload:   upload,
		notifier: notifier,
		alerter:  alerter,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *syncService) Run(ctx context.Context) (*SyncResult, error) {
	cutoff := s.now().Add(-s.opts.Lookback)
	window := source.NewWindow(cutoff, s.opts.WindowDays)
	zerolog.Ctx(ctx).Info().Time("cutoff", cutoff).Time("window_start", window.Start).Msg("sync run started")

	result := &SyncResult{}
	var collected []dto.RawRecording
	for _, src := range s.sources {
		recordings, err := src.Fetch(ctx, window)
		collected = append(collected, recordings...)
		if err != nil {
			result.FailedSources = append(result.FailedSources, src.Name())
			zerolog.Ctx(ctx).Error().Err(err).Str("origin", src.Name()).Int("partial", len(recordings)).Msg("source failed")
			s.alert(ctx, constant.SeverityMajor, "recording source failed", fmt.Sprintf("%s: %v", src.Name(), err))
		}
		if qr, ok := src.(source.QualityReporter); ok && len(qr.Warnings()) > 0 {
			s.notify(ctx, ManualWarningText(qr.Warnings()))
		}
	}
	result.Fetched = len(collected)

	inserted, err := s.ingest.Ingest(ctx, collected)
	result.Inserted = inserted
	if err != nil {
		return result, fmt.Errorf("ingest: %w", err)
	}

	match, err := s.matcher.Match(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("match: %w", err)
	}
	result.Match = match
	if len(match.Warnings) > 0 {
		s.notify(ctx, RegistryWarningText(match.Warnings))
	}

	upload, err := s.upload.RunStandard(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("standard upload: %w", err)
	}
	result.Upload = upload

	zerolog.Ctx(ctx).Info().
		Int("fetched", result.Fetched).
		Int("inserted", result.Inserted).
		Int("matched", match.Matched).
		Int("uploaded", upload.Records).
		Strs("failed_sources", result.FailedSources).
		Msg("sync run finished")
	return result, nil
}

func (s *syncService) alert(ctx context.Context, severity constant.Severity, information, details string) {
	if err := s.alerter.Alert(ctx, severity, information, details); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to send alert")
	}
}

func (s *syncService) notify(ctx context.Context, text string) {
	if err := s.notifier.SendText(ctx, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to send notification")
	}
}
