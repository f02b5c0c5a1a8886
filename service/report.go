package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/notify"
	"record-sync/pkg/sheet"
	"record-sync/repository"
)

const exportName = "unmatched_recordings.xlsx"

var exportHeader = []any{"id", "filename", "source_path", "call_time", "contact_number", "origin_tag", "case_id", "product_name", "upload_time", "mark"}

type ReportService interface {
	// SuccessRate counts recordings whose call time falls on day's calendar
	// date and how many of them were uploaded.
	SuccessRate(ctx context.Context, day time.Time) (*dto.SuccessRate, error)
	// ExportUnmatched writes every recording with no case and no mark,
	// whatever its call time, and returns how many rows were written.
	ExportUnmatched(ctx context.Context, path string) (int, error)
	// Broadcast sends the today or yesterday summary with the export
	// attached. The export file is removed afterwards.
	Broadcast(ctx context.Context, mode constant.RunMode) error
}

type reportService struct {
	repo     repository.RecordingRepository
	cfg      *config.Config
	notifier notify.Notifier
	now      func() time.Time
}

func NewReportService(repo repository.RecordingRepository, cfg *config.Config, notifier notify.Notifier) ReportService {
	return &reportService{repo: repo, cfg: cfg, notifier: notifier, now: time.Now}
}

// FormatRate renders uploaded/total as a whole percentage, "0%" when total
// is zero.
func FormatRate(total, uploaded int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int64(math.Round(float64(uploaded)*100/float64(total))))
}

func (s *reportService) SuccessRate(ctx context.Context, day time.Time) (*dto.SuccessRate, error) {
	start := startOfDay(day)
	total, uploaded, err := s.repo.CountByCallTime(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to count recordings")
		return nil, err
	}
	return &dto.SuccessRate{Total: total, Uploaded: uploaded, Rate: FormatRate(total, uploaded)}, nil
}

func (s *reportService) ExportUnmatched(ctx context.Context, path string) (int, error) {
	recordings, err := s.repo.FindUnmatched(ctx, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to select unmatched recordings")
		return 0, err
	}

	rows := make([][]any, 0, len(recordings))
	for _, rec := range recordings {
		uploadTime := ""
		if rec.UploadTime != nil {
			uploadTime = rec.UploadTime.Format(constant.TimeLayout)
		}
		rows = append(rows, []any{
			rec.ID,
			rec.Filename,
			rec.SourcePath,
			rec.CallTime.Format(constant.TimeLayout),
			rec.ContactNumber,
			rec.Origin.String(),
			deref(rec.CaseId),
			deref(rec.ProductName),
			uploadTime,
			deref(rec.Mark),
		})
	}
	if err := sheet.Write(path, exportHeader, rows); err != nil {
		return 0, err
	}

	zerolog.Ctx(ctx).Info().Str("path", path).Int("records", len(rows)).Msg("unmatched recordings exported")
	return len(rows), nil
}

func (s *reportService) Broadcast(ctx context.Context, mode constant.RunMode) error {
	now := s.now()
	day := now
	if mode == constant.RunModeReportYesterday {
		day = now.AddDate(0, 0, -1)
	} else if mode != constant.RunModeReportToday {
		return fmt.Errorf("unknown report mode %q", mode)
	}

	if err := os.MkdirAll(s.cfg.App.DataPath, os.ModePerm); err != nil {
		return err
	}
	path := filepath.Join(s.cfg.App.DataPath, exportName)
	defer os.Remove(path)

	pending, err := s.ExportUnmatched(ctx, path)
	if err != nil {
		return err
	}
	rate, err := s.SuccessRate(ctx, day)
	if err != nil {
		return err
	}

	if err := s.notifier.SendText(ctx, summaryText(mode, rate, pending)); err != nil {
		return err
	}
	return s.notifier.SendFile(ctx, path)
}

func summaryText(mode constant.RunMode, rate *dto.SuccessRate, pending int) string {
	title := "Recording upload statistics for yesterday:"
	footer := ""
	if mode == constant.RunModeReportToday {
		title = "Recording upload statistics for today (so far):"
		footer = "\nRecordings still unmatched tonight will be shipped by the non-standard upload."
	}
	return fmt.Sprintf("%s\nRecordings produced: %d\nRecordings uploaded: %d\nCase match rate: %s\n"+
		"----------------------------\nRecordings not yet matched to a case: %d\nPlease keep the case registry up to date!%s",
		title, rate.Total, rate.Uploaded, rate.Rate, pending, footer)
}
