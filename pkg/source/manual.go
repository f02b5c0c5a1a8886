package source

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/phone"
)

const manualTimeLayout = "20060102150405"

// ManualFolder lists hand-uploaded recordings named
// <tag>_<phone>_<YYYYMMDD>_<HHMMSS>.(mp3|wav). Files are referenced in place.
type ManualFolder struct {
	cfg      config.ManualSource
	warnings []string
}

func NewManualFolder(cfg config.ManualSource) *ManualFolder {
	return &ManualFolder{cfg: cfg}
}

func (m *ManualFolder) Name() string {
	return constant.OriginManual.String()
}

// Warnings lists the misnamed files seen by the last Fetch.
func (m *ManualFolder) Warnings() []string {
	return m.warnings
}

// Fetch ignores the window: every correctly named file is offered on every
// run and dedup happens at ingestion.
func (m *ManualFolder) Fetch(ctx context.Context, _ Window) ([]dto.RawRecording, error) {
	m.warnings = nil
	var out []dto.RawRecording
	err := filepath.WalkDir(m.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rec, ok := parseManualName(d.Name())
		if !ok {
			m.warnings = append(m.warnings, d.Name())
			return nil
		}
		rec.SourcePath = filepath.Dir(path)
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return out, errors.Join(ErrUnavailable, err)
	}

	zerolog.Ctx(ctx).Info().Str("origin", m.Name()).Int("found", len(out)).Int("misnamed", len(m.warnings)).Msg("manual folder scanned")
	return out, nil
}

func parseManualName(file string) (dto.RawRecording, bool) {
	ext := filepath.Ext(file)
	if ext != ".mp3" && ext != ".wav" {
		return dto.RawRecording{}, false
	}
	name := strings.TrimSuffix(file, ext)
	if strings.ContainsAny(name, ")-") || strings.Count(name, "_") != 3 {
		return dto.RawRecording{}, false
	}
	parts := strings.Split(name, "_")
	callTime, err := time.ParseInLocation(manualTimeLayout, parts[2]+parts[3], time.Local)
	if err != nil {
		return dto.RawRecording{}, false
	}
	return dto.RawRecording{
		Filename:      file,
		CallTime:      callTime,
		ContactNumber: phone.Normalize(parts[1]),
		Origin:        constant.OriginManual,
	}, true
}
