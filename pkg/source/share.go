package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/phone"
)

const shareTimeLayout = "20060102_150405"

// ShareScan reads recordings dropped by the mobile-call system into
// <root>/<department>/<YYYYMMDD>/..., one department folder per team.
type ShareScan struct {
	cfg config.ShareSource
}

func NewShareScan(cfg config.ShareSource) *ShareScan {
	return &ShareScan{cfg: cfg}
}

func (s *ShareScan) Name() string {
	return constant.OriginShare.String()
}

func (s *ShareScan) Fetch(ctx context.Context, w Window) ([]dto.RawRecording, error) {
	depts, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	var out []dto.RawRecording
	var errs []error
	copies := 0
	for _, dept := range depts {
		if !dept.IsDir() || !strings.Contains(dept.Name(), s.cfg.DeptKeyword) {
			continue
		}
		for _, day := range dayFolders(w.End, s.cfg.Days) {
			dayDir := filepath.Join(s.cfg.Root, dept.Name(), day)
			err := filepath.WalkDir(dayDir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						return nil
					}
					return err
				}
				if d.IsDir() {
					return nil
				}
				rec, ok := parseShareName(d.Name())
				if !ok {
					zerolog.Ctx(ctx).Debug().Str("file", path).Msg("share file skipped")
					return nil
				}
				dir, copied, err := copyIntoArchive(s.cfg.ArchiveRoot, rec.CallTime, path, rec.Filename)
				if err != nil {
					errs = append(errs, err)
					return nil
				}
				if copied {
					copies++
				}
				rec.SourcePath = dir
				out = append(out, rec)
				return nil
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	zerolog.Ctx(ctx).Info().Str("origin", s.Name()).Int("offered", len(out)).Int("copied", copies).Int("errors", len(errs)).Msg("share scan finished")
	return out, errors.Join(errs...)
}

// parseShareName turns "<tag>_<phone>_..._YYYYMMDD_HHMMSS.ext" into a
// recording. Hyphens become underscores and the +86 prefix is dropped before
// parsing; names containing ')' are copies made by the phone and are
// ignored, as are service numbers (4 digits or fewer, or starting with 100).
func parseShareName(file string) (dto.RawRecording, bool) {
	name := strings.ReplaceAll(strings.ReplaceAll(file, "-", "_"), "+86", "")
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.Contains(base, ")") || len(base) < len(shareTimeLayout) {
		return dto.RawRecording{}, false
	}

	callTime, err := time.ParseInLocation(shareTimeLayout, base[len(base)-len(shareTimeLayout):], time.Local)
	if err != nil {
		return dto.RawRecording{}, false
	}

	parts := strings.SplitN(base, "_", 4)
	if len(parts) < 3 {
		return dto.RawRecording{}, false
	}
	number := parts[len(parts)-3]
	if len(number) <= 4 || strings.HasPrefix(number, "100") {
		return dto.RawRecording{}, false
	}

	return dto.RawRecording{
		Filename:      name,
		CallTime:      callTime,
		ContactNumber: phone.Normalize(number),
		Origin:        constant.OriginShare,
	}, true
}
