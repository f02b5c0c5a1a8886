// Package source collects recordings from the call systems. Every adapter
// yields dto.RawRecording values; adapters that copy audio place it under
// <archive root>/<YYYYMM>/<DD>/ and report every valid file in the window,
// copying only those not archived yet.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"record-sync/dto"
)

// ErrUnavailable marks a source that could not be reached at all.
var ErrUnavailable = errors.New("source unavailable")

type Source interface {
	Name() string
	// Fetch may return the recordings it managed to collect together with an
	// error, so copies already made are not lost to the next run.
	Fetch(ctx context.Context, w Window) ([]dto.RawRecording, error)
}

// QualityReporter is implemented by sources that reject malformed input
// instead of failing.
type QualityReporter interface {
	Warnings() []string
}

// Window is the call-time range an adapter looks at.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow spans from local midnight days before end up to end.
func NewWindow(end time.Time, days int) Window {
	start := end.AddDate(0, 0, -days)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, end.Location())
	return Window{Start: start, End: end}
}

// dayFolders lists the YYYYMMDD names of end's day and the days-1 before it.
func dayFolders(end time.Time, days int) []string {
	if days < 1 {
		days = 1
	}
	out := make([]string, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, end.AddDate(0, 0, -i).Format("20060102"))
	}
	return out
}

// archiveDir is <root>/<YYYYMM>/<DD> for the call time.
func archiveDir(root string, callTime time.Time) string {
	return filepath.Join(root, callTime.Format("200601"), callTime.Format("02"))
}

// copyIntoArchive copies src to <archive dir>/<name> unless the destination
// already exists. Callers offer the recording either way: an earlier run may
// have copied it without getting it stored.
func copyIntoArchive(root string, callTime time.Time, src, name string) (dir string, copied bool, err error) {
	dir = archiveDir(root, callTime)
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return dir, false, nil
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return dir, false, err
	}

	in, err := os.Open(src)
	if err != nil {
		return dir, false, err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return dir, false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return dir, false, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return dir, false, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return dir, false, err
	}
	return dir, true, nil
}
