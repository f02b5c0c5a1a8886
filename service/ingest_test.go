package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"record-sync/config"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/pkg/source"
)

func raw(name, number string, at time.Time) dto.RawRecording {
	return dto.RawRecording{Filename: name, SourcePath: "/archive", CallTime: at, ContactNumber: number, Origin: constant.OriginShare}
}

func TestIngestIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	svc := NewIngestService(repo)
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.Local)
	batch := []dto.RawRecording{raw("a.mp3", "13800000001", at), raw("b.mp3", "13800000002", at), raw("a.mp3", "13800000001", at)}

	n, err := svc.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 2 {
		t.Fatalf("first ingest inserted %d, want 2", n)
	}

	n, err = svc.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if n != 0 {
		t.Fatalf("second ingest inserted %d, want 0", n)
	}
	if len(repo.recordings) != 2 {
		t.Fatalf("stored %d recordings", len(repo.recordings))
	}
}

func TestIngestStopsOnStorageError(t *testing.T) {
	repo := newMemRepo()
	repo.failInsert = "b.mp3"
	at := time.Now()

	n, err := NewIngestService(repo).Ingest(context.Background(), []dto.RawRecording{
		raw("a.mp3", "1", at), raw("b.mp3", "2", at), raw("c.mp3", "3", at),
	})
	if err == nil {
		t.Fatal("expected storage error")
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}
	if exists, _ := repo.ExistsByFilename(context.Background(), "a.mp3"); !exists {
		t.Fatal("rows before the failure must stay committed")
	}
	if exists, _ := repo.ExistsByFilename(context.Background(), "c.mp3"); exists {
		t.Fatal("rows after the failure must not be inserted")
	}
}

func TestArchivedRecordingIsStoredAfterFailedIngest(t *testing.T) {
	root := t.TempDir()
	name := "rec_13800000001_20261017_093015.mp3"
	dir := filepath.Join(root, "collections-east", "20261017")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	scan := source.NewShareScan(config.ShareSource{Root: root, DeptKeyword: "collections", ArchiveRoot: t.TempDir(), Days: 3})
	window := source.NewWindow(time.Date(2026, 10, 17, 12, 0, 0, 0, time.Local), 3)
	repo := newMemRepo()
	repo.failInsert = name
	svc := NewIngestService(repo)

	recs, err := scan.Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), recs); err == nil {
		t.Fatal("expected storage error")
	}

	repo.failInsert = ""
	recs, err = scan.Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	n, err := svc.Ingest(context.Background(), recs)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("recording must be stored on the next run, inserted %d", n)
	}
}
