package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/entities"
)

type uploadFixture struct {
	repo      *memRepo
	svc       *uploadService
	transport *dirTransport
	store     *memStore
	srcDir    string
	dataPath  string
	now       time.Time
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	f := &uploadFixture{
		repo:      newMemRepo(),
		transport: &dirTransport{root: t.TempDir()},
		store:     &memStore{},
		srcDir:    t.TempDir(),
		dataPath:  t.TempDir(),
		now:       time.Date(2026, 10, 17, 15, 0, 0, 0, time.Local),
	}
	cfg := &config.Config{
		App:      config.App{DataPath: f.dataPath},
		Transfer: config.Transfer{StandardRoot: "/audio/standard", NonStandardRoot: "/audio/nonstandard"},
	}
	f.svc = NewUploadService(f.repo, cfg, copyEncryptor{}, f.transport, f.store).(*uploadService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *uploadFixture) add(t *testing.T, name string, at time.Time, caseId string) int64 {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.srcDir, name), []byte("audio "+name), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := &entities.Recording{Filename: name, SourcePath: f.srcDir, CallTime: at, ContactNumber: "13800000001", Origin: constant.OriginShare}
	if _, err := f.repo.InsertRecording(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if caseId != "" {
		if err := f.repo.AssignCase(context.Background(), rec.ID, caseId, "Loan"); err != nil {
			t.Fatal(err)
		}
	}
	return rec.ID
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestRunStandardShipsMatchedRecordings(t *testing.T) {
	f := newUploadFixture(t)
	a := f.add(t, "a.mp3", f.now.Add(-2*time.Hour), "A001")
	b := f.add(t, "b.mp3", f.now.Add(-time.Hour), "B001")
	unmatched := f.add(t, "c.mp3", f.now.Add(-time.Hour), "")

	at := time.Date(2026, 10, 17, 14, 30, 0, 0, time.Local)
	res, err := f.svc.RunStandard(context.Background(), at)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Records != 2 || res.Name != "20261017143000" {
		t.Fatalf("result = %+v", res)
	}
	if res.RemotePath != "/audio/standard/20261017/20261017143000.zip" {
		t.Fatalf("remote path = %s", res.RemotePath)
	}

	got := zipEntries(t, filepath.Join(f.transport.root, "20261017143000.zip"))
	want := []string{"a.mp3", "b.mp3", constant.IndexSheetName}
	if len(got) != len(want) {
		t.Fatalf("archive entries = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("archive entries = %v", got)
		}
	}

	for _, id := range []int64{a, b} {
		rec := f.repo.get(id)
		if rec.UploadTime == nil || !rec.UploadTime.Equal(f.now) {
			t.Fatalf("recording %d upload time = %v", id, rec.UploadTime)
		}
		if rec.Mark != nil {
			t.Fatalf("standard upload must not mark: %v", *rec.Mark)
		}
	}
	if f.repo.get(unmatched).UploadTime != nil {
		t.Fatal("unmatched recording must not be uploaded")
	}

	batch := f.repo.onlyBatch()
	if batch.Status != constant.BatchStatusCompleted || batch.RemotePath == nil || *batch.RemotePath != res.RemotePath {
		t.Fatalf("batch = %+v", batch)
	}
	if _, err := os.Stat(filepath.Join(f.dataPath, "data", res.Name)); !os.IsNotExist(err) {
		t.Fatalf("staging dir must be removed, stat err = %v", err)
	}
	if len(f.store.kept) != 1 || f.store.kept[0] != "standard/20261017/20261017143000.zip" {
		t.Fatalf("retention copies = %v", f.store.kept)
	}
}

type failingEncryptor struct{}

func (failingEncryptor) Encrypt(context.Context, string) (string, error) {
	return "", errors.New("encryption tool exited 1")
}

func TestEncryptionFailureLeavesArchiveAndMarksNothing(t *testing.T) {
	f := newUploadFixture(t)
	f.svc.encryptor = failingEncryptor{}
	a := f.add(t, "a.mp3", f.now.Add(-time.Hour), "A001")

	res, err := f.svc.RunStandard(context.Background(), f.now)
	if !errors.Is(err, ErrPackaging) {
		t.Fatalf("expected ErrPackaging, got %v", err)
	}
	if res != nil {
		t.Fatalf("result = %+v", res)
	}

	name := f.now.Format(constant.BatchLayout)
	stageDir := filepath.Join(f.dataPath, "data", name)
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		t.Fatalf("staging dir must be kept: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != name+constant.ArchiveExt {
		t.Fatalf("staging dir must hold only the archive, got %v", entries)
	}

	if f.repo.markCalls != 0 || f.repo.get(a).UploadTime != nil {
		t.Fatal("no recording may be marked after a packaging failure")
	}
	if len(f.transport.uploads) != 0 || len(f.store.kept) != 0 {
		t.Fatal("nothing may be shipped after a packaging failure")
	}
	batch := f.repo.onlyBatch()
	if batch.Status != constant.BatchStatusFailed || batch.LastError == nil {
		t.Fatalf("batch = %+v", batch)
	}
}

func TestTransportFailureLeavesStateUntouched(t *testing.T) {
	f := newUploadFixture(t)
	a := f.add(t, "a.mp3", f.now.Add(-time.Hour), "A001")
	b := f.add(t, "b.mp3", f.now.Add(-time.Hour), "B001")
	f.transport.err = errors.New("connection refused")

	_, err := f.svc.RunStandard(context.Background(), f.now)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if f.repo.markCalls != 0 {
		t.Fatal("no recording may be marked after a transport failure")
	}
	for _, id := range []int64{a, b} {
		if f.repo.get(id).UploadTime != nil {
			t.Fatalf("recording %d marked uploaded", id)
		}
	}
	batch := f.repo.onlyBatch()
	if batch.Status != constant.BatchStatusFailed || batch.LastError == nil {
		t.Fatalf("batch = %+v", batch)
	}

	before, _ := f.repo.FindPendingUpload(context.Background())
	f.transport.err = nil
	res, err := f.svc.RunStandard(context.Background(), f.now)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if res.Records != len(before) || len(before) != 2 {
		t.Fatalf("rerun shipped %d, selection was %d", res.Records, len(before))
	}
}

func TestStagingFailure(t *testing.T) {
	f := newUploadFixture(t)
	id := f.add(t, "a.mp3", f.now.Add(-time.Hour), "A001")
	if err := os.Remove(filepath.Join(f.srcDir, "a.mp3")); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.RunStandard(context.Background(), f.now)
	if !errors.Is(err, ErrStaging) {
		t.Fatalf("expected ErrStaging, got %v", err)
	}
	if f.repo.get(id).UploadTime != nil {
		t.Fatal("recording marked after staging failure")
	}
	if len(f.transport.uploads) != 0 {
		t.Fatal("nothing may be shipped")
	}
}

func TestEmptySelectionShipsNothing(t *testing.T) {
	f := newUploadFixture(t)
	f.add(t, "a.mp3", f.now.Add(-time.Hour), "")

	res, err := f.svc.RunStandard(context.Background(), f.now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Records != 0 || len(f.transport.uploads) != 0 || f.repo.onlyBatch() != nil {
		t.Fatalf("result = %+v uploads = %v", res, f.transport.uploads)
	}
}

func TestNonStandardCutoffBoundary(t *testing.T) {
	f := newUploadFixture(t)
	dayBefore := f.add(t, "old.mp3", time.Date(2026, 10, 15, 23, 59, 59, 0, time.Local), "")
	midnight := f.add(t, "midnight.mp3", time.Date(2026, 10, 16, 0, 0, 0, 0, time.Local), "")
	yesterday := f.add(t, "yesterday.mp3", time.Date(2026, 10, 16, 23, 59, 59, 0, time.Local), "")
	matched := f.add(t, "matched.mp3", time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local), "A001")

	if got := NonStandardCutoff(f.now); !got.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, time.Local)) {
		t.Fatalf("cutoff = %v", got)
	}

	res, err := f.svc.RunNonStandard(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Records != 2 || res.Mode != constant.UploadModeNonStandard {
		t.Fatalf("result = %+v", res)
	}
	if res.RemotePath != "/audio/nonstandard/20261017/20261017150000.zip" {
		t.Fatalf("remote path = %s", res.RemotePath)
	}
	for _, id := range []int64{dayBefore, midnight} {
		rec := f.repo.get(id)
		if rec.UploadTime == nil || rec.Mark == nil || *rec.Mark != constant.MarkNonStandard {
			t.Fatalf("recording %s not shipped as non-standard: %+v", rec.Filename, rec)
		}
	}
	if rec := f.repo.get(yesterday); rec.UploadTime != nil || rec.Mark != nil {
		t.Fatal("recording from yesterday 23:59:59 must wait")
	}
	if rec := f.repo.get(matched); rec.Mark != nil {
		t.Fatal("matched recording must not be marked non-standard")
	}

	again, err := f.svc.RunNonStandard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.Records != 0 {
		t.Fatalf("marked recordings reselected: %+v", again)
	}
}
