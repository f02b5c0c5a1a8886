package service

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"record-sync/constant"
	"record-sync/dto"
	"record-sync/entities"
	"record-sync/pkg/archive"
	"record-sync/pkg/registry"
	"record-sync/pkg/retention"
	"record-sync/pkg/source"
	"record-sync/repository"
)

// memRepo is an in-memory RecordingRepository.
type memRepo struct {
	mu         sync.Mutex
	nextId     int64
	recordings map[int64]*entities.Recording
	batches    map[uuid.UUID]*entities.UploadBatch
	failInsert string
	markCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		recordings: map[int64]*entities.Recording{},
		batches:    map[uuid.UUID]*entities.UploadBatch{},
	}
}

func (r *memRepo) Transaction(_ context.Context, callback func(repo repository.RecordingRepository) error) error {
	return callback(r)
}

func (r *memRepo) GetDB() *gorm.DB { return nil }

func (r *memRepo) Migrate(context.Context) error { return nil }

func (r *memRepo) ExistsByFilename(_ context.Context, filename string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recordings {
		if rec.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) InsertRecording(ctx context.Context, recording *entities.Recording) (bool, error) {
	if recording.Filename == r.failInsert {
		return false, errors.New("connection reset")
	}
	exists, _ := r.ExistsByFilename(ctx, recording.Filename)
	if exists {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextId++
	copied := *recording
	copied.ID = r.nextId
	recording.ID = r.nextId
	r.recordings[copied.ID] = &copied
	return true, nil
}

func (r *memRepo) sorted(keep func(*entities.Recording) bool) []*entities.Recording {
	var out []*entities.Recording
	for _, rec := range r.recordings {
		if keep(rec) {
			copied := *rec
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) FindUnmatched(_ context.Context, cutoff *time.Time) ([]*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(rec *entities.Recording) bool {
		if rec.CaseId != nil || rec.Mark != nil {
			return false
		}
		return cutoff == nil || !rec.CallTime.After(*cutoff)
	}), nil
}

func (r *memRepo) FindPendingUpload(context.Context) ([]*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(rec *entities.Recording) bool {
		return rec.CaseId != nil && rec.UploadTime == nil
	}), nil
}

func (r *memRepo) UpdateRecordingField(_ context.Context, id int64, field string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recordings[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	switch field {
	case "case_id":
		v := value.(string)
		rec.CaseId = &v
	case "product_name":
		v := value.(string)
		rec.ProductName = &v
	case "mark":
		v := value.(string)
		rec.Mark = &v
	case "upload_time":
		v := value.(time.Time)
		rec.UploadTime = &v
	default:
		return errors.New("field not updatable")
	}
	return nil
}

func (r *memRepo) AssignCase(ctx context.Context, id int64, caseId, productName string) error {
	if err := r.UpdateRecordingField(ctx, id, "case_id", caseId); err != nil {
		return err
	}
	return r.UpdateRecordingField(ctx, id, "product_name", productName)
}

func (r *memRepo) MarkUploaded(ctx context.Context, ids []int64, uploadedAt time.Time, mark *string) error {
	r.markCalls++
	for _, id := range ids {
		if err := r.UpdateRecordingField(ctx, id, "upload_time", uploadedAt); err != nil {
			return err
		}
		if mark != nil {
			if err := r.UpdateRecordingField(ctx, id, "mark", *mark); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *memRepo) CountByCallTime(_ context.Context, start, end time.Time) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total, uploaded int64
	for _, rec := range r.recordings {
		if rec.CallTime.Before(start) || !rec.CallTime.Before(end) {
			continue
		}
		total++
		if rec.UploadTime != nil {
			uploaded++
		}
	}
	return total, uploaded, nil
}

func (r *memRepo) CreateBatch(_ context.Context, batch *entities.UploadBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *batch
	r.batches[batch.ID] = &copied
	return nil
}

func (r *memRepo) UpdateBatchStatus(_ context.Context, id uuid.UUID, status constant.BatchStatus, remotePath, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.Status = status
	if remotePath != nil {
		b.RemotePath = remotePath
	}
	if lastError != nil {
		b.LastError = lastError
	}
	return nil
}

func (r *memRepo) get(id int64) *entities.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.recordings[id]
	return &copied
}

func (r *memRepo) onlyBatch() *entities.UploadBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		copied := *b
		return &copied
	}
	return nil
}

type staticLoader struct {
	reg      *registry.Registry
	warnings []registry.Warning
	err      error
	calls    int
}

func (l *staticLoader) Load(context.Context) (*registry.Registry, []registry.Warning, error) {
	l.calls++
	return l.reg, l.warnings, l.err
}

// copyEncryptor stands in for the external tool by copying the archive to
// its encrypted name.
type copyEncryptor struct{}

func (copyEncryptor) Encrypt(_ context.Context, zipPath string) (string, error) {
	dst := archive.EncryptedPath(zipPath, "_encrypted")
	in, err := os.Open(zipPath)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return dst, err
}

// dirTransport "uploads" into a local directory.
type dirTransport struct {
	root    string
	err     error
	uploads []string
}

func (d *dirTransport) Upload(_ context.Context, localPath, root, day, name string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	remote := root + "/" + day + "/" + name
	dst := d.root + "/" + name
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	d.uploads = append(d.uploads, remote)
	return remote, nil
}

type memStore struct {
	kept []string
}

func (m *memStore) Keep(_ context.Context, localPath, mode, day, name string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	m.kept = append(m.kept, retention.ObjectKey(mode, day, name))
	return nil
}

type recordingNotifier struct {
	texts []string
	files []string
	// seen records whether each file existed when SendFile was called.
	seen []bool
}

func (n *recordingNotifier) SendText(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) SendFile(_ context.Context, path string) error {
	_, err := os.Stat(path)
	n.files = append(n.files, path)
	n.seen = append(n.seen, err == nil)
	return nil
}

type alertCall struct {
	severity    constant.Severity
	information string
	details     string
}

type recordingAlerter struct {
	calls []alertCall
}

func (a *recordingAlerter) Alert(_ context.Context, severity constant.Severity, information, details string) error {
	a.calls = append(a.calls, alertCall{severity, information, details})
	return nil
}

type stubSource struct {
	name     string
	out      []dto.RawRecording
	err      error
	warnings []string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(context.Context, source.Window) ([]dto.RawRecording, error) {
	return s.out, s.err
}

type warningSource struct {
	stubSource
}

func (w *warningSource) Warnings() []string { return w.warnings }

// readSheet returns every row of the workbook's active sheet.
func readSheet(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		t.Fatal(err)
	}
	return rows
}
