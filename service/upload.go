package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
	"record-sync/entities"
	"record-sync/pkg/archive"
	"record-sync/pkg/retention"
	"record-sync/pkg/sheet"
	"record-sync/pkg/transfer"
	"record-sync/repository"
)

var indexHeader = []any{"filename", "call_time", "contact_number", "case_id", "product_name", "caller_number"}

type UploadResult struct {
	BatchId    uuid.UUID
	Name       string
	Mode       constant.UploadMode
	Records    int
	RemotePath string
}

type UploadService interface {
	// RunStandard ships every matched recording not uploaded yet. The batch
	// is named after at.
	RunStandard(ctx context.Context, at time.Time) (*UploadResult, error)
	// RunNonStandard ships recordings still unmatched at yesterday 00:00:00
	// and marks them as such.
	RunNonStandard(ctx context.Context) (*UploadResult, error)
}

type uploadService struct {
	repo      repository.RecordingRepository
	cfg       *config.Config
	encryptor archive.Encryptor
	transport transfer.Transport
	store     retention.Store
	now       func() time.Time
}

func NewUploadService(
	repo repository.RecordingRepository,
	cfg *config.Config,
	encryptor archive.Encryptor,
	transport transfer.Transport,
	store retention.Store,
) UploadService {
	return &uploadService{
		repo:      repo,
		cfg:       cfg,
		encryptor: encryptor,
		transport: transport,
		store:     store,
		now:       time.Now,
	}
}

func (s *uploadService) RunStandard(ctx context.Context, at time.Time) (*UploadResult, error) {
	recordings, err := s.repo.FindPendingUpload(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to select recordings to upload")
		return nil, err
	}
	return s.run(ctx, constant.UploadModeStandard, at, recordings, s.cfg.Transfer.StandardRoot, nil)
}

func (s *uploadService) RunNonStandard(ctx context.Context) (*UploadResult, error) {
	now := s.now()
	cutoff := NonStandardCutoff(now)
	recordings, err := s.repo.FindUnmatched(ctx, &cutoff)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to select stale recordings")
		return nil, err
	}
	mark := constant.MarkNonStandard
	return s.run(ctx, constant.UploadModeNonStandard, now, recordings, s.cfg.Transfer.NonStandardRoot, &mark)
}

func (s *uploadService) run(
	ctx context.Context,
	mode constant.UploadMode,
	at time.Time,
	recordings []*entities.Recording,
	remoteRoot string,
	mark *string,
) (result *UploadResult, err error) {
	name := at.Format(constant.BatchLayout)
	if len(recordings) == 0 {
		zerolog.Ctx(ctx).Info().Str("mode", mode.String()).Msg("nothing to upload")
		return &UploadResult{Name: name, Mode: mode}, nil
	}

	batch := &entities.UploadBatch{
		ID:          uuid.New(),
		Name:        name,
		Mode:        mode,
		Status:      constant.BatchStatusPending,
		RecordCount: len(recordings),
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create upload batch")
		return nil, err
	}
	if err := s.repo.UpdateBatchStatus(ctx, batch.ID, constant.BatchStatusProcessing, nil, nil); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update batch status")
		return nil, err
	}

	defer func() {
		if err != nil {
			msg := err.Error()
			if updateErr := s.repo.UpdateBatchStatus(ctx, batch.ID, constant.BatchStatusFailed, nil, &msg); updateErr != nil {
				zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update batch status")
			}
		}
	}()

	log := zerolog.Ctx(ctx).With().Str("batch", name).Str("mode", mode.String()).Int("records", len(recordings)).Logger()
	log.Info().Msg("upload batch started")

	stageDir := filepath.Join(s.cfg.App.DataPath, "data", name)
	if err = stage(stageDir, recordings); err != nil {
		log.Error().Err(err).Msg("failed to stage recordings")
		return nil, errors.Join(ErrStaging, err)
	}

	zipPath, err := archive.ZipDir(ctx, stageDir, name)
	if err != nil {
		log.Error().Err(err).Msg("failed to zip batch")
		return nil, errors.Join(ErrPackaging, err)
	}
	encrypted, err := s.encryptor.Encrypt(ctx, zipPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to encrypt batch")
		return nil, errors.Join(ErrPackaging, err)
	}

	day := s.now().Format(constant.DateLayout)
	remotePath, err := s.transport.Upload(ctx, encrypted, remoteRoot, day, name+constant.ArchiveExt)
	if err != nil {
		log.Error().Err(err).Msg("failed to upload batch")
		return nil, errors.Join(ErrTransport, err)
	}

	if keepErr := s.store.Keep(ctx, encrypted, mode.String(), day, name+constant.ArchiveExt); keepErr != nil {
		log.Warn().Err(keepErr).Msg("archive not mirrored")
	}
	if rmErr := os.RemoveAll(stageDir); rmErr != nil {
		log.Warn().Err(rmErr).Msg("failed to remove staging dir")
	}

	ids := make([]int64, 0, len(recordings))
	for _, rec := range recordings {
		ids = append(ids, rec.ID)
	}
	if err = s.repo.MarkUploaded(ctx, ids, s.now(), mark); err != nil {
		log.Error().Err(err).Str("remote_path", remotePath).Msg("archive shipped but recordings not marked")
		return nil, err
	}

	if err := s.repo.UpdateBatchStatus(ctx, batch.ID, constant.BatchStatusCompleted, &remotePath, nil); err != nil {
		log.Error().Err(err).Msg("failed to update batch status")
	}

	log.Info().Str("remote_path", remotePath).Msg("upload batch completed")
	return &UploadResult{
		BatchId:    batch.ID,
		Name:       name,
		Mode:       mode,
		Records:    len(recordings),
		RemotePath: remotePath,
	}, nil
}

// stage recreates dir with a copy of every recording and the index sheet.
func stage(dir string, recordings []*entities.Recording) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	rows := make([][]any, 0, len(recordings))
	for _, rec := range recordings {
		rows = append(rows, []any{
			rec.Filename,
			rec.CallTime.Format(constant.TimeLayout),
			rec.ContactNumber,
			deref(rec.CaseId),
			deref(rec.ProductName),
			constant.CallerUnknown,
		})
		if err := copyFile(filepath.Join(rec.SourcePath, rec.Filename), filepath.Join(dir, rec.Filename)); err != nil {
			return err
		}
	}
	return sheet.Write(filepath.Join(dir, constant.IndexSheetName), indexHeader, rows)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
