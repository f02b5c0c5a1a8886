package service

import (
	"context"

	"github.com/rs/zerolog"
	"record-sync/dto"
	"record-sync/entities"
	"record-sync/repository"
)

type IngestService interface {
	// Ingest inserts every recording whose filename is not stored yet and
	// returns how many rows were added. Each insert commits on its own; a
	// storage error stops the call with earlier inserts kept.
	Ingest(ctx context.Context, recordings []dto.RawRecording) (int, error)
}

type ingestService struct {
	repo repository.RecordingRepository
}

func NewIngestService(repo repository.RecordingRepository) IngestService {
	return &ingestService{repo: repo}
}

func (s *ingestService) Ingest(ctx context.Context, recordings []dto.RawRecording) (int, error) {
	inserted := 0
	for _, raw := range recordings {
		exists, err := s.repo.ExistsByFilename(ctx, raw.Filename)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("filename", raw.Filename).Msg("failed to check recording")
			return inserted, err
		}
		if exists {
			continue
		}

		ok, err := s.repo.InsertRecording(ctx, &entities.Recording{
			Filename:      raw.Filename,
			SourcePath:    raw.SourcePath,
			CallTime:      raw.CallTime,
			ContactNumber: raw.ContactNumber,
			Origin:        raw.Origin,
		})
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("filename", raw.Filename).Msg("failed to insert recording")
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	zerolog.Ctx(ctx).Info().Int("offered", len(recordings)).Int("inserted", inserted).Msg("recordings ingested")
	return inserted, nil
}
