package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"record-sync/pkg/phone"
	"record-sync/pkg/registry"
	"record-sync/repository"
)

type RegistryLoader interface {
	Load(ctx context.Context) (*registry.Registry, []registry.Warning, error)
}

type MatchResult struct {
	Eligible int
	Matched  int
	Warnings []registry.Warning
}

type MatchService interface {
	// Match assigns a case to every recording with no case and no mark whose
	// call time is at or before cutoff. The registry is re-read on each call.
	Match(ctx context.Context, cutoff time.Time) (*MatchResult, error)
}

type matchService struct {
	repo   repository.RecordingRepository
	loader RegistryLoader
}

func NewMatchService(repo repository.RecordingRepository, loader RegistryLoader) MatchService {
	return &matchService{repo: repo, loader: loader}
}

func (s *matchService) Match(ctx context.Context, cutoff time.Time) (*MatchResult, error) {
	recordings, err := s.repo.FindUnmatched(ctx, &cutoff)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to select unmatched recordings")
		return nil, err
	}
	result := &MatchResult{Eligible: len(recordings)}
	if len(recordings) == 0 {
		zerolog.Ctx(ctx).Info().Time("cutoff", cutoff).Msg("no recordings to match")
		return result, nil
	}

	reg, warnings, err := s.loader.Load(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to load case registry")
		return nil, err
	}
	result.Warnings = warnings

	for _, rec := range recordings {
		c, ok := reg.FirstMatch(phone.Normalize(rec.ContactNumber))
		if !ok {
			continue
		}
		if err := s.repo.AssignCase(ctx, rec.ID, c.CaseId, c.ProductName); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("recording_id", rec.ID).Msg("failed to assign case")
			return result, err
		}
		result.Matched++
	}

	zerolog.Ctx(ctx).Info().
		Time("cutoff", cutoff).
		Int("eligible", result.Eligible).
		Int("matched", result.Matched).
		Int("warnings", len(result.Warnings)).
		Msg("recordings matched")
	return result, nil
}

// RegistryWarningText renders registry warnings as one chat message.
func RegistryWarningText(warnings []registry.Warning) string {
	var b strings.Builder
	for _, w := range warnings {
		b.WriteString(w.String())
		b.WriteString("\n")
	}
	b.WriteString("Formulas are not allowed in the case registry: rows containing them cannot be read.")
	return b.String()
}

// ManualWarningText renders misnamed manual uploads as one chat message.
func ManualWarningText(files []string) string {
	return fmt.Sprintf("%d files in the manual upload folder are misnamed and cannot be uploaded, please fix them:\n%s",
		len(files), strings.Join(files, "\n"))
}
