package stats

import (
	"context"
	"log/slog"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
	"github.com/geocoder89/surveyhub/internal/observability"
	"github.com/geocoder89/surveyhub/internal/remote"
)

type Service struct {
	q         survey.Questionnaire
	responses remote.ResponseStore
	log       *slog.Logger
}

func NewService(q survey.Questionnaire, responses remote.ResponseStore, log *slog.Logger) *Service {
	if log == nil {
		log = observability.Discard()
	}
	return &Service{q: q, responses: responses, log: log}
}

// Load fetches every row visible to the caller and aggregates it. On a
// fetch failure the returned summary is empty and marked Degraded, and the
// error is returned alongside it.
func (s *Service) Load(ctx context.Context) (Summary, error) {
	rows, err := s.responses.ListWithProfiles(ctx)
	if err != nil {
		s.log.Warn("load responses for stats failed", "err", err)
		sum := Aggregate(s.q, nil)
		sum.Degraded = true
		return sum, err
	}

	plain := make([]survey.Response, 0, len(rows))
	for _, r := range rows {
		plain = append(plain, r.Response)
	}
	return Aggregate(s.q, plain), nil
}
