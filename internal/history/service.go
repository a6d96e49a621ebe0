package history

import (
	"context"

	"carelink/internal/domain/call"
	"carelink/pkg/logger"
)

// Service archives terminal call records and serves history queries. It
// satisfies signaling.Archiver.
type Service struct {
	repo Repository
	log  *logger.Logger
}

func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Archive writes a terminal record as a history entry. Non-terminal
// records are ignored; archival is append-only.
func (s *Service) Archive(ctx context.Context, rec *call.Record) error {
	if rec == nil || !rec.Status.Terminal() {
		return nil
	}
	e := &Entry{
		CallID:      rec.CallID,
		CallerID:    rec.CallerID,
		CalleeID:    rec.CalleeID,
		PatientName: rec.PatientName,
		Status:      rec.Status,
		StartedAt:   rec.Timestamp,
		AnsweredAt:  rec.AnsweredAt,
		EndedAt:     rec.EndedAt,
		RejectedAt:  rec.RejectedAt,
	}
	if rec.AnsweredAt != nil && rec.EndedAt != nil {
		e.DurationSeconds = int32(rec.EndedAt.Sub(*rec.AnsweredAt).Seconds())
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("call %s archived as %s", rec.CallID, rec.Status)
	}
	return nil
}

// ListUserCalls returns the user's archived calls, newest first.
func (s *Service) ListUserCalls(ctx context.Context, userID string, page, limit int) ([]Entry, int64, error) {
	return s.repo.ListByUser(ctx, userID, page, limit)
}

// GetCall returns one archived call.
func (s *Service) GetCall(ctx context.Context, callID string) (Entry, error) {
	return s.repo.GetByCallID(ctx, callID)
}
