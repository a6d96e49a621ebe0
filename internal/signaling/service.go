package signaling

import (
	"context"
	"time"

	"carelink/internal/domain/call"
	"carelink/internal/store"
	carelink_errors "carelink/pkg/errors"
	"carelink/pkg/logger"

	"go.uber.org/zap"
)

// Archiver receives records that reached a terminal state. Archival is a
// read model; its failures never fail the signaling operation.
type Archiver interface {
	Archive(ctx context.Context, rec *call.Record) error
}

// Outcome reports the result of a conditional transition. Applied false
// with a non-nil Record is a race loss: another writer already moved the
// record, and Record carries the authoritative state.
type Outcome struct {
	Applied bool
	Record  *call.Record
}

// Service implements the propose/answer/reject/end/timeout protocol over
// the shared record store.
type Service struct {
	store    store.RecordStore
	archiver Archiver
	log      *logger.Logger
}

func NewService(recordStore store.RecordStore, archiver Archiver, log *logger.Logger) *Service {
	return &Service{store: recordStore, archiver: archiver, log: log}
}

// Propose creates a fresh INITIATED record. The generated callId doubles
// as the media channel name.
func (s *Service) Propose(ctx context.Context, callerID, calleeID, patientName string) (*call.Record, error) {
	if callerID == "" || calleeID == "" {
		return nil, carelink_errors.ErrInvalidInput
	}
	rec := call.NewRecord(callerID, calleeID, patientName, time.Now())
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	if s.log != nil {
		ctx := context.WithValue(ctx, logger.CallIdKey, rec.CallID)
		s.log.InfoCtx(ctx, "call proposed",
			zap.String("caller_id", callerID),
			zap.String("callee_id", calleeID))
	}
	return rec, nil
}

// Answer moves INITIATED -> ANSWERED. A race loss (record already
// terminal or answered by the other side) is reported via Outcome, not an
// error; the caller reflects the authoritative state instead.
func (s *Service) Answer(ctx context.Context, callID string) (Outcome, error) {
	return s.transition(ctx, callID, call.StatusAnswered)
}

// Reject moves INITIATED -> REJECTED.
func (s *Service) Reject(ctx context.Context, callID string) (Outcome, error) {
	return s.transition(ctx, callID, call.StatusRejected)
}

// End moves ANSWERED -> ENDED, and also INITIATED -> ENDED so a caller
// can cancel before the callee answers.
func (s *Service) End(ctx context.Context, callID string) (Outcome, error) {
	return s.transition(ctx, callID, call.StatusEnded)
}

// MarkMissed moves INITIATED -> MISSED. Invoked by the callee's client
// when it gives up showing the incoming-call prompt; there is no
// server-side timeout doing this.
func (s *Service) MarkMissed(ctx context.Context, callID string) (Outcome, error) {
	return s.transition(ctx, callID, call.StatusMissed)
}

func (s *Service) Fetch(ctx context.Context, callID string) (*call.Record, error) {
	return s.store.Get(ctx, callID)
}

// SubscribeIncoming streams INITIATED records addressed to the user. The
// returned subscription must be cancelled when the observing screen goes
// away.
func (s *Service) SubscribeIncoming(ctx context.Context, userID string) (store.Subscription, error) {
	if userID == "" {
		return nil, carelink_errors.ErrInvalidInput
	}
	return s.store.SubscribeIncoming(ctx, userID)
}

func (s *Service) transition(ctx context.Context, callID string, to call.Status) (Outcome, error) {
	ctx = context.WithValue(ctx, logger.CallIdKey, callID)
	applied, rec, err := s.store.Transition(ctx, callID, to)
	if err != nil {
		return Outcome{}, err
	}
	if !applied && s.log != nil {
		s.log.InfoCtx(ctx, "transition lost",
			zap.String("attempted", string(to)),
			zap.String("state", string(rec.Status)))
	}
	if applied && rec.Status.Terminal() && s.archiver != nil {
		if err := s.archiver.Archive(ctx, rec); err != nil && s.log != nil {
			s.log.ErrorCtx(ctx, "archive failed", zap.Error(err))
		}
	}
	return Outcome{Applied: applied, Record: rec}, nil
}
