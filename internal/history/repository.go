package history

import (
	"context"
	"errors"
	"time"

	"carelink/internal/domain/call"
	carelink_errors "carelink/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one archived call. Rows are written once, on the call's
// terminal transition, and never updated.
type Entry struct {
	CallID          string      `json:"callId"`
	CallerID        string      `json:"callerId"`
	CalleeID        string      `json:"calleeId"`
	PatientName     string      `json:"patientName"`
	Status          call.Status `json:"status"`
	StartedAt       time.Time   `json:"startedAt"`
	AnsweredAt      *time.Time  `json:"answeredAt,omitempty"`
	EndedAt         *time.Time  `json:"endedAt,omitempty"`
	RejectedAt      *time.Time  `json:"rejectedAt,omitempty"`
	DurationSeconds int32       `json:"durationSeconds"`
}

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	GetByCallID(ctx context.Context, callID string) (Entry, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Entry, int64, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, e *Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO call_history
			(call_id, caller_id, callee_id, patient_name, status,
			 started_at, answered_at, ended_at, rejected_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (call_id) DO NOTHING`,
		e.CallID, e.CallerID, e.CalleeID, e.PatientName, string(e.Status),
		e.StartedAt, e.AnsweredAt, e.EndedAt, e.RejectedAt, e.DurationSeconds)
	return err
}

func (r *PostgresRepository) GetByCallID(ctx context.Context, callID string) (Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT call_id, caller_id, callee_id, patient_name, status,
		       started_at, answered_at, ended_at, rejected_at, duration_seconds
		FROM call_history WHERE call_id = $1`, callID)
	var e Entry
	var status string
	err := row.Scan(&e.CallID, &e.CallerID, &e.CalleeID, &e.PatientName, &status,
		&e.StartedAt, &e.AnsweredAt, &e.EndedAt, &e.RejectedAt, &e.DurationSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, carelink_errors.ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	e.Status = call.Status(status)
	return e, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM call_history WHERE caller_id = $1 OR callee_id = $1`,
		userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT call_id, caller_id, callee_id, patient_name, status,
		       started_at, answered_at, ended_at, rejected_at, duration_seconds
		FROM call_history
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.CallID, &e.CallerID, &e.CalleeID, &e.PatientName, &status,
			&e.StartedAt, &e.AnsweredAt, &e.EndedAt, &e.RejectedAt, &e.DurationSeconds); err != nil {
			return nil, 0, err
		}
		e.Status = call.Status(status)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
