package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/feedflow/feedflow/internal/platform/db"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

// ApprovalLog represents a single lifecycle transition record.
type ApprovalLog struct {
	ID         int64
	Module     string
	RefID      string
	ActorID    int64
	ActorRole  Role
	Action     ApprovalAction
	FromStatus string
	ToStatus   string
	Note       string
	At         time.Time
}

// ApprovalRecorder persists approval history inside the caller's transaction.
type ApprovalRecorder struct {
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{logger: logger}
}

// Validate checks the mandatory fields of an approval entry.
func (l ApprovalLog) Validate() error {
	if l.Module == "" {
		return errors.New("approval module required")
	}
	if l.ActorID == 0 {
		return errors.New("approval actor required")
	}
	if l.RefID == "" {
		return errors.New("approval ref id required")
	}
	if l.Action == "" {
		return errors.New("approval action required")
	}
	return nil
}

// Record writes approval entry using q, which may be a pool or an open transaction.
func (r *ApprovalRecorder) Record(ctx context.Context, q db.DBTX, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, actor_role, action, from_status, to_status, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, log.Module, log.RefID, log.ActorID, string(log.ActorRole), string(log.Action), log.FromStatus, log.ToStatus, log.Note, at)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("record approval", slog.String("ref", log.RefID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// List returns approvals for module/ref ordered by time.
func (r *ApprovalRecorder) List(ctx context.Context, q db.DBTX, module, ref string) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := q.Query(ctx, `SELECT id, module, ref_id, actor_id, actor_role, action, from_status, to_status, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var role, action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &role, &action, &l.FromStatus, &l.ToStatus, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.ActorRole = Role(role)
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
