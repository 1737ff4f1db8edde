package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/podushkina/meetscribe/internal/meeting"
)

type MeetingRepository struct {
	db      *DB
	plans   PlanDefaults
	nowFunc func() time.Time
}

// PlanDefaults gives the plan and quota for an owner that has no
// subscription row yet, so the first meeting can open one.
type PlanDefaults func() (plan string, quotaMinutes int)

func NewMeetingRepository(db *DB, plans PlanDefaults) *MeetingRepository {
	return &MeetingRepository{db: db, plans: plans, nowFunc: time.Now}
}

// Create inserts the meeting and adds its billed minutes to the owner's
// used minutes in one transaction.
func (r *MeetingRepository) Create(ctx context.Context, m *meeting.Meeting) error {
	if m.OwnerID == "" {
		return errors.New("meeting owner is required")
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := r.nowFunc().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin meeting insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meetings (id, owner_id, title, transcript, summary, duration_seconds, notes, file_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.Title, m.Transcript, m.Summary, m.DurationSeconds, m.Notes, m.FileName, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}

	if minutes := m.BilledMinutes(); minutes > 0 {
		plan, quota := "", 0
		if r.plans != nil {
			plan, quota = r.plans()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscriptions (owner_id, plan, quota_minutes, used_minutes, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(owner_id) DO UPDATE SET
				used_minutes = used_minutes + excluded.used_minutes,
				updated_at = excluded.updated_at`,
			m.OwnerID, plan, quota, minutes, now)
		if err != nil {
			return fmt.Errorf("spend quota: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit meeting insert: %w", err)
	}
	return nil
}

func (r *MeetingRepository) GetByID(ctx context.Context, id string) (*meeting.Meeting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, transcript, summary, duration_seconds, notes, file_name, created_at
		FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByOwner returns the owner's meetings, newest first.
func (r *MeetingRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]meeting.Meeting, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, title, transcript, summary, duration_seconds, notes, file_name, created_at
		FROM meetings WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var out []meeting.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(s scanner) (*meeting.Meeting, error) {
	var m meeting.Meeting
	if err := s.Scan(&m.ID, &m.OwnerID, &m.Title, &m.Transcript, &m.Summary,
		&m.DurationSeconds, &m.Notes, &m.FileName, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
