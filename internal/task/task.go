package task

import (
	"errors"
	"time"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

type Kind string

const KindTranscription Kind = "transcription"

const (
	FinishedRetention   = 5 * time.Minute
	ProcessingRetention = 10 * time.Minute
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidProgress   = errors.New("progress must be between 0 and 100")
)

type Task struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Progress  *int      `json:"progress,omitempty"`
	ResultID  string    `json:"result_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status   *Status `json:"status,omitempty"`
	Message  *string `json:"message,omitempty"`
	Progress *int    `json:"progress,omitempty"`
	ResultID *string `json:"result_id,omitempty"`
	Error    *string `json:"error,omitempty"`
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether a task in status s may move to next.
// Processing may finish either way; finished tasks never change status again.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusProcessing && next.Terminal()
}

// Apply validates p against the current task and merges it in place.
func (t *Task) Apply(p Patch, now time.Time) error {
	if p.Status != nil && !t.Status.CanTransition(*p.Status) {
		return ErrInvalidTransition
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return ErrInvalidProgress
	}

	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.Progress != nil {
		v := *p.Progress
		t.Progress = &v
	}
	if p.ResultID != nil {
		t.ResultID = *p.ResultID
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	t.UpdatedAt = now
	return nil
}

// Age is measured from the last write.
func (t Task) Age(now time.Time) time.Duration {
	return now.Sub(t.UpdatedAt)
}

// Expired reports whether the retention sweep should reclaim t. Processing
// tasks get a longer window since they may still be owned by a live run.
func (t Task) Expired(now time.Time) bool {
	if t.Status == StatusProcessing {
		return t.Age(now) >= ProcessingRetention
	}
	return t.Age(now) >= FinishedRetention
}

func (t Task) ProgressValue() int {
	if t.Progress == nil {
		return 0
	}
	return *t.Progress
}

func StatusPtr(s Status) *Status { return &s }

func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }
