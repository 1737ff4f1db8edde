package meeting

import "time"

// Meeting is a transcribed and summarized recording owned by one user.
type Meeting struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Title           string    `json:"title"`
	Transcript      string    `json:"transcript"`
	Summary         string    `json:"summary"`
	DurationSeconds int       `json:"duration_seconds"`
	Notes           string    `json:"notes,omitempty"`
	FileName        string    `json:"file_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// BilledMinutes is the quota charged for the meeting, whole minutes rounded up.
func (m *Meeting) BilledMinutes() int {
	if m.DurationSeconds <= 0 {
		return 0
	}
	return (m.DurationSeconds + 59) / 60
}
