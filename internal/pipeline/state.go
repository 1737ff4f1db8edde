package pipeline

import (
	"github.com/podushkina/meetscribe/internal/quota"
)

type Stage string

const (
	StageIdle                 Stage = "idle"
	StageDetecting            Stage = "detecting-duration"
	StageCheckingQuota        Stage = "checking-quota"
	StageAwaitingConfirmation Stage = "awaiting-confirmation"
	StageProcessing           Stage = "processing"
	StageTranscribing         Stage = "transcribing"
	StageSummarizing          Stage = "summarizing"
	StagePersisting           Stage = "persisting"
	StageCompleted            Stage = "completed"
	StageError                Stage = "error"
)

// Upload is the file a user selected.
type Upload struct {
	OwnerID  string
	Path     string
	FileName string
	Notes    string
}

// State is one snapshot of a pipeline run. Operations never modify the
// State they are given; they return a new one.
type State struct {
	Stage           Stage
	Upload          *Upload
	DurationSeconds int
	Decision        *quota.Decision
	TaskID          string
	MeetingID       string
	Progress        int
	Cancelled       bool
	Err             error
}

func (s State) with(fn func(*State)) State {
	if s.Upload != nil {
		u := *s.Upload
		s.Upload = &u
	}
	if s.Decision != nil {
		d := *s.Decision
		s.Decision = &d
	}
	fn(&s)
	return s
}

func (s State) fail(err error) State {
	return s.with(func(n *State) {
		n.Stage = StageError
		n.Err = err
	})
}

// Terminal reports whether no further operation applies.
func (s State) Terminal() bool {
	return s.Stage == StageCompleted || s.Stage == StageError || s.Stage == StageIdle
}

// Resume rebuilds the processing state of a task that was started
// elsewhere, e.g. by the API before handing the job to a worker.
func Resume(u Upload, durationSeconds int, taskID string, progress int) State {
	return State{
		Stage:           StageProcessing,
		Upload:          &u,
		DurationSeconds: durationSeconds,
		TaskID:          taskID,
		Progress:        progress,
	}
}
