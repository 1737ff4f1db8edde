// Package pipeline drives one upload from file selection to a persisted
// Meeting. Each operation takes a State and returns the next one; Run
// chains them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/podushkina/meetscribe/internal/meeting"
	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/openai"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/quota"
	"github.com/podushkina/meetscribe/internal/task"
)

const DefaultSettleDelay = 500 * time.Millisecond

const (
	ProgressStarted      = 10
	ProgressTranscribing = 20
	ProgressUploaded     = 60
	ProgressSummarizing  = 80
	ProgressPersisting   = 90
	ProgressDone         = 100
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidStage      = errors.New("operation not valid in this stage")
)

type DurationEstimator interface {
	Estimate(ctx context.Context, path string) int
}

type QuotaChecker interface {
	Check(ctx context.Context, ownerID string, durationSeconds int) (quota.Decision, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string, onUploaded func()) (*openai.Transcript, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript, notes string) (*openai.Summary, error)
}

type MeetingCreator interface {
	Create(ctx context.Context, m *meeting.Meeting) error
}

// TaskWriter is the part of a per-owner task store the pipeline writes to.
type TaskWriter interface {
	Create(ctx context.Context, t task.Task) (string, error)
	Update(ctx context.Context, id string, p task.Patch) error
}

// Listener is told about every new Meeting once its task is completed.
type Listener func(ctx context.Context, m meeting.Meeting) error

type Pipeline struct {
	Duration    DurationEstimator
	Quota       QuotaChecker
	Transcriber Transcriber
	Summarizer  Summarizer
	Meetings    MeetingCreator
	// Tasks returns the task store of one owner.
	Tasks func(ownerID string) TaskWriter

	// SettleDelay is the wait between emitting the completed state and
	// marking the task completed. Zero means DefaultSettleDelay; a negative
	// value disables the wait.
	SettleDelay time.Duration
	// OnState, when set, sees every intermediate state of Run and Process.
	OnState func(State)

	listeners []Listener
}

func (p *Pipeline) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// Select validates the chosen file and starts duration detection.
func (p *Pipeline) Select(u Upload) State {
	name := u.FileName
	if name == "" {
		name = u.Path
		u.FileName = name
	}
	if !IsSupportedFormat(name) {
		return State{Stage: StageError, Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)}
	}
	return State{Stage: StageDetecting, Upload: &u}
}

func (p *Pipeline) Detect(ctx context.Context, s State) State {
	if s.Stage != StageDetecting {
		return s.fail(stageError("detect", s.Stage))
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.detect", attribute.String("file", s.Upload.FileName))
	seconds := p.Duration.Estimate(ctx, s.Upload.Path)
	span.SetAttributes(attribute.Int("duration_seconds", seconds))
	observability.EndSpan(span, nil)

	return s.with(func(n *State) {
		n.Stage = StageCheckingQuota
		n.DurationSeconds = seconds
	})
}

// CheckQuota gates the upload. Blocked outcomes end the run without a task.
func (p *Pipeline) CheckQuota(ctx context.Context, s State) State {
	if s.Stage != StageCheckingQuota {
		return s.fail(stageError("check quota", s.Stage))
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.check_quota", attribute.String("owner", s.Upload.OwnerID))
	d, err := p.Quota.Check(ctx, s.Upload.OwnerID, s.DurationSeconds)
	if err != nil {
		observability.EndSpan(span, err)
		return s.fail(fmt.Errorf("check quota: %w", err))
	}
	span.SetAttributes(attribute.String("outcome", string(d.Outcome)))
	observability.EndSpan(span, nil)

	next := s.with(func(n *State) { n.Decision = &d })
	switch {
	case d.Blocked():
		return next.fail(&quota.BlockedError{Decision: d})
	case d.NeedsConfirmation():
		return next.with(func(n *State) { n.Stage = StageAwaitingConfirmation })
	default:
		return next.with(func(n *State) { n.Stage = StageProcessing })
	}
}

func (p *Pipeline) Confirm(s State) State {
	if s.Stage != StageAwaitingConfirmation {
		return s.fail(stageError("confirm", s.Stage))
	}
	return s.with(func(n *State) { n.Stage = StageProcessing })
}

// Cancel drops the upload and returns to idle.
func (p *Pipeline) Cancel(s State) State {
	return State{Stage: StageIdle, Cancelled: true}
}

// Start creates the processing task for an accepted upload.
func (p *Pipeline) Start(ctx context.Context, s State) State {
	if s.Stage != StageProcessing || s.TaskID != "" {
		return s.fail(stageError("start", s.Stage))
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.start")
	progress := ProgressStarted
	id, err := p.Tasks(s.Upload.OwnerID).Create(ctx, task.Task{
		Kind:     task.KindTranscription,
		Status:   task.StatusProcessing,
		Message:  "Preparing " + s.Upload.FileName,
		Progress: &progress,
	})
	observability.EndSpan(span, err)
	if err != nil {
		return s.fail(fmt.Errorf("create task: %w", err))
	}
	return s.with(func(n *State) {
		n.TaskID = id
		n.Progress = progress
	})
}

// Process transcribes, summarizes and persists a started upload. The
// Meeting is inserted only after both remote steps succeed.
func (p *Pipeline) Process(ctx context.Context, s State) State {
	if s.Stage != StageProcessing || s.TaskID == "" {
		return s.fail(stageError("process", s.Stage))
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.process",
		attribute.String("task_id", s.TaskID),
		attribute.String("owner", s.Upload.OwnerID))
	tasks := p.Tasks(s.Upload.OwnerID)

	s = p.advance(ctx, tasks, s, StageTranscribing, ProgressTranscribing, "Transcribing audio")
	tr, err := p.transcribe(ctx, tasks, &s)
	if err != nil {
		observability.EndSpan(span, err)
		return p.failTask(ctx, tasks, s, "Transcription failed", err)
	}

	s = p.advance(ctx, tasks, s, StageSummarizing, ProgressSummarizing, "Generating summary")
	sctx, sspan := observability.StartSpan(ctx, "pipeline.summarize")
	sum, err := p.Summarizer.Summarize(sctx, tr.Text, s.Upload.Notes)
	observability.EndSpan(sspan, err)
	if err != nil {
		observability.EndSpan(span, err)
		return p.failTask(ctx, tasks, s, "Summarization failed", err)
	}

	s = p.advance(ctx, tasks, s, StagePersisting, ProgressPersisting, "Saving meeting")
	m := meeting.Meeting{
		OwnerID:         s.Upload.OwnerID,
		Title:           sum.Title,
		Transcript:      tr.Text,
		Summary:         sum.Summary,
		DurationSeconds: meetingDuration(s.DurationSeconds, tr.Duration),
		Notes:           s.Upload.Notes,
		FileName:        s.Upload.FileName,
	}
	pctx, pspan := observability.StartSpan(ctx, "pipeline.persist")
	err = p.Meetings.Create(pctx, &m)
	observability.EndSpan(pspan, err)
	if err != nil {
		observability.EndSpan(span, err)
		return p.failTask(ctx, tasks, s, "Saving meeting failed", err)
	}

	done := s.with(func(n *State) {
		n.Stage = StageCompleted
		n.Upload = nil
		n.MeetingID = m.ID
	})
	p.emit(done)

	if err := sleepCtx(ctx, p.settleDelay()); err != nil {
		log.Printf("pipeline: settle delay for task %s interrupted: %v", s.TaskID, err)
	}
	p.write(ctx, tasks, s.TaskID, task.Patch{
		Status:   task.StatusPtr(task.StatusCompleted),
		Message:  task.StringPtr(fmt.Sprintf("%q is ready", m.Title)),
		Progress: task.IntPtr(clamp(s.Progress, ProgressDone)),
		ResultID: task.StringPtr(m.ID),
	})
	done.Progress = clamp(s.Progress, ProgressDone)

	p.notify(ctx, m)
	observability.EndSpan(span, nil)
	observability.Default.IncCounter("pipeline_runs_total", map[string]string{"result": "completed"}, 1)
	log.Printf("pipeline: task %s completed as meeting %s (%ds)", s.TaskID, m.ID, m.DurationSeconds)
	return done
}

// Run drives one upload through every stage and reports each one to
// OnState. confirm is asked only on a
// low-quota warning; returning false cancels the run.
func (p *Pipeline) Run(ctx context.Context, u Upload, confirm func(quota.Decision) bool) (State, error) {
	s := p.Select(u)
	p.emit(s)
	if s.Stage == StageError {
		return s, s.Err
	}
	s = p.Detect(ctx, s)
	p.emit(s)
	s = p.CheckQuota(ctx, s)
	if s.Stage == StageError {
		return s, s.Err
	}
	if s.Stage == StageAwaitingConfirmation {
		if confirm == nil || !confirm(*s.Decision) {
			return p.Cancel(s), nil
		}
		s = p.Confirm(s)
	}
	s = p.Start(ctx, s)
	if s.Stage == StageError {
		return s, s.Err
	}
	s = p.Process(ctx, s)
	return s, s.Err
}

func (p *Pipeline) transcribe(ctx context.Context, tasks TaskWriter, s *State) (*openai.Transcript, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.transcribe")
	tr, err := p.Transcriber.Transcribe(ctx, s.Upload.Path, func() {
		*s = p.advance(ctx, tasks, *s, StageTranscribing, ProgressUploaded, "Transcribing audio (uploaded)")
	})
	if err == nil && tr == nil {
		err = errors.New("empty transcription result")
	}
	observability.EndSpan(span, err)
	return tr, err
}

// advance moves to stage and writes progress to the task. Progress never
// goes down within a run; write failures do not stop the run.
func (p *Pipeline) advance(ctx context.Context, tasks TaskWriter, s State, stage Stage, progress int, msg string) State {
	next := s.with(func(n *State) {
		n.Stage = stage
		n.Progress = clamp(s.Progress, progress)
	})
	p.write(ctx, tasks, s.TaskID, task.Patch{
		Message:  task.StringPtr(msg),
		Progress: task.IntPtr(next.Progress),
	})
	p.emit(next)
	return next
}

func (p *Pipeline) failTask(ctx context.Context, tasks TaskWriter, s State, msg string, err error) State {
	log.Printf("pipeline: task %s failed: %s: %v", s.TaskID, msg, err)
	p.write(ctx, tasks, s.TaskID, task.Patch{
		Status:  task.StatusPtr(task.StatusError),
		Message: task.StringPtr(msg),
		Error:   task.StringPtr(err.Error()),
	})
	observability.Default.IncCounter("pipeline_runs_total", map[string]string{"result": "error"}, 1)
	next := s.fail(fmt.Errorf("%s: %w", msg, err))
	p.emit(next)
	return next
}

// write updates the task. A task swept while the run was in flight is
// not an error for the run.
func (p *Pipeline) write(ctx context.Context, tasks TaskWriter, id string, patch task.Patch) {
	err := tasks.Update(context.WithoutCancel(ctx), id, patch)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrNotFound):
		log.Printf("pipeline: task %s no longer exists, continuing", id)
	default:
		log.Printf("pipeline: update task %s: %v", id, err)
	}
}

func (p *Pipeline) notify(ctx context.Context, m meeting.Meeting) {
	for _, l := range p.listeners {
		if err := l(ctx, m); err != nil {
			log.Printf("pipeline: meeting listener failed for %s: %v", m.ID, err)
		}
	}
}

func (p *Pipeline) emit(s State) {
	if p.OnState != nil {
		p.OnState(s)
	}
}

func (p *Pipeline) settleDelay() time.Duration {
	if p.SettleDelay < 0 {
		return 0
	}
	if p.SettleDelay == 0 {
		return DefaultSettleDelay
	}
	return p.SettleDelay
}

func meetingDuration(detected int, transcribed float64) int {
	if detected > 0 {
		return detected
	}
	if transcribed > 0 && !math.IsInf(transcribed, 0) {
		return int(math.Max(1, math.Round(transcribed)))
	}
	return 0
}

func clamp(last, next int) int {
	if next < last {
		return last
	}
	return next
}

func stageError(op string, stage Stage) error {
	return fmt.Errorf("%w: %s in stage %s", ErrInvalidStage, op, stage)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
