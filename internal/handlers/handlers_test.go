package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podushkina/meetscribe/internal/blob"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/queue"
)

type recordingProcessor struct {
	got  pipeline.State
	body string
	out  pipeline.State
}

func (r *recordingProcessor) Process(_ context.Context, s pipeline.State) pipeline.State {
	r.got = s
	b, _ := os.ReadFile(s.Upload.Path)
	r.body = string(b)
	return r.out
}

func stage(t *testing.T, store blob.Store, key string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "in.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))
	require.NoError(t, store.Put(context.Background(), key, src))
}

func TestTranscription_ProcessesStagedAudio(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	key := blob.ObjectKey("u1", "t-1", "standup.mp3")
	stage(t, store, key)

	proc := &recordingProcessor{out: pipeline.State{Stage: pipeline.StageCompleted}}
	job := &queue.Job{TaskID: "t-1", OwnerID: "u1", ObjectKey: key, FileName: "standup.mp3", Notes: "n", DurationSec: 120}

	require.NoError(t, Transcription(proc, store)(context.Background(), job))

	assert.Equal(t, pipeline.StageProcessing, proc.got.Stage)
	assert.Equal(t, "t-1", proc.got.TaskID)
	assert.Equal(t, 120, proc.got.DurationSeconds)
	assert.Equal(t, "standup.mp3", proc.got.Upload.FileName)
	assert.Equal(t, "audio", proc.body)

	_, _, err = store.Fetch(context.Background(), key)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestTranscription_PipelineFailureIsNotReturned(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	key := blob.ObjectKey("u1", "t-2", "a.mp3")
	stage(t, store, key)

	proc := &recordingProcessor{out: pipeline.State{Stage: pipeline.StageError, Err: errors.New("whisper down")}}

	err = Transcription(proc, store)(context.Background(), &queue.Job{TaskID: "t-2", OwnerID: "u1", ObjectKey: key})
	assert.NoError(t, err)

	_, _, err = store.Fetch(context.Background(), key)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestTranscription_MissingObject(t *testing.T) {
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	proc := &recordingProcessor{}

	err = Transcription(proc, store)(context.Background(), &queue.Job{TaskID: "t-3", ObjectKey: "uploads/u1/t-3.mp3"})

	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.Nil(t, proc.got.Upload)
}
