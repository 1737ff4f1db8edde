package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/podushkina/meetscribe/internal/blob"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/queue"
)

// Processor is the part of the pipeline a worker runs.
type Processor interface {
	Process(ctx context.Context, s pipeline.State) pipeline.State
}

// Transcription fetches the staged audio of a job and runs the processing
// stages on it. The staged object is removed whatever the outcome.
func Transcription(p Processor, store blob.Store) func(ctx context.Context, job *queue.Job) error {
	return func(ctx context.Context, job *queue.Job) error {
		path, cleanup, err := store.Fetch(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("fetch staged audio: %w", err)
		}
		defer func() {
			cleanup()
			if err := store.Remove(context.WithoutCancel(ctx), job.ObjectKey); err != nil {
				log.Printf("handlers: remove staged %s: %v", job.ObjectKey, err)
			}
		}()

		u := pipeline.Upload{
			OwnerID:  job.OwnerID,
			Path:     path,
			FileName: job.FileName,
			Notes:    job.Notes,
		}
		s := p.Process(ctx, pipeline.Resume(u, job.DurationSec, job.TaskID, pipeline.ProgressStarted))
		if s.Stage != pipeline.StageCompleted {
			// The pipeline has already written the failure to the task.
			log.Printf("handlers: task %s ended in %s: %v", job.TaskID, s.Stage, s.Err)
		}
		return nil
	}
}
