package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/podushkina/meetscribe/internal/blob"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/quota"
	"github.com/podushkina/meetscribe/internal/task"
)

type UploadResponse struct {
	TaskID          string          `json:"task_id"`
	DurationSeconds int             `json:"duration_seconds"`
	Decision        *quota.Decision `json:"decision,omitempty"`
}

type DecisionResponse struct {
	Error    string         `json:"error"`
	Decision quota.Decision `json:"decision"`
}

// CreateUpload runs the checks of the upload pipeline synchronously and
// hands the accepted upload to a worker. Blocked uploads and uploads
// waiting for confirmation never create a task.
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !pipeline.IsSupportedFormat(header.Filename) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s (supported: %s)",
			pipeline.ErrUnsupportedFormat, header.Filename, strings.Join(pipeline.SupportedFormats(), ", ")))
		return
	}

	tmpPath, err := h.saveUpload(file, header.Filename)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(tmpPath)

	ctx := r.Context()
	p := h.pipeline
	s := p.Select(pipeline.Upload{
		OwnerID:  owner,
		Path:     tmpPath,
		FileName: filepath.Base(header.Filename),
		Notes:    r.FormValue("notes"),
	})
	if s.Stage == pipeline.StageError {
		respondError(w, http.StatusBadRequest, s.Err.Error())
		return
	}

	s = p.CheckQuota(ctx, p.Detect(ctx, s))
	if s.Stage == pipeline.StageError {
		var blocked *quota.BlockedError
		if errors.As(s.Err, &blocked) {
			respondJSON(w, http.StatusPaymentRequired, DecisionResponse{Error: blocked.Decision.Message(), Decision: blocked.Decision})
			return
		}
		respondError(w, http.StatusInternalServerError, s.Err.Error())
		return
	}

	if s.Stage == pipeline.StageAwaitingConfirmation {
		if confirmed, _ := strconv.ParseBool(r.FormValue("confirm")); !confirmed {
			respondJSON(w, http.StatusConflict, DecisionResponse{Error: "confirmation required: " + s.Decision.Message(), Decision: *s.Decision})
			return
		}
		s = p.Confirm(s)
	}

	s = p.Start(ctx, s)
	if s.Stage == pipeline.StageError {
		respondError(w, http.StatusInternalServerError, s.Err.Error())
		return
	}

	key := blob.ObjectKey(owner, s.TaskID, s.Upload.FileName)
	if err := h.blobs.Put(ctx, key, tmpPath); err != nil {
		h.abandon(r, s.TaskID, err)
		respondError(w, http.StatusInternalServerError, "stage upload: "+err.Error())
		return
	}

	job := queue.Job{
		TaskID:      s.TaskID,
		OwnerID:     owner,
		Kind:        task.KindTranscription,
		ObjectKey:   key,
		FileName:    s.Upload.FileName,
		Notes:       s.Upload.Notes,
		DurationSec: s.DurationSeconds,
	}
	if err := h.queue.Push(ctx, job); err != nil {
		h.abandon(r, s.TaskID, err)
		_ = h.blobs.Remove(ctx, key)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, UploadResponse{TaskID: s.TaskID, DurationSeconds: s.DurationSeconds, Decision: s.Decision})
}

func (h *Handler) saveUpload(src io.Reader, name string) (string, error) {
	tmp, err := os.CreateTemp(h.uploadDir, "upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (h *Handler) abandon(r *http.Request, taskID string, cause error) {
	_, err := h.queue.Update(r.Context(), taskID, task.Patch{
		Status:  task.StatusPtr(task.StatusError),
		Message: task.StringPtr("Upload could not be queued"),
		Error:   task.StringPtr(cause.Error()),
	})
	if err != nil {
		log.Printf("api: mark task %s failed: %v", taskID, err)
	}
}
