package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/podushkina/meetscribe/internal/blob"
	"github.com/podushkina/meetscribe/internal/meeting"
	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/quota"
	"github.com/podushkina/meetscribe/internal/taskstore"
)

const defaultMaxUploadBytes = 500 << 20

type MeetingLister interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]meeting.Meeting, error)
}

type Handler struct {
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
	blobs    blob.Store
	meetings MeetingLister
	guard    *quota.Guard
	metrics  *observability.Registry

	pollInterval   time.Duration
	maxUploadBytes int64
	uploadDir      string
}

type Deps struct {
	Queue    *queue.Queue
	Pipeline *pipeline.Pipeline
	Blobs    blob.Store
	Meetings MeetingLister
	Guard    *quota.Guard
	Metrics  *observability.Registry

	// PollInterval paces the task event stream; zero means the task
	// store default.
	PollInterval   time.Duration
	MaxUploadBytes int64
	// UploadDir holds uploads while they are checked; empty means the
	// system temp dir.
	UploadDir string
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		queue:          d.Queue,
		pipeline:       d.Pipeline,
		blobs:          d.Blobs,
		meetings:       d.Meetings,
		guard:          d.Guard,
		metrics:        d.Metrics,
		pollInterval:   d.PollInterval,
		maxUploadBytes: d.MaxUploadBytes,
		uploadDir:      d.UploadDir,
	}
	if h.metrics == nil {
		h.metrics = observability.Default
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}
	if h.pollInterval <= 0 {
		h.pollInterval = taskstore.DefaultPollInterval
	}
	return h
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) store(owner string) *taskstore.Store {
	return taskstore.New(h.queue, owner, taskstore.WithPollInterval(h.pollInterval))
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if pending, err := h.queue.Pending(r.Context()); err == nil {
		h.metrics.SetGauge("jobs_pending", nil, float64(pending))
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.metrics.RenderPrometheus()))
}

func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := h.meetings.ListByOwner(r.Context(), OwnerFromContext(r.Context()), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []meeting.Meeting{}
	}
	respondJSON(w, http.StatusOK, list)
}

type QuotaResponse struct {
	Plan             string `json:"plan"`
	Metered          bool   `json:"metered"`
	QuotaMinutes     int    `json:"quota_minutes"`
	UsedMinutes      int    `json:"used_minutes"`
	RemainingMinutes int    `json:"remaining_minutes"`
}

func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	sub, err := h.guard.Subscription(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, QuotaResponse{
		Plan:             sub.Plan,
		Metered:          h.guard.Catalog().Metered(sub.Plan),
		QuotaMinutes:     sub.QuotaMinutes,
		UsedMinutes:      sub.UsedMinutes,
		RemainingMinutes: sub.RemainingMinutes(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
