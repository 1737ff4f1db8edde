package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podushkina/meetscribe/internal/blob"
	"github.com/podushkina/meetscribe/internal/meeting"
	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/quota"
	"github.com/podushkina/meetscribe/internal/task"
	"github.com/podushkina/meetscribe/internal/taskstore"
)

type fixedDuration int

func (d fixedDuration) Estimate(context.Context, string) int { return int(d) }

type memSubs struct {
	mu   sync.Mutex
	subs map[string]quota.Subscription
}

func (m *memSubs) GetSubscription(_ context.Context, owner string) (*quota.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[owner]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type memMeetings struct {
	list []meeting.Meeting
}

func (m *memMeetings) ListByOwner(_ context.Context, owner string, limit int) ([]meeting.Meeting, error) {
	var out []meeting.Meeting
	for _, mt := range m.list {
		if mt.OwnerID == owner && len(out) < limit {
			out = append(out, mt)
		}
	}
	return out, nil
}

type testEnv struct {
	q      *queue.Queue
	mr     *miniredis.Miniredis
	blobs  *blob.LocalStore
	router *chi.Mux
}

func setupTestQueue(t *testing.T) (*queue.Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	q, err := queue.New(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	return q, mr
}

func setupEnv(t *testing.T, seconds int, secret []byte) *testEnv {
	t.Helper()
	q, mr := setupTestQueue(t)
	t.Cleanup(mr.Close)

	subs := &memSubs{subs: map[string]quota.Subscription{
		"full": {OwnerID: "full", Plan: "free", QuotaMinutes: 600, UsedMinutes: 600},
		"low":  {OwnerID: "low", Plan: "free", QuotaMinutes: 600, UsedMinutes: 580},
	}}
	guard, err := quota.NewGuard(subs, nil)
	require.NoError(t, err)

	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	p := &pipeline.Pipeline{
		Duration: fixedDuration(seconds),
		Quota:    guard,
		Tasks:    func(owner string) pipeline.TaskWriter { return taskstore.New(q, owner) },
	}

	h := NewHandler(Deps{
		Queue:    q,
		Pipeline: p,
		Blobs:    blobs,
		Meetings: &memMeetings{list: []meeting.Meeting{
			{ID: "m1", OwnerID: "u1", Title: "Standup"},
			{ID: "m2", OwnerID: "u2", Title: "Other"},
		}},
		Guard:        guard,
		Metrics:      observability.NewRegistry(),
		PollInterval: 50 * time.Millisecond,
		UploadDir:    t.TempDir(),
	})
	return &testEnv{q: q, mr: mr, blobs: blobs, router: NewRouter(h, secret)}
}

func uploadRequest(t *testing.T, owner, fileName string, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake audio bytes"))
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req, _ := http.NewRequest("POST", "/api/uploads", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func get(path, owner string) *http.Request {
	req, _ := http.NewRequest("GET", path, nil)
	req.Header.Set("X-User-ID", owner)
	return req
}

func TestHealthCheck(t *testing.T) {
	env := setupEnv(t, 60, nil)

	req, _ := http.NewRequest("GET", "/health", nil)
	rr := env.do(req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateUpload_Accepted(t *testing.T) {
	env := setupEnv(t, 120, nil)
	ctx := context.Background()

	rr := env.do(uploadRequest(t, "u1", "standup.mp3", map[string]string{"notes": "budget"}))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, 120, resp.DurationSeconds)

	tsk, err := env.q.Get(ctx, resp.TaskID)
	require.NoError(t, err)
	require.NotNil(t, tsk)
	assert.Equal(t, task.StatusProcessing, tsk.Status)
	assert.Equal(t, "u1", tsk.OwnerID)
	assert.Equal(t, 10, tsk.ProgressValue())

	job, err := env.q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, resp.TaskID, job.TaskID)
	assert.Equal(t, "budget", job.Notes)
	assert.Equal(t, 120, job.DurationSec)

	path, cleanup, err := env.blobs.Fetch(ctx, job.ObjectKey)
	require.NoError(t, err)
	defer cleanup()
	assert.FileExists(t, path)
}

func TestCreateUpload_RequiresOwner(t *testing.T) {
	env := setupEnv(t, 120, nil)

	rr := env.do(uploadRequest(t, "", "standup.mp3", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateUpload_UnsupportedFormat(t *testing.T) {
	env := setupEnv(t, 120, nil)

	rr := env.do(uploadRequest(t, "u1", "slides.pdf", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	n, err := env.q.Pending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateUpload_Blocked(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		seconds int
		want    quota.Outcome
	}{
		{"quota full", "full", 60, quota.BlockQuotaFull},
		{"unknown duration", "u1", 0, quota.BlockUnknownDuration},
		{"exceeds quota", "low", 30 * 60, quota.BlockExceedsQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t, tt.seconds, nil)

			rr := env.do(uploadRequest(t, tt.owner, "a.mp3", nil))
			require.Equal(t, http.StatusPaymentRequired, rr.Code)

			var resp DecisionResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Decision.Outcome)

			list := env.do(get("/api/tasks", tt.owner))
			assert.JSONEq(t, "[]", list.Body.String())
		})
	}
}

func TestCreateUpload_WarnNeedsConfirmation(t *testing.T) {
	env := setupEnv(t, 15*60, nil)

	rr := env.do(uploadRequest(t, "low", "a.mp3", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, quota.WarnLowQuota, resp.Decision.Outcome)
	assert.Equal(t, 5, resp.Decision.RemainingAfter)

	rr = env.do(uploadRequest(t, "low", "a.mp3", map[string]string{"confirm": "true"}))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestGetTask(t *testing.T) {
	env := setupEnv(t, 60, nil)
	ctx := context.Background()

	tsk := &task.Task{OwnerID: "u1", Kind: task.KindTranscription, Status: task.StatusProcessing}
	require.NoError(t, env.q.Create(ctx, tsk))

	rr := env.do(get("/api/tasks/"+tsk.ID, "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)

	var response task.Task
	json.Unmarshal(rr.Body.Bytes(), &response)
	assert.Equal(t, tsk.ID, response.ID)

	rr = env.do(get("/api/tasks/"+tsk.ID, "u2"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(get("/api/tasks/non-existent-id", "u1"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListTasks(t *testing.T) {
	env := setupEnv(t, 60, nil)
	ctx := context.Background()

	require.NoError(t, env.q.Create(ctx, &task.Task{OwnerID: "u1", Status: task.StatusProcessing}))
	require.NoError(t, env.q.Create(ctx, &task.Task{OwnerID: "u1", Status: task.StatusCompleted}))
	require.NoError(t, env.q.Create(ctx, &task.Task{OwnerID: "u2", Status: task.StatusProcessing}))

	rr := env.do(get("/api/tasks", "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)

	var tasks []task.Task
	err := json.Unmarshal(rr.Body.Bytes(), &tasks)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestDeleteTask(t *testing.T) {
	env := setupEnv(t, 60, nil)
	ctx := context.Background()

	tsk := &task.Task{OwnerID: "u1", Status: task.StatusCompleted}
	require.NoError(t, env.q.Create(ctx, tsk))

	req, _ := http.NewRequest("DELETE", "/api/tasks/"+tsk.ID, nil)
	req.Header.Set("X-User-ID", "u2")
	assert.Equal(t, http.StatusNotFound, env.do(req).Code)

	req, _ = http.NewRequest("DELETE", "/api/tasks/"+tsk.ID, nil)
	req.Header.Set("X-User-ID", "u1")
	assert.Equal(t, http.StatusNoContent, env.do(req).Code)

	found, _ := env.q.Get(ctx, tsk.ID)
	assert.Nil(t, found)
}

func TestClearCompleted(t *testing.T) {
	env := setupEnv(t, 60, nil)
	ctx := context.Background()

	require.NoError(t, env.q.Create(ctx, &task.Task{OwnerID: "u1", Status: task.StatusProcessing}))
	require.NoError(t, env.q.Create(ctx, &task.Task{OwnerID: "u1", Status: task.StatusCompleted}))
	require.NoError(t, env.q.Create(ctx, &task.Task{OwnerID: "u1", Status: task.StatusError}))

	req, _ := http.NewRequest("DELETE", "/api/tasks", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":2}`, rr.Body.String())

	tasks, err := env.q.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestListMeetings(t *testing.T) {
	env := setupEnv(t, 60, nil)

	rr := env.do(get("/api/meetings", "u1"))
	require.Equal(t, http.StatusOK, rr.Code)

	var list []meeting.Meeting
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Standup", list[0].Title)

	rr = env.do(get("/api/meetings", "nobody"))
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestGetQuota(t *testing.T) {
	env := setupEnv(t, 60, nil)

	rr := env.do(get("/api/quota", "low"))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp QuotaResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, QuotaResponse{Plan: "free", Metered: true, QuotaMinutes: 600, UsedMinutes: 580, RemainingMinutes: 20}, resp)

	rr = env.do(get("/api/quota", "newcomer"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 600, resp.RemainingMinutes)
}

func TestMetrics(t *testing.T) {
	env := setupEnv(t, 60, nil)

	req, _ := http.NewRequest("GET", "/metrics", nil)
	rr := env.do(req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "meetscribe_jobs_pending")
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("test-secret")
	env := setupEnv(t, 60, secret)

	token, err := IssueToken(secret, "u1", time.Hour)
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "/api/meetings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Standup")

	forged, err := IssueToken([]byte("other"), "u1", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	expired, err := IssueToken(secret, "u1", -time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	// The dev header is ignored once a secret is configured.
	req, _ = http.NewRequest("GET", "/api/meetings", nil)
	req.Header.Set("X-User-ID", "u1")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestTaskEvents(t *testing.T) {
	env := setupEnv(t, 60, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/tasks/events", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				events <- data
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-time.After(3 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, "[]", next())

	tsk := &task.Task{OwnerID: "u1", Status: task.StatusProcessing, Message: "Transcribing audio"}
	require.NoError(t, env.q.Create(context.Background(), tsk))

	var tasks []task.Task
	require.NoError(t, json.Unmarshal([]byte(next()), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, tsk.ID, tasks[0].ID)
}
