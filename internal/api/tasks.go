package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/podushkina/meetscribe/internal/task"
)

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store(OwnerFromContext(r.Context())).Reload(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := h.store(OwnerFromContext(r.Context()))

	if _, err := store.Reload(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	t, ok := store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner := OwnerFromContext(r.Context())

	t, err := h.queue.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if t == nil || t.OwnerID != owner {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	if err := h.store(owner).Remove(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	n, err := h.store(OwnerFromContext(r.Context())).ClearCompleted(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// TaskEvents streams the owner's task list as server-sent events. A
// "tasks" event is sent on connect and whenever the list changes.
func (h *Handler) TaskEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last []byte
	err := h.store(OwnerFromContext(r.Context())).Sync(r.Context(), func(tasks []task.Task) {
		if tasks == nil {
			tasks = []task.Task{}
		}
		b, err := json.Marshal(tasks)
		if err != nil {
			log.Printf("api: marshal task snapshot: %v", err)
			return
		}
		if last != nil && bytes.Equal(b, last) {
			return
		}
		last = b
		if err := writeSSEEvent(w, "tasks", b); err != nil {
			return
		}
		flusher.Flush()
	})
	if err != nil && r.Context().Err() == nil {
		log.Printf("api: task events: %v", err)
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, data []byte) error {
	if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}
