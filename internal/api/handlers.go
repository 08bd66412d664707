// Package api serves the ops HTTP surface: batch status, manual
// triggers for processing and lapsed detection, and the requeue
// remedy for stranded records.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chapterhq/roster-sync/internal/ingest"
	"github.com/chapterhq/roster-sync/internal/state"
	syncpkg "github.com/chapterhq/roster-sync/internal/sync"
)

// Syncer is the orchestrator surface the handlers drive.
type Syncer interface {
	ProcessBatch(ctx context.Context, batch string) (syncpkg.Result, error)
	DetectLapsed(ctx context.Context, currentBatch, previousBatch string) (syncpkg.LapsedResult, error)
	Requeue(ctx context.Context, batch string) (int, error)
}

// StateReader serves batch status queries.
type StateReader interface {
	Count(ctx context.Context, batch string, status state.Status) (int, error)
}

// Ingester loads stored export emails on demand.
type Ingester interface {
	IngestObject(ctx context.Context, objectKey string) (ingest.Result, error)
}

// Handlers holds the ops API dependencies.
type Handlers struct {
	syncer   Syncer
	store    StateReader
	ingester Ingester // nil when ingest is not configured
	now      func() time.Time
}

func NewHandlers(syncer Syncer, store StateReader, ingester Ingester) *Handlers {
	return &Handlers{
		syncer:   syncer,
		store:    store,
		ingester: ingester,
		now:      time.Now,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"batch":  state.WeekBatch(h.now()),
	})
}

// BatchStatus reports per-status record counts for a batch.
func (h *Handlers) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batch := chi.URLParam(r, "batch")

	counts := map[string]int{}
	total := 0
	for _, status := range []state.Status{
		state.Unprocessed, state.Processing, state.Processed, state.Failed,
	} {
		n, err := h.store.Count(r.Context(), batch, status)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		counts[status.String()] = n
		total += n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch":  batch,
		"counts": counts,
		"total":  total,
	})
}

// ProcessBatch runs one processor invocation for the batch.
func (h *Handlers) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	batch := chi.URLParam(r, "batch")

	res, err := h.syncer.ProcessBatch(r.Context(), batch)
	if err != nil {
		log.Printf("api: processing batch %s: %v", batch, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DetectLapsed diffs the batch against the prior week and deactivates
// members who dropped off.
func (h *Handlers) DetectLapsed(w http.ResponseWriter, r *http.Request) {
	batch := chi.URLParam(r, "batch")
	previous := r.URL.Query().Get("previous")
	if previous == "" {
		previous = state.PreviousWeekBatch(h.now())
	}

	res, err := h.syncer.DetectLapsed(r.Context(), batch, previous)
	if err != nil {
		log.Printf("api: lapsed detection for batch %s: %v", batch, err)
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Requeue resets PROCESSING rows so a crashed run can be retried.
func (h *Handlers) Requeue(w http.ResponseWriter, r *http.Request) {
	batch := chi.URLParam(r, "batch")

	n, err := h.syncer.Requeue(r.Context(), batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch":    batch,
		"requeued": n,
	})
}

// Ingest loads a stored export email by S3 object key.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.ingester == nil {
		writeError(w, http.StatusNotImplemented, errIngestDisabled)
		return
	}

	var req struct {
		ObjectKey string `json:"object_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectKey == "" {
		http.Error(w, "object_key is required", http.StatusBadRequest)
		return
	}

	res, err := h.ingester.IngestObject(r.Context(), req.ObjectKey)
	if err != nil {
		log.Printf("api: ingesting %s: %v", req.ObjectKey, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
