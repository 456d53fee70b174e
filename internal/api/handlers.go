package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mmrzaf/relgen/internal/app"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/infra/repos/runs"
	"github.com/mmrzaf/relgen/internal/infra/repos/workloads"
	"github.com/mmrzaf/relgen/internal/registry"
	"github.com/mmrzaf/relgen/internal/timeutil"
)

type Handler struct {
	runService   *app.RunService
	distRegistry *registry.DistributionRegistry
}

func NewHandler(runService *app.RunService, distRegistry *registry.DistributionRegistry) *Handler {
	return &Handler{
		runService:   runService,
		distRegistry: distRegistry,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/distributions", h.ListDistributions)

	mux.HandleFunc("GET /api/v1/workloads", h.ListWorkloads)
	mux.HandleFunc("GET /api/v1/workloads/{id}", h.GetWorkload)
	mux.HandleFunc("POST /api/v1/workloads/validate", h.ValidateWorkload)

	mux.HandleFunc("POST /api/v1/runs", h.CreateRun)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", h.CancelRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/logs", h.GetRunLogs)
}

func (h *Handler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.distRegistry.List())
}

// Workloads

func (h *Handler) ListWorkloads(w http.ResponseWriter, r *http.Request) {
	list, err := h.runService.ListWorkloads()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (h *Handler) GetWorkload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wl, err := h.runService.GetWorkload(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, wl)
}

func (h *Handler) ValidateWorkload(w http.ResponseWriter, r *http.Request) {
	var wl domain.Workload
	if err := decodeJSONStrict(r, &wl); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.runService.ValidateWorkload(&wl); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"valid": true})
}

// Runs

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	run, err := h.runService.StartRun(&req)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(run)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	status := q.Get("status")

	var (
		list []*domain.Run
		err  error
	)
	if s := q.Get("since"); s != "" {
		since, perr := timeutil.ParseSince(s, time.Now().UTC())
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		list, err = h.runService.ListRunsSince(limit, status, since)
	} else {
		list, err = h.runService.ListRuns(limit, status)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.runService.GetRun(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, run)
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.runService.CancelRun(id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 2000 {
			limit = n
		}
	}
	logs, err := h.runService.ListRunLogs(id, limit)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, logs)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, runs.ErrNotFound), errors.Is(err, workloads.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAllocationFailure):
		return http.StatusInsufficientStorage
	case errors.Is(err, app.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSONStrict(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
