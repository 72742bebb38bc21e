package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/export"
	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/model"
	"github.com/hyperke/client-health/internal/store"
)

const maxHistoricalWeek = 4

// Health answers liveness probes; it also pings the store.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Dashboard lists the current snapshot with optional filters.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := h.store.ListSnapshots(r.Context(), filter)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(snaps))
}

// Client returns one client's current snapshot.
func (h *Handlers) Client(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "client_code")
	snap, err := h.store.GetSnapshot(r.Context(), code)
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Filters returns the distinct values for the dashboard dropdowns.
func (h *Handlers) Filters(w http.ResponseWriter, r *http.Request) {
	opts, err := h.store.FilterOptions(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// Unmatched returns the unmatched-name report.
func (h *Handlers) Unmatched(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListUnmatched(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// Weeks lists the stored historical weeks.
func (h *Handlers) Weeks(w http.ResponseWriter, r *http.Request) {
	weeks, err := h.store.ListWeeks(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(weeks))
}

// Historical returns the selected weeks. A single week is returned as
// stored; several are combined per client.
func (h *Handlers) Historical(w http.ResponseWriter, r *http.Request) {
	weeks, err := parseWeeks(r.URL.Query().Get("weeks"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := h.store.ListHistorical(r.Context(), weeks)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if len(weeks) > 1 {
		snaps = combineByClient(snaps)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"weeks":   weeks,
		"clients": nonNil(snaps),
	})
}

// Export downloads the current snapshot and unmatched report as XLSX.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.store.ListSnapshots(r.Context(), store.SnapshotFilter{})
	if err != nil {
		serverError(w, r, err)
		return
	}
	entries, err := h.store.ListUnmatched(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="client-health.xlsx"`)
	if err := export.Write(w, snaps, entries); err != nil {
		zap.L().Error("api: export failed", zap.Error(err))
	}
}

// Runs lists recent pipeline runs, newest first.
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 200)
	}
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

// combineByClient keeps the order in which clients first appear.
func combineByClient(snaps []model.HealthSnapshot) []model.HealthSnapshot {
	var order []int64
	byClient := make(map[int64][]model.HealthSnapshot)
	for _, s := range snaps {
		if _, ok := byClient[s.ClientID]; !ok {
			order = append(order, s.ClientID)
		}
		byClient[s.ClientID] = append(byClient[s.ClientID], s)
	}
	out := make([]model.HealthSnapshot, 0, len(order))
	for _, id := range order {
		out = append(out, health.CombineWeeks(byClient[id]))
	}
	return out
}

// parseWeeks accepts "1,2,4". Missing means week 1. Values outside 1..4 are
// dropped; nothing valid left is an error.
func parseWeeks(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return []int{1}, nil
	}
	seen := make(map[int]bool)
	var weeks []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 || n > maxHistoricalWeek || seen[n] {
			continue
		}
		seen[n] = true
		weeks = append(weeks, n)
	}
	if len(weeks) == 0 {
		return nil, eris.New("weeks must list values between 1 and 4")
	}
	sort.Ints(weeks)
	return weeks, nil
}

func parseFilter(r *http.Request) (store.SnapshotFilter, error) {
	q := r.URL.Query()
	f := store.SnapshotFilter{
		RelationshipStatus: q.Get("relationship_status"),
		RAGStatus:          q.Get("rag_status"),
		AccountManager:     q.Get("assigned_account_manager_name"),
		InboxManager:       q.Get("assigned_inbox_manager_name"),
		SDR:                q.Get("assigned_sdr_name"),
		CodeSearch:         strings.TrimSpace(q.Get("client_code_search")),
	}
	if f.RAGStatus != "" {
		switch model.RAGStatus(f.RAGStatus) {
		case model.RAGGreen, model.RAGYellow, model.RAGRed:
		default:
			return f, eris.New("rag_status must be Green, Yellow or Red")
		}
	}

	flags := []struct {
		key string
		dst **bool
	}{
		{"deliverability_flag", &f.Deliverability},
		{"volume_flag", &f.Volume},
		{"mmf_flag", &f.MMF},
		{"data_missing_flag", &f.DataMissing},
	}
	for _, fl := range flags {
		v := q.Get(fl.key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, eris.Errorf("%s must be true or false", fl.key)
		}
		*fl.dst = &b
	}
	return f, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
