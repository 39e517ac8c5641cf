// Package statusapi serves read-only run and task state over HTTP for
// local dashboards and scripts.
package statusapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tkoster/inkbridge/internal/registry"
)

// Store is the registry slice the API reads from.
type Store interface {
	LatestSummaries() ([]registry.RunSummary, error)
	History(bridge string, limit int) ([]registry.RunSummary, error)
	ListTaskStates(provider string, limit int) ([]registry.TaskState, error)
	TaskCountsFor(bridge string) (registry.TaskCounts, error)
}

type Deps struct {
	Store   Store
	Version string
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Get("/v1/bridges", handleBridges(deps))
	r.Get("/v1/bridges/{name}/history", handleHistory(deps))
	r.Get("/v1/bridges/{name}/tasks", handleTaskCounts(deps))
	r.Get("/v1/tasks", handleTaskStates(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": deps.Version,
		})
	}
}

func handleBridges(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, err := deps.Store.LatestSummaries()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing bridges: %v", err)
			return
		}
		if latest == nil {
			latest = []registry.RunSummary{}
		}
		writeJSON(w, http.StatusOK, latest)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		limit := queryInt(r, "limit", 20)

		hist, err := deps.Store.History(name, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading history: %v", err)
			return
		}
		if len(hist) == 0 {
			httpError(w, http.StatusNotFound, "not_found", "no runs recorded for bridge %q", name)
			return
		}
		writeJSON(w, http.StatusOK, hist)
	}
}

func handleTaskCounts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		counts, err := deps.Store.TaskCountsFor(name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting tasks: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func handleTaskStates(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.URL.Query().Get("provider")
		if provider == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provider query parameter is required")
			return
		}
		states, err := deps.Store.ListTaskStates(provider, queryInt(r, "limit", 50))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing tasks: %v", err)
			return
		}
		if states == nil {
			states = []registry.TaskState{}
		}
		writeJSON(w, http.StatusOK, states)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
