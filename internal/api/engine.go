// Package api exposes the engine's HTTP surface (feed, events, profile,
// session lifecycle) and, separately, the profile store service the sync
// coordinator talks to.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/quizfeed/internal/feed"
	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/syncer"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	defaultFeedCount = 8
	maxFeedCount     = 30
)

// EngineDeps carries the wired components the engine handlers operate on.
type EngineDeps struct {
	Feed    *feed.Builder
	Session *profile.Session
	Sync    *syncer.Coordinator
	Token   string
}

// NewEngineHandler returns the engine's HTTP handler.
func NewEngineHandler(deps EngineDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/feed", handleFeed(deps))
		r.Post("/events", handleEvent(deps))
		r.Get("/profile", handleGetProfile(deps))
		r.Post("/session/background", handleBackground(deps))
		r.Post("/logout", handleLogout(deps))
	})

	return r
}

func handleHealth(deps EngineDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "ok",
			"sync_state": deps.Sync.State().String(),
		})
	}
}

func handleFeed(deps EngineDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch deps.Sync.State() {
		case syncer.StateReadEnabled, syncer.StateWriteOnly:
		default:
			httpError(w, http.StatusServiceUnavailable, "api_error",
				"feed unavailable during %s", deps.Sync.State())
			return
		}

		count := parseIntParam(r, "count", defaultFeedCount, maxFeedCount)
		if count == 0 {
			count = defaultFeedCount
		}

		items, err := deps.Feed.Next(count)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building feed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	}
}

// EventRequest is one recorded user response to a served item.
type EventRequest struct {
	ItemID      string `json:"item_id"`
	Outcome     string `json:"outcome"` // "correct", "incorrect", "skipped"
	TimeSpentMs int64  `json:"time_spent_ms"`
}

func parseOutcome(s string) (profile.Outcome, error) {
	switch s {
	case "correct":
		return profile.OutcomeCorrect, nil
	case "incorrect":
		return profile.OutcomeIncorrect, nil
	case "skipped":
		return profile.OutcomeSkipped, nil
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

func handleEvent(deps EngineDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req EventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ItemID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "item_id is required")
			return
		}
		outcome, err := parseOutcome(req.Outcome)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.TimeSpentMs < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "time_spent_ms must be non-negative")
			return
		}

		if err := deps.Feed.RecordOutcome(req.ItemID, outcome, req.TimeSpentMs); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "recording outcome: %v", err)
			return
		}
		deps.Sync.MarkDirty()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

func handleGetProfile(deps EngineDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.Session.Snapshot())
	}
}

func handleBackground(deps EngineDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sync.NotifyBackground(r.Context()); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "background sync: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "synced"})
	}
}

func handleLogout(deps EngineDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sync.Logout(r.Context()); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "logout sync: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "logged_out"})
	}
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

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
