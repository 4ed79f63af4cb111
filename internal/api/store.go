package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/quizfeed/internal/storage"
)

const maxProfileBodySize = 10 << 20 // 10MB

// NewStoreHandler returns the profile store service's HTTP handler. The
// store holds one versioned record per user and accepts a write only when
// it claims exactly one past the stored version; everything else is a 409.
func NewStoreHandler(store *storage.Store, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(token))

	r.Get("/profiles/{id}", handleFetchRemote(store))
	r.Put("/profiles/{id}", handlePushRemote(store))

	return r
}

func handleFetchRemote(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rp, err := store.GetRemoteProfile(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(rp.Payload)
	}
}

func handlePushRemote(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxProfileBodySize)
		defer r.Body.Close()

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		// The record's version field is both the payload's claim and the
		// concurrency token; pull it out without trusting the rest.
		var versioned struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(payload, &versioned); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid profile payload: %v", err)
			return
		}
		if versioned.Version < 1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "version must be at least 1")
			return
		}

		err = store.UpsertRemoteProfile(id, payload, versioned.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			httpError(w, http.StatusConflict, "conflict_error",
				"version %d is not next in sequence", versioned.Version)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "stored",
			"version": versioned.Version,
		})
	}
}
