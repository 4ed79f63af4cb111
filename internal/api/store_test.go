package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/kalambet/quizfeed/internal/storage"
)

func newTestStoreHandler(t *testing.T) http.Handler {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewStoreHandler(store, testToken)
}

func TestStore_RequiresAuth(t *testing.T) {
	h := newTestStoreHandler(t)
	rec := doRequest(t, h, http.MethodGet, "/profiles/u1", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestStore_FetchUnknownIs404(t *testing.T) {
	h := newTestStoreHandler(t)
	rec := doRequest(t, h, http.MethodGet, "/profiles/ghost", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStore_PushFetchRoundTrip(t *testing.T) {
	h := newTestStoreHandler(t)

	record := map[string]any{
		"topics":  map[string]any{"Science": map[string]any{"weight": 0.7}},
		"version": 1,
	}
	rec := doRequest(t, h, http.MethodPut, "/profiles/u1", record, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/profiles/u1", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got["version"].(float64) != 1 {
		t.Errorf("version = %v, want 1", got["version"])
	}
}

func TestStore_VersionRule(t *testing.T) {
	h := newTestStoreHandler(t)

	push := func(version int) *int {
		rec := doRequest(t, h, http.MethodPut, "/profiles/u1", map[string]any{"version": version}, true)
		return &rec.Code
	}

	// First write must claim version 1.
	if code := push(2); *code != http.StatusConflict {
		t.Errorf("v2 on empty store: status = %d, want 409", *code)
	}
	if code := push(1); *code != http.StatusOK {
		t.Errorf("v1: status = %d, want 200", *code)
	}
	if code := push(1); *code != http.StatusConflict {
		t.Errorf("repeated v1: status = %d, want 409", *code)
	}
	if code := push(3); *code != http.StatusConflict {
		t.Errorf("skipped v3: status = %d, want 409", *code)
	}
	if code := push(2); *code != http.StatusOK {
		t.Errorf("v2: status = %d, want 200", *code)
	}
}

func TestStore_ConflictErrorType(t *testing.T) {
	h := newTestStoreHandler(t)
	doRequest(t, h, http.MethodPut, "/profiles/u1", map[string]any{"version": 1}, true)

	rec := doRequest(t, h, http.MethodPut, "/profiles/u1", map[string]any{"version": 5}, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Error.Type != "conflict_error" {
		t.Errorf("error type = %q, want conflict_error", resp.Error.Type)
	}
}

func TestStore_RejectsBadPayload(t *testing.T) {
	h := newTestStoreHandler(t)

	rec := doRequest(t, h, http.MethodPut, "/profiles/u1", map[string]any{"version": 0}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("version 0: status = %d, want 400", rec.Code)
	}
}
