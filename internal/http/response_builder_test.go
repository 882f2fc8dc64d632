package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"spendtracker/internal/core"
)

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Message("created").
		Data(map[string]int{"id": 7}).
		Header("X-Test", "1").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Test") != "1" {
		t.Error("custom header not set")
	}

	var env map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env["success"] != true || env["message"] != "created" {
		t.Errorf("envelope = %v", env)
	}
	if _, ok := env["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
	if _, ok := env["error_kind"]; ok {
		t.Error("error_kind should be omitted on success")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.Validationf("bad"), http.StatusBadRequest},
		{fmt.Errorf("get: %w", core.ErrNotFound), http.StatusNotFound},
		{core.ErrUnauthorized, http.StatusUnauthorized},
		{core.ErrConflict, http.StatusConflict},
		{fmt.Errorf("insert: %w", core.ErrUnavailable), http.StatusServiceUnavailable},
		{core.ErrKeyCollision, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteErrorHidesInfrastructureDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	writeError(w, r, fmt.Errorf("%w: disk I/O error at /var/lib/db", core.ErrUnavailable))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Message != msgUnavailable || env.ErrorKind != core.KindInternal || env.Success {
		t.Errorf("envelope = %+v", env)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing on retryable error")
	}
}

func TestPublicMessage(t *testing.T) {
	err := fmt.Errorf("update transaction 4: %w", core.Validationf("description is required"))
	if got := publicMessage(core.KindOf(err), err); got != "description is required" {
		t.Errorf("publicMessage = %q", got)
	}
	if got := publicMessage(core.KindNotFound, core.ErrNotFound); got != "not found" {
		t.Errorf("publicMessage = %q", got)
	}
}
