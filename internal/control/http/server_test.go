package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/au-archive/internal/archive/pathsvc"
	controlhttp "github.com/bizzlechizzle/au-archive/internal/control/http"
	"github.com/bizzlechizzle/au-archive/internal/ingest/finalizer"
	"github.com/bizzlechizzle/au-archive/internal/ingest/orchestrator"
	"github.com/bizzlechizzle/au-archive/internal/queue"
	"github.com/bizzlechizzle/au-archive/internal/store"
)

func newTestServer(t *testing.T) (*controlhttp.Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(st.DB)
	paths := pathsvc.New(dir)
	fin := finalizer.New(st, q, paths)
	orch := orchestrator.New(st, paths, fin)

	return &controlhttp.Server{
		Orchestrator: orch,
		Store:        st,
		Config:       controlhttp.Config{RateLimit: controlhttp.RateLimitConfig{RequestLimit: 1000, WindowSize: time.Minute}},
	}, st
}

func TestHandleStartImport_MissingFields_Returns400(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/v1/imports/", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestHandleStartImport_Valid_Returns202(t *testing.T) {
	srv, st := newTestServer(t)
	router := srv.Router()

	loc := &store.Location{ID: "loc-1", ShortID: "ab12cd", DisplayName: "Test Site", State: "CA", Type: "house"}
	require.NoError(t, st.PutLocation(context.Background(), loc))

	body, err := json.Marshal(map[string]any{
		"location_id":  "loc-1",
		"source_paths": []string{"/nonexistent/source"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/imports/", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 202, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "accepted", resp["status"])
}

func TestHandleCancelImport_UnknownSession_Returns404(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/v1/imports/does-not-exist/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 404, rec.Code)
}

func TestHandleListResumable_EmptyStore_ReturnsEmptyArray(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/v1/imports/resumable", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp)
}

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

func TestMetricsEndpoint_ExposesPrometheusFormat(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "archive_http_request_duration_seconds")
}
