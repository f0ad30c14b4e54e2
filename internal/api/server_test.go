package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/fileops/internal/config"
	"github.com/JakeFAU/fileops/internal/pipeline"
	"github.com/JakeFAU/fileops/internal/progress"
	"github.com/JakeFAU/fileops/internal/registry"
	"github.com/JakeFAU/fileops/internal/storage/memory"
	"github.com/JakeFAU/fileops/internal/store"
	"github.com/JakeFAU/fileops/internal/worker"
)

type fakeIDGen struct{ id string }

func (f fakeIDGen) NewID() (string, error) { return f.id, nil }

type testServer struct {
	server  *Server
	history *memory.HistoryStore
	session *memory.SessionStore
}

func newTestServer(t *testing.T, cfg config.Config) testServer {
	t.Helper()
	w := worker.New(registry.New(), pipeline.New(pipeline.Config{}, nil), worker.Config{}, zap.NewNop())
	history := memory.NewHistoryStore(10)
	session := memory.NewSessionStore()
	return testServer{
		server:  NewServer(w, history, session, fakeIDGen{id: "generated"}, cfg, zap.NewNop()),
		history: history,
		session: session,
	}
}

func (ts testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return out
}

func progressTypes(t *testing.T, events []sseEvent) []string {
	t.Helper()
	var out []string
	for _, evt := range events {
		if evt.name != sseProgress {
			continue
		}
		var payload struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(evt.data), &payload))
		out = append(out, payload.Type)
	}
	return out
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/readyz", "").Code)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_ReadyzWithoutWorker(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil, config.Config{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKeyRequired(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "k"}})
	require.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/v1/renamer/files", "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/v1/renamer/files?api_key=k", "").Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "").Code, "probes stay open")

	req := httptest.NewRequest(http.MethodGet, "/v1/operations", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SearchStreamsProgress(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	root := t.TempDir()
	writeFiles(t, root, "file1.txt", "file2.txt", "document.pdf")

	rec := ts.do(t, http.MethodPost, "/v1/operations/search", mustJSON(t, map[string]any{
		"operation_id": "op-1",
		"base_path":    root,
		"pattern":      "file",
		"pattern_type": "simple",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "op-1", rec.Header().Get("X-Operation-ID"))
	require.True(t, rec.Flushed)

	events := parseSSE(t, rec.Body.String())
	require.Equal(t, []string{"started", "matching", "completed"}, progressTypes(t, events))
	last := events[len(events)-1]
	require.Equal(t, sseResult, last.name)

	var result struct {
		OperationID string               `json:"operation_id"`
		Status      string               `json:"status"`
		Result      []pipeline.FileMatch `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(last.data), &result))
	require.Equal(t, "op-1", result.OperationID)
	require.Equal(t, "completed", result.Status)
	require.Len(t, result.Result, 2)
}

func TestServer_SearchGeneratesOperationID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	rec := ts.do(t, http.MethodPost, "/v1/operations/search", mustJSON(t, map[string]any{
		"base_path":    t.TempDir(),
		"pattern":      ".txt",
		"pattern_type": "ext",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "generated", rec.Header().Get("X-Operation-ID"))
}

func TestServer_SearchRejectsBadInput(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	root := t.TempDir()

	cases := map[string]string{
		"invalid json":   "{nope",
		"pattern type":   mustJSON(t, map[string]any{"base_path": root, "pattern": "x", "pattern_type": "fuzzy"}),
		"empty pattern":  mustJSON(t, map[string]any{"base_path": root, "pattern": " "}),
		"bad regex":      mustJSON(t, map[string]any{"base_path": root, "pattern": "[", "pattern_type": "regex"}),
		"missing folder": mustJSON(t, map[string]any{"base_path": filepath.Join(root, "gone"), "pattern": "x"}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := ts.do(t, http.MethodPost, "/v1/operations/search", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestServer_CancelBeforeStartRejects(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	root := t.TempDir()
	writeFiles(t, root, "victim.txt")

	rec := ts.do(t, http.MethodPost, "/v1/operations/op-early/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "cancel_requested")

	rec = ts.do(t, http.MethodPost, "/v1/operations/delete", mustJSON(t, map[string]any{
		"operation_id": "op-early",
		"files":        []string{filepath.Join(root, "victim.txt")},
	}))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "rejected")
	require.FileExists(t, filepath.Join(root, "victim.txt"))
}

func TestServer_DeleteStreamsProgress(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	root := t.TempDir()
	writeFiles(t, root, filepath.Join("sub", "a.txt"))
	target := filepath.Join(root, "sub", "a.txt")

	rec := ts.do(t, http.MethodPost, "/v1/operations/delete", mustJSON(t, map[string]any{
		"operation_id":      "op-del",
		"files":             []string{target, filepath.Join(root, "sub", "missing.txt")},
		"delete_empty_dirs": true,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.Equal(t, []string{"started", "progress", "progress", "completed"}, progressTypes(t, events))

	var result struct {
		Result pipeline.DeleteResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &result))
	require.Equal(t, []string{target}, result.Result.Successful)
	require.Len(t, result.Result.Failed, 1)
	require.Equal(t, []string{filepath.Join(root, "sub")}, result.Result.DeletedDirs)
}

func TestServer_ListAndRename(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	root := t.TempDir()
	writeFiles(t, root, "a.txt", filepath.Join("nested", "b.txt"))

	rec := ts.do(t, http.MethodPost, "/v1/operations/list", mustJSON(t, map[string]any{"dir_path": root}))
	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	var listed struct {
		Result []string `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &listed))
	require.ElementsMatch(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "nested", "b.txt")}, listed.Result)

	body := `{"files":[["` + filepath.Join(root, "a.txt") + `","` + filepath.Join(root, "c.txt") + `"]]}`
	rec = ts.do(t, http.MethodPost, "/v1/operations/rename", body)
	require.Equal(t, http.StatusOK, rec.Code)
	events = parseSSE(t, rec.Body.String())
	require.Equal(t, []string{"started", "progress", "completed"}, progressTypes(t, events))
	require.FileExists(t, filepath.Join(root, "c.txt"))
}

func TestServer_RenamerSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	rec := ts.do(t, http.MethodGet, "/v1/renamer/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"files":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/v1/renamer/files", `{"files":["/a.txt"," ","/b.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"files":["/a.txt","/b.txt"]}`, rec.Body.String())
	require.Equal(t, 2, ts.session.Len())

	rec = ts.do(t, http.MethodDelete, "/v1/renamer/files", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, ts.session.Len())

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/v1/renamer/files", "[").Code)
}

func TestServer_ClientDisconnectCancelsSearch(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.Config{})
	root := t.TempDir()
	writeFiles(t, root, "a.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/operations/search",
		strings.NewReader(mustJSON(t, map[string]any{"operation_id": "op-gone", "base_path": root, "pattern": "a"}))).
		WithContext(ctx)
	rec := httptest.NewRecorder()

	finished := make(chan struct{})
	go func() {
		ts.server.Handler().ServeHTTP(rec, req)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after the client left")
	}
}

func TestErrorPayloadCarriesStatus(t *testing.T) {
	t.Parallel()

	payload := errorPayload("op", store.StatusRejected, registry.ErrCancelled)
	require.Equal(t, "rejected", payload["status"])
	require.Equal(t, http.StatusConflict, statusForError(registry.ErrCancelled))
	require.Equal(t, http.StatusInternalServerError, statusForError(worker.ErrPanic))
}

func TestWriteEventFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, sseProgress, progress.SearchCompleted(3)))
	require.Equal(t, "event: progress\ndata: {\"type\":\"completed\",\"matchesFound\":3}\n\n", buf.String())
}
