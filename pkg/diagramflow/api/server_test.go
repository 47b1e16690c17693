package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/api"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/llm"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/session"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

const flowJSON = `{"nodes": [
	{"id": "a", "position": {"x": 0, "y": 0}, "data": {"label": "Start"}},
	{"id": "b", "position": {"x": 0, "y": 200}, "data": {"label": "Work"}},
	{"id": "c", "position": {"x": 0, "y": 400}, "data": {"label": "Done"}}
], "edges": [
	{"id": "ab", "source": "a", "target": "b"},
	{"id": "bc", "source": "b", "target": "c"}
]}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	srv  *api.Server
	ts   *httptest.Server
	mock *llm.MockClient
	reg  *prometheus.Registry
}

func newFixture(t *testing.T, response string) *fixture {
	t.Helper()
	mock := llm.NewMockClient(response)
	presets := llm.NewPresets()
	presets.Use("mock", mock)

	gen, err := diagramflow.NewGenerator(
		diagramflow.WithPresets(presets),
		diagramflow.WithLogger(discardLogger()),
		diagramflow.WithStore(session.NewStore(session.WithLogger(discardLogger()))),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv := api.NewServer(gen,
		api.WithLogger(discardLogger()),
		api.WithRegistry(reg),
		api.WithStreamTimings(stream.NoPacing),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts, mock: mock, reg: reg}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp := f.post(t, "/v1/generate", `{"user_input": "three steps", "session_id": "s-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decodeBody[api.GenerateResponse](t, resp)
	assert.Equal(t, 3, body.NodeCount)
	assert.Equal(t, 2, body.EdgeCount)
	assert.Len(t, body.Nodes, 3)
	assert.NotEmpty(t, body.MermaidCode)
	assert.Equal(t, "s-1", body.SessionID)
	assert.Equal(t, "mock", body.Provider)

	assert.InDelta(t, 1, testutil.ToFloat64(f.srv.Metrics().Generations.WithLabelValues("flow", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.srv.Metrics().Requests.WithLabelValues("POST /v1/generate", "200")), 0)
}

func TestGenerate_Errors(t *testing.T) {
	f := newFixture(t, "no json in here")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{"user_input":`, http.StatusBadRequest},
		{"empty input", `{"user_input": ""}`, http.StatusBadRequest},
		{"unparseable model output", `{"user_input": "x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/v1/generate", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decodeBody[api.ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.status, body.Status)
		})
	}

	resp := f.post(t, "/v1/generate", `{"user_input": "x"}`)
	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, diagramflow.StageParse, body.Stage)
}

func TestGenerate_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp, err := http.Get(f.ts.URL + "/v1/generate")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGenerateStream(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp := f.post(t, "/v1/generate/stream", `{"user_input": "three steps"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events, err := stream.ParseEvents(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, stream.TagStart, events[0].Tag)
	assert.Equal(t, stream.TagEnd, events[len(events)-1].Tag)

	shown := 0
	for _, ev := range events {
		if ev.Tag == stream.TagNodeShow {
			shown++
		}
	}
	assert.Equal(t, 3, shown)
	assert.InDelta(t, 3, testutil.ToFloat64(f.srv.Metrics().Events.WithLabelValues("NODE_SHOW")), 0)
}

func TestGenerateStream_ErrorEvent(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp := f.post(t, "/v1/generate/stream", `{"user_input": ""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events, err := stream.ParseEvents(resp.Body)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, stream.TagError, events[1].Tag)
	assert.Contains(t, events[1].Payload, "user_input")
}

func TestGenerateImage(t *testing.T) {
	f := newFixture(t, flowJSON)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "diagram.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("hint", "a pipeline"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.ts.URL+"/v1/generate/image", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.GenerateResponse](t, resp)
	assert.Equal(t, 3, body.NodeCount)
	assert.True(t, f.mock.LastCall().HasImages())
}

func TestGenerateImage_MissingFile(t *testing.T) {
	f := newFixture(t, flowJSON)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("hint", "nothing attached"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.ts.URL+"/v1/generate/image", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExcalidraw(t *testing.T) {
	f := newFixture(t, `{"elements": [{"id": "r", "type": "rectangle", "x": 0, "y": 0}]}`)

	resp := f.post(t, "/v1/excalidraw", `{"user_input": "a box"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scene := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "excalidraw", scene["type"])
	assert.Len(t, scene["elements"], 1)
}

func TestCanvasLifecycle(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp := f.post(t, "/v1/canvas", `{"session_id": "canvas-a", "nodes": [{"id": "n1", "type": "default", "position": {"x": 1, "y": 2}, "data": {"label": "One"}}], "edges": []}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved := decodeBody[session.SaveResult](t, resp)
	assert.Equal(t, "canvas-a", saved.SessionID)
	assert.Equal(t, 1, saved.NodeCount)

	resp = f.post(t, "/v1/canvas", `{"session_id": "canvas-a", "nodes": [], "edges": []}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := http.Get(f.ts.URL + "/v1/canvas/canvas-a")
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	g := decodeBody[map[string]any](t, got)
	assert.Empty(t, g["nodes"])

	req, err := http.NewRequest(http.MethodDelete, f.ts.URL+"/v1/canvas/canvas-a", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing, err := http.Get(f.ts.URL + "/v1/canvas/canvas-a")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestCanvas_NewIDAndInvalidID(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp := f.post(t, "/v1/canvas", `{"nodes": [], "edges": []}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved := decodeBody[session.SaveResult](t, resp)
	assert.True(t, strings.HasPrefix(saved.SessionID, session.IDPrefix))

	resp = f.post(t, "/v1/canvas", `{"session_id": "bad id!", "nodes": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, flowJSON)
	f.post(t, "/v1/canvas", `{"session_id": "live-1", "nodes": []}`)

	resp, err := http.Get(f.ts.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	health := decodeBody[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)
	assert.Equal(t, []string{"mock"}, health.Presets)

	metrics, err := http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	text, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "diagramflow_active_sessions 1")
	assert.Contains(t, string(text), `diagramflow_http_requests_total{route="GET /v1/health",status="200"} 1`)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t, flowJSON)

	resp, err := http.Get(f.ts.URL + "/v1/templates")
	require.NoError(t, err)
	defer resp.Body.Close()

	list := decodeBody[[]diagramflow.Template](t, resp)
	ids := make([]string, 0, len(list))
	for _, tpl := range list {
		ids = append(ids, tpl.ID)
	}
	assert.Contains(t, ids, "oom-investigation")
	assert.Contains(t, ids, "microservices")
}
