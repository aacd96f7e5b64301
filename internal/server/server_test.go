package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertcharts/internal/alerting"
	"alertcharts/internal/config"
	"alertcharts/internal/dashboard"
	"alertcharts/internal/storage"
	"alertcharts/internal/watch"
)

func at(hour, minute int) time.Time {
	return time.Date(2018, 10, 29, hour, minute, 0, 0, time.UTC)
}

type fakeBackend struct {
	alertCalls     atomic.Int32
	histogramFails bool
}

func (b *fakeBackend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"cluster_name": "test"})
	})
	mux.HandleFunc("GET /_plugins/_alerting/monitors/alerts", func(w http.ResponseWriter, r *http.Request) {
		b.alertCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"alerts": []map[string]any{
				{"id": "a1", "monitor_id": "m1", "trigger_id": "t1", "trigger_name": "cpu high", "state": "COMPLETED",
					"start_time": at(9, 5).UnixMilli(), "end_time": at(9, 10).UnixMilli()},
			},
			"totalAlerts": 1,
		})
	})
	mux.HandleFunc("POST /_plugins/_alerting/monitors/{id}/_acknowledge/alerts", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Alerts []string `json:"alerts"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{"success": body.Alerts, "failed": []any{}})
	})
	mux.HandleFunc("GET /_plugins/_alerting/monitors/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "m1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"reason": "Monitor not found."}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"_id":     "m1",
			"monitor": map[string]any{"name": "cpu monitor", "enabled": true, "triggers": []any{}},
		})
	})
	mux.HandleFunc("POST /{index}/_search", func(w http.ResponseWriter, _ *http.Request) {
		if b.histogramFails {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"aggregations": map[string]any{"alerts_over_time": map[string]any{"buckets": []any{}}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	server  *Server
	backend *fakeBackend
	prober  *watch.Prober
}

func newTestEnv(t *testing.T, b *fakeBackend) testEnv {
	t.Helper()
	upstream := b.serve(t)
	registry, err := alerting.NewRegistry([]config.DataSource{
		{ID: "local", BaseURL: upstream.URL, TimeoutSeconds: 5, Enabled: true},
	}, "", nil)
	require.NoError(t, err)
	cache, err := storage.NewAlertCache(8, time.Minute)
	require.NoError(t, err)

	metrics := NewMetrics()
	svc := dashboard.NewService(registry, cache, metrics, nil)
	targets := []watch.Pinger{}
	for _, cli := range registry.Clients() {
		targets = append(targets, cli)
	}
	prober := watch.NewProber(targets, time.Minute, 10, nil)
	srv := New(":0", svc, Options{Prober: prober, Metrics: metrics, PushInterval: time.Hour})
	return testEnv{server: srv, backend: b, prober: prober}
}

func windowQuery(start, end time.Time) string {
	return fmt.Sprintf("startTime=%d&endTime=%d", start.UnixMilli(), end.UnixMilli())
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChartEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	rec := do(t, env.server.Handler(), http.MethodGet,
		"/api/monitors/m1/chart?"+windowQuery(at(9, 0), at(10, 0)), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var payload dashboard.ChartPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "m1", payload.MonitorID)
	assert.Equal(t, "local", payload.DataSource)
	assert.Equal(t, "1m", payload.Interval.Name)
	require.Len(t, payload.Triggers, 1)
	points := payload.Triggers[0].Points
	require.Len(t, points, 4)
	assert.Equal(t, at(9, 0).UnixMilli(), points[0].X)
	assert.Equal(t, 0, points[0].Y)
	assert.Equal(t, 1, points[1].Y)
	assert.Equal(t, 3, points[2].Y)
	assert.Equal(t, 0, points[3].Y)
}

func TestChartEndpointKeepsRequestID(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestChartEndpointErrors(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	cases := []struct {
		name   string
		target string
		status int
	}{
		{name: "start after end", target: "/api/monitors/m1/chart?" + windowQuery(at(10, 0), at(9, 0)), status: http.StatusBadRequest},
		{name: "malformed start", target: "/api/monitors/m1/chart?startTime=yesterday", status: http.StatusBadRequest},
		{name: "malformed end", target: "/api/monitors/m1/chart?endTime=now", status: http.StatusBadRequest},
		{name: "unknown data source", target: "/api/monitors/m1/chart?dataSourceId=nowhere&" + windowQuery(at(9, 0), at(10, 0)), status: http.StatusNotFound},
		{name: "unknown monitor", target: "/api/monitors/missing", status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, env.server.Handler(), http.MethodGet, tc.target, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAlertsEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	rec := do(t, env.server.Handler(), http.MethodGet, "/api/alerts?monitorId=m1&size=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page alerting.AlertPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Alerts, 1)
	assert.Equal(t, "a1", page.Alerts[0].ID)
	assert.Equal(t, 1, page.TotalAlerts)
}

func TestMonitorEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	rec := do(t, env.server.Handler(), http.MethodGet, "/api/monitors/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"cpu monitor"`)
}

func TestAcknowledgeEndpoint(t *testing.T) {
	b := &fakeBackend{}
	env := newTestEnv(t, b)
	h := env.server.Handler()
	chartURL := "/api/monitors/m1/chart?" + windowQuery(at(9, 0), at(10, 0))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, chartURL, nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, chartURL, nil).Code)
	assert.Equal(t, int32(1), b.alertCalls.Load())

	rec := do(t, h, http.MethodPost, "/api/monitors/m1/acknowledge", bytes.NewBufferString(`{"alerts":["a1"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result alerting.AcknowledgeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"a1"}, result.Success)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, chartURL, nil).Code)
	assert.Equal(t, int32(2), b.alertCalls.Load())
}

func TestAcknowledgeEndpointRejectsBadBody(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	h := env.server.Handler()

	rec := do(t, h, http.MethodPost, "/api/monitors/m1/acknowledge", bytes.NewBufferString(`{"alerts":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/monitors/m1/acknowledge", bytes.NewBufferString(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistogramEndpointFallsBack(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{histogramFails: true})
	rec := do(t, env.server.Handler(), http.MethodGet,
		"/api/monitors/m1/histogram?"+windowQuery(at(9, 0), at(10, 0)), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload dashboard.HistogramPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "local", payload.Source)
	assert.Len(t, payload.Buckets, 61)
}

func TestDataSourceStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	env.prober.ProbeOnce(context.Background())

	rec := do(t, env.server.Handler(), http.MethodGet, "/api/datasources/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body dataSourceStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "local", body.Sources[0].DataSource)
	assert.Equal(t, 100.0, body.Sources[0].AvailabilityPercent)
	require.NotNil(t, body.Sources[0].Latest)
	assert.True(t, body.Sources[0].Latest.OK)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	h := env.server.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `alertcharts_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestChartStreamPushesOnConnect(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/monitors/m1/chart/ws?" + windowQuery(at(9, 0), at(10, 0))
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var payload dashboard.ChartPayload
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, "m1", payload.MonitorID)
	assert.Equal(t, "1m", payload.Interval.Name)
	assert.Equal(t, time.Hour, payload.Window.Duration())
}

func TestChartStreamRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{})
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/monitors/m1/chart/ws"
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
