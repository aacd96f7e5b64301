package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alertcharts/internal/alerting"
	"alertcharts/internal/dashboard"
	"alertcharts/internal/models"
	"alertcharts/internal/watch"
)

const (
	defaultWindow   = time.Hour
	maxAckBodyBytes = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// Server wraps HTTP serving of the chart and proxy API.
type Server struct {
	httpServer   *http.Server
	service      *dashboard.Service
	prober       *watch.Prober
	metrics      *Metrics
	logger       *zap.Logger
	pushInterval time.Duration
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Prober       *watch.Prober
	Metrics      *Metrics
	Logger       *zap.Logger
	PushInterval time.Duration
}

// New creates a configured HTTP server.
func New(addr string, service *dashboard.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = streamPushInterval
	}

	mux := http.NewServeMux()
	s := &Server{
		service:      service,
		prober:       opts.Prober,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		pushInterval: opts.PushInterval,
	}
	s.registerRoutes(mux)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /api/alerts", s.handleAlerts)
	s.handle(mux, "GET /api/monitors/{id}", s.handleMonitor)
	s.handle(mux, "POST /api/monitors/{id}/acknowledge", s.handleAcknowledge)
	s.handle(mux, "GET /api/monitors/{id}/chart", s.handleChart)
	s.handle(mux, "GET /api/monitors/{id}/chart/ws", s.handleChartWS)
	s.handle(mux, "GET /api/monitors/{id}/histogram", s.handleHistogram)
	s.handle(mux, "GET /api/datasources/status", s.handleDataSourceStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
}

func (s *Server) handle(mux *http.ServeMux, pattern string, next http.HandlerFunc) {
	route := pattern
	if idx := strings.IndexByte(pattern, ' '); idx >= 0 {
		route = pattern[idx+1:]
	}
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		recorder := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, r)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.recordRequest(r.Method, route, status, time.Since(start))
	})
}

type requestIDKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return s.logger.With(zap.String("request_id", id), zap.String("path", r.URL.Path))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := alerting.AlertQuery{
		MonitorID:     strings.TrimSpace(q.Get("monitorId")),
		Size:          parseInt(q.Get("size"), 20),
		From:          parseInt(q.Get("from"), 0),
		SortField:     strings.TrimSpace(q.Get("sortField")),
		SortDirection: strings.TrimSpace(q.Get("sortDirection")),
		Severity:      strings.TrimSpace(q.Get("severityLevel")),
		State:         strings.TrimSpace(q.Get("alertState")),
		Search:        strings.TrimSpace(q.Get("search")),
	}
	if query.Size > 1000 {
		query.Size = 1000
	}
	page, err := s.service.SearchAlerts(r.Context(), dataSourceID(r), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	monitor, err := s.service.Monitor(r.Context(), dataSourceID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, monitor)
}

type acknowledgeRequest struct {
	Alerts []string `json:"alerts"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var body acknowledgeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAckBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if len(body.Alerts) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("alerts must list at least one alert id"))
		return
	}
	result, err := s.service.Acknowledge(r.Context(), dataSourceID(r), r.PathValue("id"), body.Alerts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.service.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload, err := s.service.Chart(r.Context(), dataSourceID(r), r.PathValue("id"), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.service.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload, err := s.service.Histogram(r.Context(), dataSourceID(r), r.PathValue("id"), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type dataSourceStatusResponse struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Sources     []watch.SourceSummary `json:"sources"`
}

func (s *Server) handleDataSourceStatus(w http.ResponseWriter, _ *http.Request) {
	resp := dataSourceStatusResponse{
		GeneratedAt: s.service.Now(),
		Sources:     []watch.SourceSummary{},
	}
	if s.prober != nil {
		resp.Sources = s.prober.Summary()
	}
	writeJSON(w, http.StatusOK, resp)
}

func dataSourceID(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("dataSourceId"))
}

// parseWindow reads startTime/endTime epoch milliseconds. A missing end
// defaults to now and a missing start to one hour before the end.
func parseWindow(r *http.Request, now time.Time) (models.TimeWindow, error) {
	q := r.URL.Query()
	end := now
	if raw := strings.TrimSpace(q.Get("endTime")); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.TimeWindow{}, badRequest("endTime must be epoch milliseconds")
		}
		end = time.UnixMilli(ms).UTC()
	}
	start := end.Add(-defaultWindow)
	if raw := strings.TrimSpace(q.Get("startTime")); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.TimeWindow{}, badRequest("startTime must be epoch milliseconds")
		}
		start = time.UnixMilli(ms).UTC()
	}
	window := models.TimeWindow{Start: start, End: end}
	if err := window.Validate(); err != nil {
		return models.TimeWindow{}, err
	}
	return window, nil
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

type badRequestError struct {
	msg string
}

func (e badRequestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return badRequestError{msg: msg}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		badReq badRequestError
		apiErr alerting.APIError
	)
	switch {
	case errors.As(err, &badReq), errors.Is(err, models.ErrInvalidWindow):
		status = http.StatusBadRequest
	case errors.Is(err, alerting.ErrUnknownDataSource), errors.Is(err, alerting.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		if apiErr.Status == http.StatusBadRequest {
			status = http.StatusBadRequest
		}
	}
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
