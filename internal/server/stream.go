package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamPushInterval = 60 * time.Second
	streamWriteTimeout = 5 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

type streamError struct {
	Error string `json:"error"`
}

// handleChartWS pushes the chart payload on connect and on every tick. The
// window keeps the requested length and slides so it always ends now.
func (s *Server) handleChartWS(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.service.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	span := window.Duration()
	monitorID := r.PathValue("id")
	dataSource := dataSourceID(r)
	log := s.requestLogger(r).With(zap.String("monitor_id", monitorID))

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.metrics.streamClients.Inc()
	defer s.metrics.streamClients.Dec()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func() error {
		now := s.service.Now()
		window.End = now
		window.Start = now.Add(-span)
		payload, err := s.service.Chart(ctx, dataSource, monitorID, window)
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err != nil {
			log.Warn("chart stream build failed", zap.Error(err))
			return conn.WriteJSON(streamError{Error: err.Error()})
		}
		return conn.WriteJSON(payload)
	}

	if err := push(); err != nil {
		return
	}

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := push(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
