// Package control exposes a local HTTP surface with operational read-outs
// for a running bot instance: process health, monitor states, and command
// metrics. It is meant to be bound to localhost and scraped by deploy
// tooling, not exposed publicly.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/toweroftemptation/towerbot/pkg/guard"
	"github.com/toweroftemptation/towerbot/pkg/log"
)

// MonitorSource reports the number of live event monitors.
type MonitorSource interface {
	Count() int
}

// Server exposes operational controls for a running bot instance.
type Server struct {
	addr       string
	monitors   MonitorSource
	metrics    *guard.MetricsRegistry
	started    time.Time
	httpServer *http.Server
	listener   net.Listener
}

// NewServer returns nil if addr is empty.
func NewServer(addr string, monitors MonitorSource, metrics *guard.MetricsRegistry) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		addr:     addr,
		monitors: monitors,
		metrics:  metrics,
		started:  time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)

	return s
}

// Start opens the control server listening socket.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}); err != nil {
		log.ApplicationLogger().Error("Failed to encode health response", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type commandStatus struct {
		Name        string  `json:"name"`
		Invocations int     `json:"invocations"`
		Errors      int     `json:"errors"`
		ErrorRate   float64 `json:"error_rate"`
		AvgLatency  float64 `json:"avg_latency_seconds"`
	}

	var cmds []commandStatus
	if s.metrics != nil {
		for _, m := range s.metrics.All() {
			cmds = append(cmds, commandStatus{
				Name:        m.Name,
				Invocations: m.Invocations,
				Errors:      m.Errors,
				ErrorRate:   m.ErrorRate(),
				AvgLatency:  m.AvgLatency,
			})
		}
	}

	monitorCount := 0
	if s.monitors != nil {
		monitorCount = s.monitors.Count()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"monitors": monitorCount,
		"commands": cmds,
	}); err != nil {
		log.ApplicationLogger().Error("Failed to encode status response", "err", err)
	}
}
