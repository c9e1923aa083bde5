// Package api provides the HTTP status API for the simulation core.
// GET endpoints are public (read-only observation); POST endpoints require
// a bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/electorate/internal/engine"
	"github.com/talgya/electorate/internal/relevance"
	"github.com/talgya/electorate/internal/telemetry"
)

// Server serves simulation status over HTTP. Everything it reads comes
// from race-safe sources: the telemetry capture, gateway stats, and the
// simulation's published sample — never the live store.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Metrics  *telemetry.Capture
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	votersLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/voters", RateLimitMiddleware(votersLimiter, s.handleVoters))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/focus", s.adminOnly(s.handleFocus))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// adminOnly gates a handler behind the bearer token. With no token
// configured, admin endpoints are disabled entirely.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	m := s.Metrics.Snapshot()
	stats := s.Sim.Gateway.Stats()

	resp := map[string]any{
		"tick":            s.Eng.Tick(),
		"speed":           s.Eng.Speed(),
		"degraded":        s.Sim.Degraded,
		"tiers":           m.LastTiers,
		"budget_overflow": m.Overflow,
		"gateway":         stats,
		"degradations":    len(m.Degradations),
	}
	writeJSON(w, resp)
}

func (s *Server) handleVoters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"sample": s.Sim.Sample(),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 64 {
		http.Error(w, "speed out of range", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("simulation speed changed", "speed", req.Speed)
	writeJSON(w, map[string]any{"speed": req.Speed})
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Radius float64 `json:"radius"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Radius < 0 {
		http.Error(w, "radius out of range", http.StatusBadRequest)
		return
	}
	s.Sim.Classifier.SetFocus(relevance.Focus{X: req.X, Y: req.Y, Radius: req.Radius})
	slog.Info("focus moved", "x", req.X, "y", req.Y, "radius", req.Radius)
	writeJSON(w, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
