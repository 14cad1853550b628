package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zhuzhichaoTM/llm-router/pkg/agent"
	"github.com/zhuzhichaoTM/llm-router/pkg/audit"
	"github.com/zhuzhichaoTM/llm-router/pkg/gateway"
	"github.com/zhuzhichaoTM/llm-router/pkg/providers"
	"github.com/zhuzhichaoTM/llm-router/pkg/routing"
)

const shutdownTimeout = 10 * time.Second

// Server is the diagnostic HTTP server.
type Server struct {
	addr     string
	metrics  http.Handler
	gate     *gateway.Switch
	registry *providers.Registry
	agent    *agent.ProviderAgent
	engine   *routing.Engine
	recorder audit.Recorder
	logger   *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer builds the diagnostic server. metricsHandler may be nil when
// metrics are disabled; the agent may be nil, dropping the provider report
// detail from /healthz. A nil engine disables /routing/preview and a nil
// recorder disables /decisions.
func NewServer(addr string, metricsHandler http.Handler, gate *gateway.Switch, registry *providers.Registry, a *agent.ProviderAgent, eng *routing.Engine, rec audit.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		metrics:  metricsHandler,
		gate:     gate,
		registry: registry,
		agent:    a,
		engine:   eng,
		recorder: rec,
		logger:   logger.With("component", "server"),
	}
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostic server listening", "address", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		s.isRunning = false
		s.mu.Unlock()
		if srv == nil {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
		s.logger.Info("diagnostic server stopped")
	})
	return shutdownErr
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the route tree, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/switch", s.handleSwitch)
	mux.HandleFunc("/switch/history", s.handleSwitchHistory)
	if s.engine != nil {
		mux.HandleFunc("/routing/preview", s.handleRoutingPreview)
	}
	if s.recorder != nil {
		mux.HandleFunc("/decisions", s.handleDecisions)
	}
	return mux
}

type healthzResponse struct {
	Status    string                          `json:"status"`
	Providers int                             `json:"providers"`
	Switch    gateway.Status                  `json:"switch"`
	Reports   map[string]agent.ProviderReport `json:"reports,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthzResponse{
		Status:    "ok",
		Providers: s.registry.Len(),
		Switch:    s.gate.GetStatus(r.Context()),
	}
	if s.agent != nil {
		reports := make(map[string]agent.ProviderReport)
		for _, id := range s.registry.Names() {
			if rep, ok := s.agent.Report(id); ok {
				reports[id] = rep
			}
		}
		if len(reports) > 0 {
			resp.Reports = reports
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// toggleBody is the POST /switch request payload.
type toggleBody struct {
	Enabled      bool   `json:"enabled"`
	Operator     string `json:"operator"`
	Reason       string `json:"reason"`
	Force        bool   `json:"force"`
	DelaySeconds *int   `json:"delay_seconds,omitempty"`
}

type switchResponse struct {
	Status  gateway.Status  `json:"status"`
	Metrics gateway.Metrics `json:"metrics"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, switchResponse{
			Status:  s.gate.GetStatus(r.Context()),
			Metrics: s.gate.GetMetrics(),
		})

	case http.MethodPost:
		var body toggleBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if body.Operator == "" {
			writeError(w, http.StatusBadRequest, "operator is required")
			return
		}

		req := gateway.ToggleRequest{
			Enabled:  body.Enabled,
			Operator: body.Operator,
			Reason:   body.Reason,
			Force:    body.Force,
		}
		if body.DelaySeconds != nil {
			d := time.Duration(*body.DelaySeconds) * time.Second
			req.Delay = &d
		}

		if err := s.gate.Toggle(r.Context(), req); err != nil {
			if errors.Is(err, gateway.ErrCooldownActive) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, switchResponse{
			Status:  s.gate.GetStatus(r.Context()),
			Metrics: s.gate.GetMetrics(),
		})

	case http.MethodDelete:
		cancelled := s.gate.CancelPending(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"cancelled": cancelled,
			"status":    s.gate.GetStatus(r.Context()),
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSwitchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := s.gate.GetHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// previewBody is the POST /routing/preview payload: the request to route
// plus optional caller pins.
type previewBody struct {
	Provider    string              `json:"provider,omitempty"`
	Model       string              `json:"model,omitempty"`
	Messages    []providers.Message `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

// handleRoutingPreview runs the decision pass without executing anything,
// answering "where would this request go right now".
func (s *Server) handleRoutingPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body previewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	req := &providers.ChatRequest{
		Model:       body.Model,
		Messages:    body.Messages,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
	}
	d, err := s.engine.Route(r.Context(), req, body.Provider, body.Model)
	if err != nil {
		if errors.Is(err, routing.ErrRequestBlocked) {
			writeJSON(w, http.StatusOK, map[string]any{"blocked": true, "error": err.Error()})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
