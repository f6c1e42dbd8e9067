// internal/server/server.go

// Package server exposes the food log as MCP-style tools over HTTP, next to
// the Prometheus scrape endpoint and a health check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
)

// Store is the part of the record store the tools read and write.
type Store interface {
	Ping(ctx context.Context) error
	SaveUser(ctx context.Context, user models.User) error
	InsertEntries(ctx context.Context, userID string, dayID int64, dishes []models.Dish) ([]int64, error)
	EntriesForDay(ctx context.Context, userID string, dayID int64) ([]models.FoodEntry, error)
	RecentEntries(ctx context.Context, userID string, limit int) ([]models.FoodEntry, error)
	DayTotals(ctx context.Context, userID string, dayID int64) (models.DayTotals, error)
}

// Days resolves and advances logical days.
type Days interface {
	GetOrCreateCurrentDay(ctx context.Context, userID string) (models.Day, error)
	CreateNextDay(ctx context.Context, userID string) (models.Day, error)
}

// Analyzer extracts dishes from a free-form description.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]models.Dish, error)
}

// Config holds the collaborators of a Server.
type Config struct {
	ListenAddr string
	Store      Store
	Days       Days
	Analyzer   Analyzer
	Metrics    *observe.Metrics
}

// Server answers tool calls on "/" and serves "/metrics" and "/healthz".
type Server struct {
	httpServer *http.Server
	store      Store
	days       Days
	analyzer   Analyzer
	metrics    *observe.Metrics
	tools      map[string]toolHandler
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

// errInvalidParams marks caller mistakes, answered with 400.
var errInvalidParams = errors.New("invalid parameters")

// New builds a Server from cfg.
func New(cfg Config) *Server {
	s := &Server{
		store:    cfg.Store,
		days:     cfg.Days,
		analyzer: cfg.Analyzer,
		metrics:  cfg.Metrics,
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.registerTools()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	switch r.Method {
	case http.MethodOptions:
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	start := time.Now()
	result, err := handler(r.Context(), &request)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errInvalidParams) {
			status = http.StatusBadRequest
		}
		slog.Warn("server: tool call failed", "tool", request.Name, "err", err)
		http.Error(w, err.Error(), status)
		return
	}
	slog.Debug("server: tool call", "tool", request.Name, "elapsed", time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Warn("server: failed to encode response", "tool", request.Name, "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func jsonResult(data any) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
