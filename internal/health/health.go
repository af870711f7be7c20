package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"
)

// Pinger is a dependency the server reports on. Implemented by *ledger.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides HTTP health check endpoints for a tessera node.
type Server struct {
	addr   string
	checks map[string]Pinger
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a health server on addr that pings every named check.
func NewServer(addr string, checks map[string]Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{addr: addr, checks: checks, logger: logger}
}

// Handler returns the health mux, for tests and embedding.
func (h *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	return mux
}

// Start binds the listener and serves in the background. The returned
// address is the bound one, so ":0" can be used in tests.
func (h *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return nil, err
	}

	h.server = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server stopped", "error", err)
		}
	}()

	return ln.Addr(), nil
}

// Shutdown gracefully shuts down the health check server.
func (h *Server) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Response is the JSON response structure for health checks.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Errors []string          `json:"errors,omitempty"`
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if every check passes, 503 Service Unavailable otherwise.
func (h *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := Response{Status: "healthy", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = "disconnected"
			response.Errors = append(response.Errors, name+": "+err.Error())
			continue
		}
		response.Checks[name] = "connected"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
		h.logger.Warn("health check failed", "errors", response.Errors)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
