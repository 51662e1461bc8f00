package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpggio/fabtrack/internal/api"
	"github.com/rpggio/fabtrack/internal/domain/access"
)

// ErrApplication is the JSON-RPC code for a rejected engine operation. Data carries the api.APIError.
const ErrApplication = -32000

// Dispatcher runs a named method for an actor.
type Dispatcher interface {
	Handle(ctx context.Context, actor access.Actor, method string, params json.RawMessage) (any, error)
}

// Options configures the optional surfaces of the router.
type Options struct {
	// Auth authenticates /rpc, /ws and /mcp. Nil leaves them open, which only makes
	// sense with a FixedActorMiddleware.
	Auth func(http.Handler) http.Handler
	// Live serves the websocket audit feed at /ws.
	Live http.HandlerFunc
	// MCP serves the Model Context Protocol endpoint at /mcp.
	MCP    http.Handler
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	handler Dispatcher
}

// NewServer creates the router: /rpc, /ws, /mcp behind auth, /health and /metrics open.
func NewServer(handler Dispatcher, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	srv := &Server{handler: handler}

	r.Get("/health", srv.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Post("/rpc", srv.handleRPC)
		r.Get("/methods", srv.handleMethods)
		if opts.Live != nil {
			r.Get("/ws", opts.Live)
		}
		if opts.MCP != nil {
			r.Handle("/mcp", opts.MCP)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMethods(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.Methods())
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.Body)
	if err != nil {
		code := ErrInvalidReq
		if errors.Is(err, errParse) {
			code = ErrParseCode
		}
		WriteError(w, nil, code, err.Error(), nil)
		return
	}

	actor, ok := ActorFromContext(r.Context())
	if !ok || actor.ID == "" {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}

	result, err := s.handler.Handle(r.Context(), actor, req.Method, req.Params)
	if err != nil {
		code, message, data := rpcError(err)
		WriteError(w, req.ID, code, message, data)
		return
	}

	WriteResult(w, req.ID, result)
}

func rpcError(err error) (int, string, any) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return ErrInternal, "internal error", nil
	}
	switch apiErr.Code {
	case api.CodeUnknownMethod:
		return ErrMethodNotFound, apiErr.Message, apiErr
	case api.CodeInvalidParams:
		return ErrInvalidParams, apiErr.Message, apiErr
	default:
		return ErrApplication, apiErr.Message, apiErr
	}
}
