// Package http exposes a Clara engine over a JSON HTTP API described by the
// embedded openapi.yaml, with an SSE stream of state diffs per workflow.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/internal/runtime"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/aretw0/clara/pkg/runner"
	"github.com/aretw0/clara/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the part of the engine the API drives.
type Service interface {
	ports.WorkflowService
	Recover(ctx context.Context, requestID string) (*domain.WorkflowState, error)
	Delete(ctx context.Context, requestID string) error
	Stages() []domain.Stage
}

// Server implements ServerInterface.
type Server struct {
	Service Service
	Streams *StreamManager
	Logger  *slog.Logger
}

var _ ServerInterface = (*Server)(nil)

// Option configures NewHandler.
type Option func(*handlerConfig)

type handlerConfig struct {
	logger   *slog.Logger
	streams  *StreamManager
	gatherer prometheus.Gatherer
	validate bool
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *handlerConfig) { c.logger = logger }
}

// WithStreams shares a StreamManager, typically one whose Hooks are installed on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(c *handlerConfig) { c.streams = sm }
}

// WithMetrics serves the gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(c *handlerConfig) { c.gatherer = g }
}

// WithoutValidation disables OpenAPI request validation.
func WithoutValidation() Option {
	return func(c *handlerConfig) { c.validate = false }
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc Service, opts ...Option) (http.Handler, error) {
	cfg := handlerConfig{logger: logging.NewNop(), validate: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.streams == nil {
		cfg.streams = NewStreamManager(cfg.logger)
	}

	server := &Server{Service: svc, Streams: cfg.streams, Logger: cfg.logger}
	r := chi.NewRouter()

	if cfg.validate {
		doc, err := GetSwagger()
		if err != nil {
			return nil, err
		}
		validator, err := RequestValidator(doc)
		if err != nil {
			return nil, err
		}
		r.Use(validator)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		spec, err := rawSpec()
		if err != nil {
			http.Error(w, "Failed to load spec", http.StatusInternalServerError)
			cfg.logger.Error("failed to load OpenAPI spec", "err", err)
			return
		}
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(spec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(HandlerFromMux(server, r)), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Clara API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
        window.ui = SwaggerUIBundle({ url: '/openapi.yaml', dom_id: '#swagger-ui' });
    };
</script>
</body>
</html>
`

// RunWorkflow handles POST /workflows.
func (s *Server) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}
	if body.Request == nil {
		s.writeError(w, fmt.Errorf("%w: request is required", errBadRequest))
		return
	}

	state, err := s.Service.Run(detach(r), body.RequestID, body.Request)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Streams.Broadcast(domain.Diff(nil, state))
	writeJSON(w, http.StatusOK, runner.NewReport(state))
}

// ResumeWorkflow handles POST /workflows/{id}/resume.
func (s *Server) ResumeWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	var body ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}

	input := make(map[string]any, len(body.Input)+1)
	for k, v := range body.Input {
		input[k] = v
	}
	if body.Answer != nil {
		clean, err := runner.SanitizeInput(*body.Answer)
		if err != nil {
			s.Logger.Warn("resume: answer rejected", "request_id", id, "err", err, "size", len(*body.Answer))
			s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		input[runner.DefaultAnswerField] = clean
	}
	if len(input) == 0 {
		s.writeError(w, fmt.Errorf("%w: answer or input is required", errBadRequest))
		return
	}

	before, _ := s.Service.Get(r.Context(), id)
	state, err := s.Service.Resume(detach(r), id, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Streams.Broadcast(domain.Diff(before, state))
	writeJSON(w, http.StatusOK, runner.NewReport(state))
}

// RecoverWorkflow handles POST /workflows/{id}/recover.
func (s *Server) RecoverWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	before, _ := s.Service.Get(r.Context(), id)
	state, err := s.Service.Recover(detach(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Streams.Broadcast(domain.Diff(before, state))
	writeJSON(w, http.StatusOK, runner.NewReport(state))
}

// CancelWorkflow handles POST /workflows/{id}/cancel.
func (s *Server) CancelWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.Service.Cancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetWorkflow handles GET /workflows/{id}.
func (s *Server) GetWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	state, err := s.Service.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteWorkflow handles DELETE /workflows/{id}.
func (s *Server) DeleteWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.Service.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWorkflows handles GET /workflows.
func (s *Server) ListWorkflows(w http.ResponseWriter, r *http.Request, params ListWorkflowsParams) {
	ids, err := s.Service.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if params.Limit != nil && *params.Limit > 0 && len(ids) > *params.Limit {
		ids = ids[:*params.Limit]
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, WorkflowList{Workflows: ids})
}

// GetAudit handles GET /workflows/{id}/audit.
func (s *Server) GetAudit(w http.ResponseWriter, r *http.Request, id string, params GetAuditParams) {
	entries, err := s.Service.Audit(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if params.Since != nil {
		out := entries[:0:0]
		for _, e := range entries {
			if e.Sequence > *params.Since {
				out = append(out, e)
			}
		}
		entries = out
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListStages handles GET /stages.
func (s *Server) ListStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Service.Stages())
}

// GetHealth handles GET /health. Any unavailable provider makes it a 503.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Providers: make(map[string]string)}
	for kind, err := range s.Service.Health(r.Context()) {
		if err != nil {
			resp.Status = "degraded"
			resp.Providers[string(kind)] = err.Error()
			continue
		}
		resp.Providers[string(kind)] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "clara-http",
		"version":     strings.TrimSpace(clara.Version),
		"api_version": apiVersion,
	})
}

// SubscribeEvents handles GET /workflows/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request, id string, params SubscribeEventsParams) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	state, err := s.Service.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")

	// The current state first, so late subscribers start from a full picture.
	if initial, err := json.Marshal(domain.Diff(nil, state)); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", initial)
	}
	flusher.Flush()
	s.Logger.Info("SSE: subscribed", "request_id", id)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	watch := parseWatch(params.Watch)
	for {
		select {
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			s.Logger.Info("SSE: client disconnected", "request_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !watch.matches(msg) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

type watchFilter map[string]bool

func parseWatch(param *string) watchFilter {
	if param == nil || *param == "" {
		return nil
	}
	f := make(watchFilter)
	for _, field := range strings.Split(*param, ",") {
		f[strings.TrimSpace(field)] = true
	}
	return f
}

// matches reports whether the diff touches any watched part. No filter matches everything.
func (f watchFilter) matches(msg []byte) bool {
	if len(f) == 0 {
		return true
	}
	var diff domain.StateDiff
	if err := json.Unmarshal(msg, &diff); err != nil {
		return true
	}
	return (f["stage"] && diff.CurrentStage != nil) ||
		(f["status"] && diff.Status != nil) ||
		(f["fields"] && len(diff.Fields) > 0) ||
		(f["audit"] && len(diff.Audit) > 0) ||
		(f["decision"] && diff.Decision != nil)
}

var errBadRequest = errors.New("bad request")

// detach keeps a workflow running when its client goes away. Runs are
// stopped with POST /workflows/{id}/cancel.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// keepAliveInterval is how often an idle SSE stream sends a comment line.
var keepAliveInterval = 15 * time.Second

// writeError maps engine errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var we *domain.WorkflowError
	if errors.As(err, &we) {
		resp.Kind = string(we.Kind)
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists),
		errors.Is(err, clara.ErrBusy),
		errors.Is(err, domain.ErrInvalidResumeState),
		errors.Is(err, domain.ErrTerminalState),
		errors.Is(err, runtime.ErrNotRunnable):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		s.Logger.Error("request failed", "err", err)
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
