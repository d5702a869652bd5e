// Package mcp connects Clara to the Model Context Protocol in both directions.
//
// Server exposes a workflow engine as MCP tools (run, resume, inspect) so an
// agent host can drive support workflows. Provider is the other side: a
// CapabilityProvider that executes ATLAS or COMMON abilities as tools of a
// remote MCP server. AbilityServer publishes any CapabilityProvider as such a
// server, which is how the simulated providers are served out of process.
package mcp

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
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/aretw0/clara/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StagesURI is the resource holding the stage catalog.
const StagesURI = "clara://stages"

// workflowURIPrefix prefixes the workflow resource template.
const workflowURIPrefix = "clara://workflows/"

// Service is the part of the engine the MCP server drives.
type Service interface {
	ports.WorkflowService
	Stages() []domain.Stage
}

// Server wraps a workflow service and exposes it as an MCP Server.
type Server struct {
	service   Service
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP Server instance.
func NewServer(svc Service, opts ...ServerOption) *Server {
	s := &Server{
		service:   svc,
		mcpServer: server.NewMCPServer("clara-mcp", strings.TrimSpace(clara.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP server over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	return serveSSE(ctx, s.mcpServer, addr, baseURL, s.logger)
}

func serveSSE(ctx context.Context, mcpServer *server.MCPServer, addr, baseURL string, logger *slog.Logger) error {
	sseServer := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunArgs are the arguments of run_workflow.
type RunArgs struct {
	RequestID    string `json:"request_id,omitempty"`
	CustomerName string `json:"customer_name"`
	Email        string `json:"email"`
	Query        string `json:"query"`
	Priority     string `json:"priority,omitempty"`
	TicketID     string `json:"ticket_id,omitempty"`
}

// ResumeArgs are the arguments of resume_workflow.
type ResumeArgs struct {
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`
}

// WorkflowArgs identify a workflow.
type WorkflowArgs struct {
	RequestID string `json:"request_id"`
}

// AuditResponse is the output of get_audit.
type AuditResponse struct {
	RequestID string              `json:"request_id"`
	Entries   []domain.AuditEntry `json:"entries"`
}

// ListResponse is the output of list_workflows.
type ListResponse struct {
	Workflows []string `json:"workflows"`
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Start a customer-support workflow. It usually suspends with clarification questions; answer them with resume_workflow."),
		mcp.WithString("request_id", mcp.Description("Workflow ID (optional, generated when omitted)")),
		mcp.WithString("customer_name", mcp.Required(), mcp.Description("Customer name")),
		mcp.WithString("email", mcp.Required(), mcp.Description("Customer email")),
		mcp.WithString("query", mcp.Required(), mcp.Description("The customer's request")),
		mcp.WithString("priority", mcp.Description("low, medium, high or urgent"), mcp.Enum("low", "medium", "high", "urgent")),
		mcp.WithString("ticket_id", mcp.Description("Existing ticket ID (optional)")),
		mcp.WithOutputSchema[runner.Report](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("resume_workflow",
		mcp.WithDescription("Answer the clarification questions of a suspended workflow and continue it."),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("The customer's answer")),
		mcp.WithOutputSchema[runner.Report](),
	), mcp.NewStructuredToolHandler(s.handleResume))

	s.mcpServer.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Current status, pending questions or final result of a workflow."),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithOutputSchema[runner.Report](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("get_audit",
		mcp.WithDescription("Audit trail of a workflow, in chronological order."),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithOutputSchema[AuditResponse](),
	), mcp.NewStructuredToolHandler(s.handleAudit))

	s.mcpServer.AddTool(mcp.NewTool("cancel_workflow",
		mcp.WithDescription("Cancel a running or suspended workflow."),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Workflow ID")),
	), s.handleCancel)

	s.mcpServer.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("IDs of the stored workflows."),
		mcp.WithOutputSchema[ListResponse](),
	), mcp.NewStructuredToolHandler(s.handleList))
}

func (s *Server) handleRun(ctx context.Context, _ mcp.CallToolRequest, args RunArgs) (runner.Report, error) {
	fields := map[string]any{
		"customer_name": args.CustomerName,
		"email":         args.Email,
		"query":         args.Query,
	}
	if args.Priority != "" {
		fields["priority"] = args.Priority
	}
	if args.TicketID != "" {
		fields["ticket_id"] = args.TicketID
	}

	state, err := s.service.Run(ctx, args.RequestID, fields)
	if err != nil {
		return runner.Report{}, fmt.Errorf("run failed: %w", err)
	}
	return runner.NewReport(state), nil
}

func (s *Server) handleResume(ctx context.Context, _ mcp.CallToolRequest, args ResumeArgs) (runner.Report, error) {
	clean, err := runner.SanitizeInput(args.Answer)
	if err != nil {
		s.logger.Warn("MCP resume: answer rejected", "request_id", args.RequestID, "err", err, "size", len(args.Answer))
		return runner.Report{}, fmt.Errorf("answer rejected: %w", err)
	}
	state, err := s.service.Resume(ctx, args.RequestID, map[string]any{runner.DefaultAnswerField: clean})
	if err != nil {
		return runner.Report{}, fmt.Errorf("resume failed: %w", err)
	}
	return runner.NewReport(state), nil
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args WorkflowArgs) (runner.Report, error) {
	state, err := s.service.Get(ctx, args.RequestID)
	if err != nil {
		return runner.Report{}, err
	}
	return runner.NewReport(state), nil
}

func (s *Server) handleAudit(ctx context.Context, _ mcp.CallToolRequest, args WorkflowArgs) (AuditResponse, error) {
	entries, err := s.service.Audit(ctx, args.RequestID)
	if err != nil {
		return AuditResponse{}, err
	}
	return AuditResponse{RequestID: args.RequestID, Entries: entries}, nil
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("request_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.service.Cancel(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("workflow %s cancelled", id)), nil
}

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (ListResponse, error) {
	ids, err := s.service.List(ctx)
	if err != nil {
		return ListResponse{}, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ListResponse{Workflows: ids}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StagesURI, "Stage catalog",
		mcp.WithResourceDescription("The eleven stages and the abilities each one runs."),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.service.Stages())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: StagesURI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(workflowURIPrefix+"{id}", "Workflow state",
		mcp.WithTemplateDescription("Last persisted state of a workflow, audit trail included."),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		id := strings.TrimPrefix(uri, workflowURIPrefix)
		state, err := s.service.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
