package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCaller is the slice of an MCP client a Provider needs.
type ToolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
}

// Provider runs abilities as tools of a remote MCP server.
// Tool errors become unsuccessful responses; transport errors are returned as is.
type Provider struct {
	caller ToolCaller
	kind   domain.Provider
	logger *slog.Logger
	closer func() error
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the logger.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider wraps an initialized MCP client.
func NewProvider(kind domain.Provider, caller ToolCaller, opts ...ProviderOption) *Provider {
	p := &Provider{caller: caller, kind: kind, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kind returns ATLAS or COMMON.
func (p *Provider) Kind() domain.Provider {
	return p.kind
}

// Call implements ports.CapabilityProvider.
func (p *Provider) Call(ctx context.Context, ability string, input map[string]any) (domain.ProviderResponse, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = ability
	req.Params.Arguments = input

	res, err := p.caller.CallTool(ctx, req)
	if err != nil {
		p.logger.Debug("MCP tool call failed", "provider", p.kind, "ability", ability, "err", err)
		return domain.ProviderResponse{}, fmt.Errorf("%s/%s: %w", p.kind, ability, err)
	}

	text := firstText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return domain.ProviderResponse{Success: false, Message: text}, nil
	}

	output, err := toolOutput(res.StructuredContent, text)
	if err != nil {
		return domain.ProviderResponse{Success: false, Message: err.Error()}, nil
	}
	return domain.ProviderResponse{Success: true, Output: output}, nil
}

// Health implements ports.HealthChecker by pinging the server.
func (p *Provider) Health(ctx context.Context) error {
	if err := p.caller.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.kind, err)
	}
	return nil
}

// Close releases the underlying client when the Provider owns it.
func (p *Provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

func firstText(content []mcp.Content) string {
	for _, c := range content {
		switch t := c.(type) {
		case mcp.TextContent:
			return t.Text
		case *mcp.TextContent:
			return t.Text
		}
	}
	return ""
}

// toolOutput prefers structured content, then a JSON object in the text,
// then wraps plain text under "text".
func toolOutput(structured any, text string) (map[string]any, error) {
	if structured != nil {
		if m, ok := structured.(map[string]any); ok {
			return m, nil
		}
		data, err := json.Marshal(structured)
		if err != nil {
			return nil, fmt.Errorf("structured content: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("structured content is not an object: %w", err)
		}
		return m, nil
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return m, nil
		}
	}
	if trimmed == "" {
		return map[string]any{}, nil
	}
	return map[string]any{"text": text}, nil
}

// Connect initializes c and wraps it. The Provider closes c on Close.
func Connect(ctx context.Context, kind domain.Provider, c *client.Client, opts ...ProviderOption) (*Provider, error) {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "clara",
		Version: strings.TrimSpace(clara.Version),
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize %s provider: %w", kind, err)
	}

	p := NewProvider(kind, c, opts...)
	p.closer = c.Close
	return p, nil
}

// Dial connects to the MCP server serving kind.
//
// An http(s) endpoint uses the streamable HTTP transport, an "sse+" prefix
// (sse+http://host/sse) the SSE transport, anything else is run as a stdio
// command line.
func Dial(ctx context.Context, kind domain.Provider, endpoint string, opts ...ProviderOption) (*Provider, error) {
	var (
		c   *client.Client
		err error
	)
	switch {
	case strings.HasPrefix(endpoint, "sse+"):
		c, err = client.NewSSEMCPClient(strings.TrimPrefix(endpoint, "sse+"))
		if err == nil {
			err = c.Start(ctx)
		}
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		c, err = client.NewStreamableHttpClient(endpoint)
		if err == nil {
			err = c.Start(ctx)
		}
	default:
		fields := strings.Fields(endpoint)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%s provider: empty endpoint", kind)
		}
		// stdio clients start on creation
		c, err = client.NewStdioMCPClient(fields[0], os.Environ(), fields[1:]...)
	}
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, fmt.Errorf("connect %s provider at %q: %w", kind, endpoint, err)
	}
	return Connect(ctx, kind, c, opts...)
}
