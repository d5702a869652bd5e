package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewAbilityServer publishes provider as an MCP server with one tool per ability.
// Unsuccessful responses become tool errors; provider errors become protocol errors.
func NewAbilityServer(kind domain.Provider, provider ports.CapabilityProvider, abilities []string) *server.MCPServer {
	s := server.NewMCPServer("clara-"+strings.ToLower(string(kind)), strings.TrimSpace(clara.Version))
	for _, name := range abilities {
		tool := mcp.NewTool(name, mcp.WithDescription(fmt.Sprintf("%s ability %s", kind, name)))
		s.AddTool(tool, abilityHandler(provider, name))
	}
	return s
}

func abilityHandler(provider ports.CapabilityProvider, ability string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := provider.Call(ctx, ability, request.GetArguments())
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return mcp.NewToolResultError(resp.Message), nil
		}

		output := resp.Output
		if output == nil {
			output = map[string]any{}
		}
		data, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode output: %v", err)), nil
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{mcp.NewTextContent(string(data))},
			StructuredContent: output,
		}, nil
	}
}

// ServeAbilitiesStdio serves the ability server on Stdin/Stdout.
func ServeAbilitiesStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ServeAbilitiesHTTP serves the ability server over streamable HTTP until ctx is done.
func ServeAbilitiesHTTP(ctx context.Context, s *server.MCPServer, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s)
	errs := make(chan error, 1)
	go func() { errs <- httpServer.Start(addr) }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	}
}
