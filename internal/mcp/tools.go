package mcp

import (
	"context"
	"encoding/json"
	"errors"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/fabtrack/internal/api"
)

// registerTools adds one tool per api method.
func registerTools(server *sdkmcp.Server, dispatcher Dispatcher) {
	for _, m := range api.Methods() {
		name := m.Name
		server.AddTool(&sdkmcp.Tool{
			Name:        name,
			Description: m.Description,
			InputSchema: m.InputSchema,
			Annotations: &sdkmcp.ToolAnnotations{ReadOnlyHint: m.ReadOnly},
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			return callTool(ctx, dispatcher, name, req)
		})
	}
}

func callTool(ctx context.Context, dispatcher Dispatcher, name string, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	actor, ok := actorFromContext(ctx)
	if !ok {
		return nil, errors.New("unauthorized: no actor")
	}
	var args json.RawMessage
	if req != nil && req.Params != nil {
		args = req.Params.Arguments
	}

	result, err := dispatcher.Handle(ctx, actor, name, args)
	if err != nil {
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		return textResult(apiErr, true)
	}
	return textResult(result, false)
}

func textResult(payload any, isError bool) (*sdkmcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
		IsError: isError,
	}, nil
}
