package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/fabtrack/internal/api"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/sqlite"
	"github.com/rpggio/fabtrack/internal/workflow"
)

const testCatalog = `
version: "mcp1"
activities:
  - {code: A1, name: Frame, stage: build, sequence: 10, standard_duration_days: 2}
plans:
  pod:
    - activity: A1
`

func newSession(t *testing.T, actor access.Actor) *sdkmcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	engine := workflow.NewEngine(db, cat, nil, nil, workflow.Config{})
	require.NoError(t, engine.SyncCatalog(ctx))

	server := NewServer(Config{
		Dispatcher:    api.NewDispatcher(engine),
		TransportMode: "stdio",
		DefaultActor:  actor,
	})

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func invoke(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) (*sdkmcp.CallToolResult, string) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool %s failed", name)
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			return result, text.Text
		}
	}
	t.Fatalf("tool %s returned no text content", name)
	return nil, ""
}

func TestServer_ListsEveryMethodAsTool(t *testing.T) {
	session := newSession(t, access.NewActor("local", "*"))

	tools, err := session.ListTools(context.Background(), &sdkmcp.ListToolsParams{})
	require.NoError(t, err)

	names := make(map[string]bool, len(tools.Tools))
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, m := range api.Methods() {
		require.True(t, names[m.Name], "missing tool %s", m.Name)
	}
}

func TestServer_CallTool(t *testing.T) {
	session := newSession(t, access.NewActor("local", "*"))

	result, text := invoke(t, session, "create_unit", map[string]any{"tag": "M-1", "type": "pod"})
	require.False(t, result.IsError, text)

	var created struct {
		ID  string `json:"id"`
		Tag string `json:"tag"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &created))
	require.Equal(t, "M-1", created.Tag)

	result, text = invoke(t, session, "get_unit", map[string]any{"id": created.ID})
	require.False(t, result.IsError, text)
	require.Contains(t, text, `"activities"`)
}

func TestServer_RejectionIsToolError(t *testing.T) {
	session := newSession(t, access.NewActor("viewer"))

	result, text := invoke(t, session, "create_unit", map[string]any{"tag": "M-2", "type": "pod"})
	require.True(t, result.IsError)

	var apiErr api.APIError
	require.NoError(t, json.Unmarshal([]byte(text), &apiErr))
	require.Equal(t, api.CodePermissionDenied, apiErr.Code)
}

func TestServer_DocResources(t *testing.T) {
	session := newSession(t, access.NewActor("local", "*"))

	read, err := session.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "fabtrack://docs/errors"})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	require.Contains(t, read.Contents[0].Text, "CHECKLIST_NOT_CLEAR")
}
