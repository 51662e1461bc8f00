// Package mcp exposes the api methods as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/fabtrack/internal/domain/access"
)

// Dispatcher runs a named method for an actor.
type Dispatcher interface {
	Handle(ctx context.Context, actor access.Actor, method string, params json.RawMessage) (any, error)
}

// Config contains server configuration.
type Config struct {
	Dispatcher    Dispatcher
	Resolver      ActorResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	// DefaultActor is used whenever auth is off. Stdio mode always uses it.
	DefaultActor access.Actor
	Version      string
	Logger       *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "fabtrack",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is local only, so it never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(fixedActorMiddleware(cfg.DefaultActor))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Dispatcher)

	return server
}
