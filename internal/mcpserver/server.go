// Package mcpserver exposes the live concept map to MCP clients over
// streamable HTTP, so that agents can read the tree, toggle concepts and
// feed transcript text the same way the browser does.
package mcpserver

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/thoughtmap/internal/app"
)

// Version is reported in the MCP initialize handshake.
const Version = "0.1.0"

// Server registers the thoughtmap tools on an MCP server bound to an [app.App].
type Server struct {
	app *app.App
	mcp *mcp.Server
}

// New creates a Server with every tool registered.
func New(a *app.App) *Server {
	s := &Server{
		app: a,
		mcp: mcp.NewServer(&mcp.Implementation{Name: "thoughtmap", Version: Version}, nil),
	}
	s.registerTreeTools()
	s.registerTranscriptTools()
	return s
}

// MCP returns the underlying server, for in-process transports.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Handler serves the tools over the streamable HTTP transport. Every request
// shares one server, so all sessions see the same concept map.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}
