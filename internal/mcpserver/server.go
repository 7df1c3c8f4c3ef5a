// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nbsync pages to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/pageservice"
)

// DirectiveSyntaxURI is the resource URI of DirectiveSyntax.
const DirectiveSyntaxURI = "nbsync://directive-syntax"

// searchLimit caps the results of search_pages.
const searchLimit = 20

// Server wraps the MCP server with nbsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates a new MCP server with all nbsync tools registered.
func New(svc *pageservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nbsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_page",
		mcp.WithDescription("Convert a documentation page again, executing the notebooks its directives flag with exec. "+
			"Returns the converted Markdown."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the page (e.g. guide/plots.md)")),
	), s.convertPage)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the converted Markdown of a page, converting it first if it was never built."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the page")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List converted pages, optionally under a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder prefix (empty for all)")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through converted pages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("get_figure",
		mcp.WithDescription("Return a figure produced by a cell output."),
		mcp.WithString("src", mcp.Required(), mcp.Description("Figure file name as referenced by the page")),
	), s.getFigure)

	s.mcp.AddTool(mcp.NewTool("get_directive_syntax",
		mcp.WithDescription("Returns the syntax of notebook directives in pages. "+
			"Call this before writing directives."),
	), s.getDirectiveSyntax)

	s.mcp.AddResource(
		mcp.NewResource(DirectiveSyntaxURI, "Directive Syntax",
			mcp.WithResourceDescription("How pages reference notebook cells."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDirectiveSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) convertPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Rebuild(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(p.Markdown), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.GetPage(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(p.Markdown), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(req.GetString("folder", ""), "/")

	pages, err := s.svc.ListPages(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, p := range pages {
		if folder == "" || strings.HasPrefix(p.Path, folder+"/") {
			paths = append(paths, p.Path)
		}
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, searchLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getFigure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("src")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.GetFigure(ctx, src)
	if err != nil {
		return toolError(src, err), nil
	}
	if !strings.HasPrefix(f.Mime, "image/") {
		return mcp.NewToolResultError(fmt.Sprintf("not an image: %s (%s)", src, f.Mime)), nil
	}
	return mcp.NewToolResultImage(f.Src, base64.StdEncoding.EncodeToString(f.Content), f.Mime), nil
}

func (s *Server) getDirectiveSyntax(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DirectiveSyntax), nil
}

func (s *Server) readDirectiveSyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DirectiveSyntaxURI,
			MIMEType: "text/markdown",
			Text:     DirectiveSyntax,
		},
	}, nil
}

func toolError(name string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name))
	}
	return mcp.NewToolResultError(err.Error())
}
