// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note graph to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/importer"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
)

// linkGuideURI is the resource holding LinkGuide.
const linkGuideURI = "notegraph://link-syntax"

// Server wraps the MCP server with note graph tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notegraph",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Recompute wiki-links for notes whose content changed since the last run. "+
			"Returns the run counters."),
		mcp.WithBoolean("full", mcp.Description("Treat every note as changed")),
	), s.reindex)

	s.mcp.AddTool(mcp.NewTool("import_notes",
		mcp.WithDescription("Import vault files into the index. Either pass entries or set scan "+
			"to import every Markdown file in the vault. Links are not updated until reindex runs."),
		mcp.WithArray("entries",
			mcp.Description("Files to import"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":  map[string]any{"type": "string", "description": "Vault-relative .md path"},
					"title": map[string]any{"type": "string", "description": "Optional title override"},
				},
				"required": []string{"path"},
			}),
		),
		mcp.WithBoolean("scan", mcp.Description("Import the whole vault instead of entries")),
		mcp.WithBoolean("prune", mcp.Description("With scan, delete notes whose file is gone")),
	), s.importNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the note with the given title."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Exact note title")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Return every note as a node and every resolved wiki-link as an edge."),
	), s.getGraph)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List indexed notes, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Only notes carrying this tag")),
		mcp.WithString("sort", mcp.Description("Sort field"), mcp.Enum("updated_at", "title", "path")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its outgoing links and backlinks. Pass path or id."),
		mcp.WithString("path", mcp.Description("Vault-relative path (e.g. folder/note.md)")),
		mcp.WithString("id", mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List the newest index runs and the last successful one."),
		mcp.WithNumber("limit", mcp.Description("Number of runs (default 20)")),
	), s.listRuns)

	s.mcp.AddResource(
		mcp.NewResource(linkGuideURI, "Wiki-link Syntax",
			mcp.WithResourceDescription("How notes are titled and how [[wiki-links]] resolve."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkGuide,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) reindex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Reindex(ctx, req.GetBool("full", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

type importArgs struct {
	Entries []importer.Entry `json:"entries"`
	Scan    bool             `json:"scan"`
	Prune   bool             `json:"prune"`
}

func (s *Server) importNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args importArgs
	raw, err := json.Marshal(req.GetArguments())
	if err == nil {
		err = json.Unmarshal(raw, &args)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	var results []models.ImportResult
	switch {
	case args.Scan:
		results, err = s.svc.ScanVault(ctx, args.Prune)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	case len(args.Entries) == 0:
		return mcp.NewToolResultError("entries is required unless scan is set"), nil
	default:
		results = s.svc.Import(ctx, args.Entries)
	}
	return jsonResult(map[string]any{
		"results": results,
		"summary": importer.Summarize(results),
	})
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(bl)
}

func (s *Server) getGraph(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.svc.Graph(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(g)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := models.NoteFilter{
		Tag:    req.GetString("tag", ""),
		Sort:   req.GetString("sort", ""),
		Limit:  req.GetInt("limit", 50),
		Offset: req.GetInt("offset", 0),
	}
	notes, total, err := s.svc.ListNotes(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"notes": notes, "total": total})
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	id := req.GetString("id", "")

	var (
		detail *noteservice.NoteDetail
		err    error
	)
	switch {
	case path != "":
		detail, err = s.svc.GetNote(ctx, path)
	case id != "":
		detail, err = s.svc.GetNoteByID(ctx, id)
	default:
		return mcp.NewToolResultError("path or id is required"), nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		key := path
		if key == "" {
			key = id
		}
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.Runs(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	last, err := s.svc.LastSuccessfulRun(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"runs": runs, "last_success": last})
}

func (s *Server) readLinkGuide(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      linkGuideURI,
			MIMEType: "text/markdown",
			Text:     LinkGuide,
		},
	}, nil
}
