// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes jotter tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/jotter/internal/noteservice"
	"github.com/starford/jotter/internal/query"
	"github.com/starford/jotter/internal/transfer"
)

const formatURI = "jotter://note-format"

// Server wraps the MCP server with jotter tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all jotter tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Jotter",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes of one view, pinned first then most recently updated. "+
			"Returns the notes and the count of every view."),
		mcp.WithString("filter", mcp.Enum("all", "pinned", "archived"),
			mcp.Description("View to list (default all: every note that is not archived)")),
		mcp.WithString("query", mcp.Description("Optional case-insensitive text to find in title or content")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read a single note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Title and content must not be blank. "+
			"Read the jotter://note-format resource for the record rules."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body")),
		mcp.WithBoolean("pinned", mcp.Description("Pin the note")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the title, content and pinned flag of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New body")),
		mcp.WithBoolean("pinned", mcp.Description("Pinned flag after the update")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Permanently delete a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("toggle_pin",
		mcp.WithDescription("Flip the pinned flag of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.togglePin)

	s.mcp.AddTool(mcp.NewTool("toggle_archive",
		mcp.WithDescription("Flip the archived flag of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.toggleArchive)

	s.mcp.AddTool(mcp.NewTool("export_notes",
		mcp.WithDescription("Export every note as a pretty-printed JSON array."),
	), s.exportNotes)

	s.mcp.AddTool(mcp.NewTool("import_notes",
		mcp.WithDescription("Import notes from a JSON array of note records. Invalid records "+
			"are skipped and reported; colliding ids get fresh ids."),
		mcp.WithString("json", mcp.Required(), mcp.Description("JSON array of note records")),
	), s.importNotes)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format Contract",
			mcp.WithResourceDescription("Note record fields and backup file rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := query.ParseMode(req.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, counts := s.svc.List(ctx, mode, req.GetString("query", ""))
	return jsonResult(map[string]any{
		"notes":  notes,
		"counts": counts,
	})
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n)
}

func noteInput(req mcp.CallToolRequest) (noteservice.NoteInput, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return noteservice.NoteInput{}, err
	}
	content, err := req.RequireString("content")
	if err != nil {
		return noteservice.NoteInput{}, err
	}
	return noteservice.NoteInput{
		Title:   title,
		Content: content,
		Pinned:  req.GetBool("pinned", false),
	}, nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := noteInput(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Create(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n)
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := noteInput(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Update(ctx, id, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) togglePin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.TogglePin(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n)
}

func (s *Server) toggleArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.ToggleArchive(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n)
}

func (s *Server) exportNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, data, err := s.svc.Export(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) importNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := req.RequireString("json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(payload) > transfer.MaxFileSize {
		return mcp.NewToolResultError(transfer.ErrTooLarge.Error()), nil
	}
	report, err := s.svc.ImportData([]byte(payload))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
