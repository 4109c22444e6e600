package mcpserver

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"qrstudio/internal/editor"
	"qrstudio/internal/qr"
	"qrstudio/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for qrstudio.
// It exposes tools, resources, and prompts so AI agents can edit documents
// and manage campaigns.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue
	layout   *LayoutEngine

	// Services (injected from app layer)
	editors   *service.EditorService
	templates *service.TemplateService
	campaigns *service.CampaignService
	imports   *service.ImportService
	gen       *qr.Generator

	// Session used when a tool call names none (set by open_document)
	mu              sync.Mutex
	activeSessionID string
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Emitter    EventEmitter
	Editors    *service.EditorService
	Templates  *service.TemplateService
	Campaigns  *service.CampaignService
	Imports    *service.ImportService
	Generator  *qr.Generator
	ApprovalDB *sql.DB // When set, use SQLite-based approval (standalone mode)
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	approval := NewApprovalQueue(deps.Emitter)
	if deps.ApprovalDB != nil {
		approval.SetDB(deps.ApprovalDB)
	}
	gen := deps.Generator
	if gen == nil {
		gen = qr.NewGenerator(nil)
	}
	s := &Server{
		emitter:   deps.Emitter,
		approval:  approval,
		layout:    NewLayoutEngine(),
		editors:   deps.Editors,
		templates: deps.Templates,
		campaigns: deps.Campaigns,
		imports:   deps.Imports,
		gen:       gen,
	}

	s.mcp = server.NewMCPServer(
		"qrstudio-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerEditorTools()
	s.registerQRTools()
	s.registerCampaignTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) {
	s.approval.Approve(actionID)
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	s.approval.Reject(actionID)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }

func (s *Server) setActiveSession(id string) {
	s.mu.Lock()
	s.activeSessionID = id
	s.mu.Unlock()
}

// resolveSession returns the session named in the tool args or falls back to
// the active one.
func (s *Server) resolveSession(args map[string]any) (string, *editor.Session, error) {
	id, _ := args["sessionId"].(string)
	if id == "" {
		s.mu.Lock()
		id = s.activeSessionID
		s.mu.Unlock()
	}
	if id == "" {
		return "", nil, fmt.Errorf("no sessionId provided and no document open (use open_document first)")
	}
	sess, err := s.editors.Session(id)
	if err != nil {
		return "", nil, err
	}
	return id, sess, nil
}
