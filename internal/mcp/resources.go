package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	templatesURI     = "qrstudio://templates"
	qrTypesURI       = "qrstudio://qr-types"
	sessionURIPrefix = "qrstudio://session/"
)

func (s *Server) registerResources() {
	// ── qrstudio://templates ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		templatesURI,
		"Saved Templates",
		mcp.WithMIMEType("application/json"),
	), s.handleTemplatesResource)

	// ── qrstudio://qr-types ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		qrTypesURI,
		"QR Content Types",
		mcp.WithMIMEType("application/json"),
	), s.handleQRTypesResource)

	// ── qrstudio://session/{sessionId}/elements ────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			sessionURIPrefix+"{sessionId}/elements",
			"Elements of an Editor Session",
		),
		s.handleSessionElementsResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleTemplatesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	templates, err := s.templates.ListTemplates("")
	if err != nil {
		return nil, err
	}

	type templateSummary struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		PageCount int    `json:"pageCount"`
	}
	summaries := make([]templateSummary, 0, len(templates))
	for _, t := range templates {
		summaries = append(summaries, templateSummary{ID: t.ID, Name: t.Name, PageCount: t.PageCount})
	}
	return jsonContents(templatesURI, summaries)
}

func (s *Server) handleQRTypesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(qrTypesURI, s.gen.Forms())
}

func (s *Server) handleSessionElementsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	sessionID := sessionIDFromURI(uri)
	if sessionID == "" {
		return nil, fmt.Errorf("could not extract sessionId from URI: %s", uri)
	}
	sess, err := s.editors.Session(sessionID)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, sess.Elements())
}

// sessionIDFromURI extracts the ID from "qrstudio://session/{id}/elements".
func sessionIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, sessionURIPrefix)
	if !ok {
		return ""
	}
	id, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "elements" {
		return ""
	}
	return id
}
