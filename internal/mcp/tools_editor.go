package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"qrstudio/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerEditorTools() {
	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a PDF in an editor session, either from a URL or from a saved template (with its overlays). Becomes the active session for later tool calls."),
		mcp.WithString("sourceUrl", mcp.Description("Public URL or local path of the PDF")),
		mcp.WithString("templateId", mcp.Description("Saved template to open instead of sourceUrl")),
		mcp.WithString("sessionId", mcp.Description("Existing session to load into (optional, a new session is opened otherwise)")),
	), s.handleOpenDocument)

	s.mcp.AddTool(mcp.NewTool("list_elements",
		mcp.WithDescription("List the overlay elements of the document, in paint order (lowest z first)"),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
		mcp.WithNumber("page", mcp.Description("Only list elements on this 1-based page (optional)")),
	), s.handleListElements)

	s.mcp.AddTool(mcp.NewTool("add_element",
		mcp.WithDescription(`Add an overlay element to a page. Coordinates are PDF points from the top-left corner. Without x/y the element is placed on a free spot of the page.
Types and props:
- text: {content, fontFamily, fontSize, color, align (left|center|right), bold, italic}
- shape: {shape (rect|ellipse|line|arrow), fill, stroke, strokeWidth}
- image: {source (URL or data URL), fit (contain|cover|stretch)}
- annotation: {annotation (highlight|note|underline|strike), color, note}
- qr: {content, foreground, background, errorLevel (L|M|Q|H)}`),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
		mcp.WithString("type", mcp.Description("Element type: text, shape, image, annotation or qr"), mcp.Required()),
		mcp.WithNumber("page", mcp.Description("1-based page (defaults to 1)")),
		mcp.WithNumber("x", mcp.Description("Left edge in points")),
		mcp.WithNumber("y", mcp.Description("Top edge in points")),
		mcp.WithNumber("width", mcp.Description("Width in points")),
		mcp.WithNumber("height", mcp.Description("Height in points")),
		mcp.WithString("propsJSON", mcp.Description("Type-specific props as JSON; omitted props keep their defaults")),
	), s.handleAddElement)

	s.mcp.AddTool(mcp.NewTool("update_element",
		mcp.WithDescription(`Update an element. patchJSON may carry any of {page, x, y, width, height, rotation, opacity, z, locked, props}; props is merged onto the element's current props.`),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
		mcp.WithString("elementId", mcp.Description("Element ID"), mcp.Required()),
		mcp.WithString("patchJSON", mcp.Description("Partial update as JSON"), mcp.Required()),
	), s.handleUpdateElement)

	s.mcp.AddTool(mcp.NewTool("delete_element",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete an element from the document. Requires user approval."),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
		mcp.WithString("elementId", mcp.Description("Element ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteElement)

	s.mcp.AddTool(mcp.NewTool("select_element",
		mcp.WithDescription("Select elements in the editor, replacing the current selection. An empty list clears it."),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
		mcp.WithString("elementIds", mcp.Description("Comma-separated element IDs, or a JSON array of IDs")),
	), s.handleSelectElement)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last committed change"),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change"),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
	), s.handleRedo)

	s.mcp.AddTool(mcp.NewTool("export_document",
		mcp.WithDescription("Export the document with its overlays. pdf keeps a single document, png/jpg produce one image per page, docx/pptx/xlsx go through office conversion. Returns the URLs of the produced files."),
		mcp.WithString("sessionId", mcp.Description("Session ID (optional, defaults to the active session)")),
		mcp.WithString("format", mcp.Description("Output format: pdf, png, jpg, docx, pptx or xlsx"), mcp.Required()),
		mcp.WithString("pages", mcp.Description("all (default), current, or a range like 2-4")),
		mcp.WithNumber("dpi", mcp.Description("Raster resolution (png/jpg)")),
		mcp.WithNumber("quality", mcp.Description("JPEG quality 1-100")),
	), s.handleExportDocument)
}

func (s *Server) handleOpenDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceURL := req.GetString("sourceUrl", "")
	templateID := req.GetString("templateId", "")
	if sourceURL == "" && templateID == "" {
		return nil, fmt.Errorf("sourceUrl or templateId is required")
	}

	id := req.GetString("sessionId", "")
	if id == "" {
		id = s.editors.OpenSession(ctx)
	} else if _, err := s.editors.Session(id); err != nil {
		return nil, err
	}

	var err error
	if templateID != "" {
		err = s.editors.LoadTemplate(ctx, id, templateID)
	} else {
		err = s.editors.LoadDocument(ctx, id, sourceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	s.setActiveSession(id)

	sess, _ := s.editors.Session(id)
	doc := sess.Document()
	return jsonResult(map[string]any{
		"sessionId":  id,
		"templateId": s.editors.TemplateOf(id),
		"pageCount":  doc.PageCount,
		"pageSizes":  doc.PageSizes,
		"textRuns":   len(doc.TextRuns),
		"elements":   len(sess.Elements()),
	})
}

func (s *Server) handleListElements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, sess, err := s.resolveSession(args)
	if err != nil {
		return nil, err
	}
	if page, ok := numberArg(args, "page"); ok {
		return jsonResult(sess.ElementsForPage(int(page)))
	}
	return jsonResult(sess.Elements())
}

// defaultSizes are the element sizes used when the caller gives none.
var defaultSizes = map[domain.ElementKind][2]float64{
	domain.ElementText:       {160, 24},
	domain.ElementShape:      {120, 80},
	domain.ElementImage:      {160, 120},
	domain.ElementAnnotation: {160, 20},
	domain.ElementQR:         {96, 96},
}

func (s *Server) handleAddElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, sess, err := s.resolveSession(args)
	if err != nil {
		return nil, err
	}
	doc := sess.Document()
	if doc == nil {
		return nil, domain.ErrNoDocument
	}

	kind := domain.ElementKind(req.GetString("type", ""))
	props, err := rawJSONArg(args, "propsJSON")
	if err != nil {
		return nil, err
	}
	body, err := domain.DecodeBody(kind, props)
	if err != nil {
		return nil, err
	}

	page := 1
	if p, ok := numberArg(args, "page"); ok {
		page = int(p)
	}
	if page < 1 || page > doc.PageCount {
		return nil, fmt.Errorf("page %d out of range 1-%d", page, doc.PageCount)
	}

	size := defaultSizes[kind]
	w, h := size[0], size[1]
	if v, ok := numberArg(args, "width"); ok {
		w = v
	}
	if v, ok := numberArg(args, "height"); ok {
		h = v
	}
	x, hasX := numberArg(args, "x")
	y, hasY := numberArg(args, "y")
	if !hasX || !hasY {
		px, py := s.layout.NextPosition(sess.ElementsForPage(page), doc.PageSizes[page-1], w, h)
		if !hasX {
			x = px
		}
		if !hasY {
			y = py
		}
	}

	elementID, err := sess.AddElement(domain.Element{
		Page:    page,
		Rect:    domain.Rect{X: x, Y: y, Width: w, Height: h},
		Opacity: 1,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("add element: %w", err)
	}
	el, _ := sess.Element(elementID)
	return jsonResult(map[string]any{"sessionId": id, "element": el})
}

func (s *Server) handleUpdateElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, sess, err := s.resolveSession(args)
	if err != nil {
		return nil, err
	}
	elementID := req.GetString("elementId", "")
	raw, err := rawJSONArg(args, "patchJSON")
	if err != nil {
		return nil, err
	}
	if elementID == "" || raw == nil {
		return nil, fmt.Errorf("elementId and patchJSON are required")
	}
	var patch domain.ElementPatch
	if err := parseJSON(string(raw), &patch); err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	if err := sess.UpdateElement(elementID, patch); err != nil {
		return nil, fmt.Errorf("update element: %w", err)
	}
	el, err := sess.Element(elementID)
	if err != nil {
		return nil, err
	}
	return jsonResult(el)
}

func (s *Server) handleDeleteElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, sess, err := s.resolveSession(args)
	if err != nil {
		return nil, err
	}
	elementID := req.GetString("elementId", "")
	el, err := sess.Element(elementID)
	if err != nil {
		return nil, err
	}

	meta := fmt.Sprintf(`{"elementIds":[%q]}`, elementID)
	approved, err := s.approval.Request(ctx, "delete_element",
		fmt.Sprintf("Delete %s element on page %d", el.Kind(), el.Page), meta)
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	if err := sess.DeleteElement(elementID); err != nil {
		return nil, fmt.Errorf("delete element: %w", err)
	}
	return textResult(fmt.Sprintf("Deleted element %s", elementID)), nil
}

func (s *Server) handleSelectElement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, sess, err := s.resolveSession(req.GetArguments())
	if err != nil {
		return nil, err
	}
	ids, err := idListArg(req.GetArguments(), "elementIds")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		sess.ClearSelection()
	} else if err := sess.Select(ids...); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return jsonResult(sess.Selection())
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, sess, err := s.resolveSession(req.GetArguments())
	if err != nil {
		return nil, err
	}
	ok, err := sess.Undo()
	if err != nil {
		return nil, err
	}
	if !ok {
		return textResult("Nothing to undo"), nil
	}
	return jsonResult(map[string]any{"elements": len(sess.Elements()), "canUndo": sess.CanUndo(), "canRedo": sess.CanRedo()})
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, sess, err := s.resolveSession(req.GetArguments())
	if err != nil {
		return nil, err
	}
	ok, err := sess.Redo()
	if err != nil {
		return nil, err
	}
	if !ok {
		return textResult("Nothing to redo"), nil
	}
	return jsonResult(map[string]any{"elements": len(sess.Elements()), "canUndo": sess.CanUndo(), "canRedo": sess.CanRedo()})
}

func (s *Server) handleExportDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, sess, err := s.resolveSession(args)
	if err != nil {
		return nil, err
	}
	pages, err := parsePages(req.GetString("pages", ""))
	if err != nil {
		return nil, err
	}
	exportReq := domain.ExportRequest{
		Format: domain.ExportFormat(req.GetString("format", "")),
		Pages:  pages,
	}
	if v, ok := numberArg(args, "dpi"); ok {
		exportReq.DPI = int(v)
	}
	if v, ok := numberArg(args, "quality"); ok {
		exportReq.Quality = int(v)
	}

	result, err := sess.Export(ctx, exportReq)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return jsonResult(result)
}

// parsePages reads "all", "current" or "from-to".
func parsePages(s string) (domain.PageSelection, error) {
	switch s = strings.TrimSpace(s); s {
	case "", "all":
		return domain.PageSelection{Mode: domain.PagesAll}, nil
	case "current":
		return domain.PageSelection{Mode: domain.PagesCurrent}, nil
	}
	var from, to int
	if n, err := fmt.Sscanf(s, "%d-%d", &from, &to); err != nil || n != 2 {
		if _, err := fmt.Sscanf(s, "%d", &from); err != nil {
			return domain.PageSelection{}, fmt.Errorf("pages must be all, current or a range like 2-4, got %q", s)
		}
		to = from
	}
	return domain.PageSelection{Mode: domain.PagesRange, From: from, To: to}, nil
}
