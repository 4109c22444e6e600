package mcpserver

import (
	"context"
	"fmt"

	"qrstudio/internal/domain"
	"qrstudio/internal/qr"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerQRTools() {
	s.mcp.AddTool(mcp.NewTool("list_qr_types",
		mcp.WithDescription("List the QR content types with the fields each one takes"),
	), s.handleListQRTypes)

	s.mcp.AddTool(mcp.NewTool("generate_qr",
		mcp.WithDescription("Encode typed content as a QR code. Returns the encoded payload and a PNG data URL. With a page number the code is also placed on that page of the active document."),
		mcp.WithString("qrType", mcp.Description("Content type (use list_qr_types to see available types)"), mcp.Required()),
		mcp.WithString("contentJSON", mcp.Description(`Content fields as JSON, e.g. {"url":"https://example.com"} or {"ssid":"Cafe","password":"secret"}`), mcp.Required()),
		mcp.WithNumber("size", mcp.Description("Image size in pixels (default 256)")),
		mcp.WithString("foreground", mcp.Description("Module color, #rrggbb")),
		mcp.WithString("background", mcp.Description("Background color, #rrggbb")),
		mcp.WithString("level", mcp.Description("Error correction level: L, M, Q or H")),
		mcp.WithString("sessionId", mcp.Description("Session to place the code in (optional, defaults to the active session)")),
		mcp.WithNumber("page", mcp.Description("Place the code on this 1-based page (optional)")),
	), s.handleGenerateQR)
}

func (s *Server) handleListQRTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.gen.Forms())
}

func (s *Server) handleGenerateQR(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, err := rawJSONArg(args, "contentJSON")
	if err != nil {
		return nil, err
	}
	opts := qr.Options{
		Foreground: req.GetString("foreground", ""),
		Background: req.GetString("background", ""),
		Level:      req.GetString("level", ""),
	}
	if v, ok := numberArg(args, "size"); ok {
		opts.Size = int(v)
	}

	generated, err := s.gen.GenerateJSON(domain.QRType(req.GetString("qrType", "")), raw, opts)
	if err != nil {
		return nil, fmt.Errorf("generate qr: %w", err)
	}

	result := map[string]any{
		"type":    generated.Type,
		"payload": generated.Payload,
		"dataUrl": generated.DataURL,
	}

	if page, ok := numberArg(args, "page"); ok {
		_, sess, err := s.resolveSession(args)
		if err != nil {
			return nil, err
		}
		doc := sess.Document()
		if doc == nil {
			return nil, domain.ErrNoDocument
		}
		p := int(page)
		if p < 1 || p > doc.PageCount {
			return nil, fmt.Errorf("page %d out of range 1-%d", p, doc.PageCount)
		}
		size := defaultSizes[domain.ElementQR]
		x, y := s.layout.NextPosition(sess.ElementsForPage(p), doc.PageSizes[p-1], size[0], size[1])
		id, err := sess.AddElement(domain.Element{
			Page:    p,
			Rect:    domain.Rect{X: x, Y: y, Width: size[0], Height: size[1]},
			Opacity: 1,
			Body:    qrBody(generated.Payload, opts),
		})
		if err != nil {
			return nil, fmt.Errorf("place qr: %w", err)
		}
		result["elementId"] = id
	}
	return jsonResult(result)
}

// qrBody is the element form of a generated code. Unset colors and level
// keep the element defaults.
func qrBody(payload string, o qr.Options) domain.QRBody {
	b := domain.QRBody{Content: payload, Foreground: "#000000", Background: "#FFFFFF", ErrorLevel: "M"}
	if o.Foreground != "" {
		b.Foreground = o.Foreground
	}
	if o.Background != "" {
		b.Background = o.Background
	}
	if o.Level != "" {
		b.ErrorLevel = o.Level
	}
	return b
}
