package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("qr_overlay",
		mcp.WithPromptDescription("Place a QR code on a document page next to its existing content"),
		mcp.WithArgument("sourceUrl",
			mcp.ArgumentDescription("URL of the PDF to edit"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("content",
			mcp.ArgumentDescription("What the code should encode, e.g. a link or contact"),
			mcp.RequiredArgument(),
		),
	), s.handleQROverlayPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("campaign_import",
		mcp.WithPromptDescription("Fill a campaign with rows from a data source and generate its codes"),
		mcp.WithArgument("campaignId",
			mcp.ArgumentDescription("Target campaign ID"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Import source type (e.g. csv_file, database)"),
			mcp.RequiredArgument(),
		),
	), s.handleCampaignImportPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleQROverlayPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceURL := req.Params.Arguments["sourceUrl"]
	content := req.Params.Arguments["content"]
	return userPrompt(
		fmt.Sprintf("Add a QR code to %s", sourceURL),
		fmt.Sprintf(`Add a QR code encoding "%s" to the document at %s. Follow these steps:

1. Use open_document with sourceUrl "%s"
2. Use list_qr_types to pick the content type that matches and the fields it needs
3. Use list_elements with page 1 to see what is already placed
4. Use generate_qr with page 1 so the code is placed in free space automatically
5. Add a short text element under the code describing what it opens
6. Use export_document to produce a PDF and report its URL

Keep the code at least 96pt wide so it scans reliably when printed.`, content, sourceURL, sourceURL),
	), nil
}

func (s *Server) handleCampaignImportPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	campaignID := req.Params.Arguments["campaignId"]
	sourceType := req.Params.Arguments["sourceType"]
	return userPrompt(
		fmt.Sprintf("Import %s rows into campaign %s", sourceType, campaignID),
		fmt.Sprintf(`Import rows into campaign %s from a %s source. Follow these steps:

1. Use list_campaigns to read the campaign's QR type
2. Use list_qr_types to see the field keys that type expects
3. Use list_import_sources to find the configuration schema of "%s"
4. Use preview_import_source to check the columns the source yields
5. Use import_campaign_rows with rename transforms mapping source columns onto the field keys
6. Use list_campaign_rows to confirm each row has a payload, then generate_campaign_codes

Prefer append mode unless the user asked to replace the existing rows.`, campaignID, sourceType, sourceType),
	), nil
}
