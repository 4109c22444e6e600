package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"qrstudio/internal/etl"
	"qrstudio/internal/qr"
	"qrstudio/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerCampaignTools() {
	s.mcp.AddTool(mcp.NewTool("list_campaigns",
		mcp.WithDescription("List campaigns with their QR type and status"),
		mcp.WithString("userId", mcp.Description("Only campaigns of this user (optional)")),
	), s.handleListCampaigns)

	s.mcp.AddTool(mcp.NewTool("list_campaign_rows",
		mcp.WithDescription("List the data rows of a campaign with the QR payload each one encodes"),
		mcp.WithString("campaignId", mcp.Description("Campaign ID"), mcp.Required()),
	), s.handleListCampaignRows)

	s.mcp.AddTool(mcp.NewTool("list_import_sources",
		mcp.WithDescription("List the source types campaign rows can be imported from, with their configuration schemas"),
	), s.handleListImportSources)

	s.mcp.AddTool(mcp.NewTool("preview_import_source",
		mcp.WithDescription("Preview the first rows of an import source without writing anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
	), s.handlePreviewImportSource)

	s.mcp.AddTool(mcp.NewTool("import_campaign_rows",
		mcp.WithDescription(`🛑 DESTRUCTIVE: Import rows into a campaign. Either run an existing job (jobId) or describe a source, which creates a manual import job first. In replace mode the campaign's current rows are deleted. Requires user approval.
Transforms are applied in order between source and campaign; each has {type, config}:
- filter: {field, op (eq|neq|gt|lt|contains), value}
- rename: {mapping: {oldName: newName}}
- select: {fields: ["col1","col2"]}
- compute: {columns: [{name, expression}]}, use {field} refs
- sort: {field, direction (asc|desc)}
- limit: {count}
- type_cast: {field, castType (number|string|bool|date|datetime)}
- string: {field, op (upper|lower|trim|replace|concat|split|substring), ...}
- default_value: {field, defaultValue}
Rename source columns to the QR type's field keys (see list_qr_types) so each row yields a payload.`),
		mcp.WithString("campaignId", mcp.Description("Target campaign ID")),
		mcp.WithString("jobId", mcp.Description("Existing import job to run")),
		mcp.WithString("name", mcp.Description("Job name (new jobs)")),
		mcp.WithString("sourceType", mcp.Description("Source type (new jobs)")),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON (new jobs)")),
		mcp.WithString("transformsJSON", mcp.Description("JSON array of transforms (new jobs, optional)")),
		mcp.WithString("mode", mcp.Description("replace (default) or append")),
		mcp.WithString("dedupeKey", mcp.Description("Column name for deduplication (optional)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleImportCampaignRows)

	s.mcp.AddTool(mcp.NewTool("generate_campaign_codes",
		mcp.WithDescription("Render and store a QR image for every row of a campaign. Returns how many codes were generated."),
		mcp.WithString("campaignId", mcp.Description("Campaign ID"), mcp.Required()),
		mcp.WithNumber("size", mcp.Description("Image size in pixels (default 256)")),
		mcp.WithString("foreground", mcp.Description("Module color, #rrggbb")),
		mcp.WithString("background", mcp.Description("Background color, #rrggbb")),
	), s.handleGenerateCampaignCodes)
}

func (s *Server) handleListCampaigns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	campaigns, err := s.campaigns.ListCampaigns(req.GetString("userId", ""))
	if err != nil {
		return nil, err
	}

	type campaignSummary struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		QRType string `json:"qrType"`
		Status string `json:"status"`
		Rows   int    `json:"rows"`
	}
	summaries := make([]campaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		rows, _ := s.campaigns.ListRows(c.ID)
		summaries = append(summaries, campaignSummary{
			ID: c.ID, Name: c.Name, QRType: string(c.QRType), Status: string(c.Status), Rows: len(rows),
		})
	}
	return jsonResult(summaries)
}

func (s *Server) handleListCampaignRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	campaignID := req.GetString("campaignId", "")
	if campaignID == "" {
		return nil, fmt.Errorf("campaignId is required")
	}
	rows, err := s.campaigns.ListRows(campaignID)
	if err != nil {
		return nil, err
	}
	return jsonResult(rows)
}

func (s *Server) handleListImportSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.imports.ListSources())
}

func (s *Server) handlePreviewImportSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	raw, err := rawJSONArg(req.GetArguments(), "sourceConfigJSON")
	if err != nil {
		return nil, err
	}
	if sourceType == "" || raw == nil {
		return nil, fmt.Errorf("sourceType and sourceConfigJSON are required")
	}
	preview, err := s.imports.PreviewSource(ctx, sourceType, string(raw))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleImportCampaignRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	job, created, err := s.importJobFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetCampaign(job.CampaignID)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("Import rows into campaign %q from %s", campaign.Name, job.SourceType)
	if job.Mode == etl.ModeReplace {
		desc += " (replaces existing rows)"
	}
	meta, _ := json.Marshal(map[string]string{"campaignId": job.CampaignID, "jobId": job.ID})
	approved, err := s.approval.Request(ctx, "import_campaign_rows", desc, string(meta))
	if err != nil || !approved {
		if created {
			if err := s.imports.DeleteJob(ctx, job.ID); err != nil {
				return nil, fmt.Errorf("discard import job: %w", err)
			}
		}
		return textResult("Action rejected by user"), nil
	}

	result, err := s.imports.RunJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("run import: %w", err)
	}
	return jsonResult(map[string]any{"job": job, "result": result})
}

// importJobFromArgs loads the job named by jobId, or creates a manual job
// from the source arguments. created reports the latter.
func (s *Server) importJobFromArgs(ctx context.Context, args map[string]any) (job *etl.ImportJob, created bool, err error) {
	if jobID, _ := args["jobId"].(string); jobID != "" {
		job, err = s.imports.GetJob(jobID)
		return job, false, err
	}

	campaignID, _ := args["campaignId"].(string)
	sourceType, _ := args["sourceType"].(string)
	if campaignID == "" || sourceType == "" {
		return nil, false, fmt.Errorf("jobId, or campaignId and sourceType, are required")
	}
	in := service.ImportJobInput{
		CampaignID:  campaignID,
		SourceType:  sourceType,
		TriggerType: etl.TriggerManual,
		Enabled:     true,
	}
	in.Name, _ = args["name"].(string)
	if in.Name == "" {
		in.Name = "Agent import (" + sourceType + ")"
	}
	in.Mode, _ = args["mode"].(string)
	in.DedupeKey, _ = args["dedupeKey"].(string)

	if raw, err := rawJSONArg(args, "sourceConfigJSON"); err != nil {
		return nil, false, err
	} else if raw != nil {
		if err := json.Unmarshal(raw, &in.SourceConfig); err != nil {
			return nil, false, fmt.Errorf("parse sourceConfig: %w", err)
		}
	}
	if raw, err := rawJSONArg(args, "transformsJSON"); err != nil {
		return nil, false, err
	} else if raw != nil {
		if err := json.Unmarshal(raw, &in.Transforms); err != nil {
			return nil, false, fmt.Errorf("parse transforms: %w", err)
		}
	}

	job, err = s.imports.CreateJob(ctx, in)
	if err != nil {
		return nil, false, fmt.Errorf("create import job: %w", err)
	}
	return job, true, nil
}

func (s *Server) handleGenerateCampaignCodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	campaignID := req.GetString("campaignId", "")
	if campaignID == "" {
		return nil, fmt.Errorf("campaignId is required")
	}
	opts := qr.Options{
		Foreground: req.GetString("foreground", ""),
		Background: req.GetString("background", ""),
	}
	if v, ok := numberArg(args, "size"); ok {
		opts.Size = int(v)
	}
	res, err := s.campaigns.GenerateRowCodes(ctx, campaignID, opts)
	if err != nil {
		return nil, fmt.Errorf("generate codes: %w", err)
	}
	return jsonResult(res)
}
