package etl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Trigger types of an import job.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// ImportJob describes how rows of a campaign are fetched: a source, a
// transform chain and a write mode, run on demand or by a trigger.
type ImportJob struct {
	ID            string            `json:"id"`
	CampaignID    string            `json:"campaignId"`
	Name          string            `json:"name"`
	SourceType    string            `json:"sourceType"`
	SourceCfg     SourceConfig      `json:"sourceConfig"`
	Transforms    []TransformConfig `json:"transforms,omitempty"`
	Mode          WriteMode         `json:"mode"`
	DedupeKey     string            `json:"dedupeKey,omitempty"`
	TriggerType   string            `json:"triggerType"`
	TriggerConfig string            `json:"triggerConfig"` // cron expression or watched path
	Enabled       bool              `json:"enabled"`
	LastRunAt     time.Time         `json:"lastRunAt"`
	LastStatus    string            `json:"lastStatus"` // success | error | running | ""
	LastError     string            `json:"lastError"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// TransformConfig is the stored form of one transform step.
type TransformConfig struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

type ImportResult struct {
	JobID       string        `json:"jobId"`
	CampaignID  string        `json:"campaignId"`
	Status      string        `json:"status"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	RowsSkipped int           `json:"rowsSkipped"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ImportRunLog is one entry of a job's run history.
type ImportRunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs import jobs against the registered sources.
type Engine struct {
	Dest Destination
}

// Run reads, transforms and writes the rows of one job.
func (e *Engine) Run(ctx context.Context, job *ImportJob) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{JobID: job.ID, CampaignID: job.CampaignID}
	fail := func(stage string, err error) (*ImportResult, error) {
		result.Status = "error"
		result.Error = fmt.Sprintf("%s: %v", stage, err)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%s: %w", stage, err)
	}

	if job.CampaignID == "" {
		return fail("resolve target", fmt.Errorf("job %s has no campaign", job.ID))
	}
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail("resolve source", err)
	}
	if err := ValidateConfig(source.Spec(), job.SourceCfg); err != nil {
		return fail("validate source", err)
	}
	schema, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail("discover", err)
	}

	transformers, err := BuildTransformers(job.Transforms, job.DedupeKey)
	if err != nil {
		return fail("build transforms", err)
	}

	recCh, errCh := source.Read(ctx, job.SourceCfg)
	var records []Record
	for rec := range recCh {
		result.RowsRead++
		if out, keep := ApplyTransformers(rec.Clone(), transformers); keep {
			records = append(records, out)
		}
	}
	if err := <-errCh; err != nil {
		return fail("read", err)
	}
	records = ApplyBatchSort(records, transformers)

	written, err := e.Dest.Write(ctx, job.CampaignID, deriveSchema(records, schema), records, job.Mode)
	if err != nil {
		result.RowsWritten = written
		return fail("write", err)
	}

	result.Status = "success"
	result.RowsWritten = written
	result.RowsSkipped = result.RowsRead - written
	result.Duration = time.Since(start)
	return result, nil
}

// Preview reads at most maxRows untransformed records.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateConfig(source.Spec(), cfg); err != nil {
		return nil, nil, err
	}
	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			cancel()
			break
		}
	}
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return records, schema, err
	}
	return records, schema, nil
}

// deriveSchema lists the columns actually present after transforms, keeping
// source type hints and source column order where possible.
func deriveSchema(records []Record, source *Schema) *Schema {
	if len(records) == 0 {
		return source
	}
	types := make(map[string]string)
	seen := make(map[string]bool)
	var names []string
	if source != nil {
		for _, f := range source.Fields {
			types[f.Name] = f.Type
		}
		for _, f := range source.Fields {
			if _, ok := records[0].Data[f.Name]; ok {
				seen[f.Name] = true
				names = append(names, f.Name)
			}
		}
	}
	for _, r := range records {
		for _, k := range sortedKeys(r.Data) {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		t := types[n]
		if t == "" {
			t = "text"
		}
		fields = append(fields, Field{Name: n, Type: t})
	}
	return &Schema{Fields: fields}
}
