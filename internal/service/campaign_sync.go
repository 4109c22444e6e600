package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
	"qrstudio/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Import Service: campaign row imports, schedules and file watches
// ─────────────────────────────────────────────────────────────

// EventCampaignSync is emitted after every import run.
const EventCampaignSync = "campaign:sync"

// SyncEvent is the payload of campaign:sync.
type SyncEvent struct {
	JobID       string `json:"jobId"`
	CampaignID  string `json:"campaignId"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	RowsRead    int    `json:"rowsRead"`
	RowsWritten int    `json:"rowsWritten"`
	Error       string `json:"error,omitempty"`
}

const (
	importTimeout    = 5 * time.Minute
	previewTimeout   = 30 * time.Second
	discoverTimeout  = 15 * time.Second
	watchDebounce    = 500 * time.Millisecond
	runLogPageSize   = 50
	previewRowsLimit = 10
)

type maintenanceTask struct {
	spec string
	name string
	fn   func()
}

// ImportService manages import jobs of campaigns and runs them on demand,
// on a cron schedule or when a watched file changes.
type ImportService struct {
	store     *storage.ImportJobStore
	campaigns domain.CampaignStore
	payload   etl.PayloadFunc
	emitter   EventEmitter
	running   importGuard

	mu          sync.Mutex
	maintenance []maintenanceTask
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

func NewImportService(
	store *storage.ImportJobStore,
	campaigns domain.CampaignStore,
	payload etl.PayloadFunc,
	emitter EventEmitter,
) *ImportService {
	return &ImportService{store: store, campaigns: campaigns, payload: payload, emitter: emitter}
}

func (s *ImportService) engine() *etl.Engine {
	return &etl.Engine{Dest: &etl.CampaignRowWriter{Store: s.campaigns, Payload: s.payload}}
}

// ── Job CRUD ───────────────────────────────────────────────

// ImportJobInput is the DTO for creating and updating import jobs.
type ImportJobInput struct {
	CampaignID    string                `json:"campaignId"`
	Name          string                `json:"name"`
	SourceType    string                `json:"sourceType"`
	SourceConfig  map[string]any        `json:"sourceConfig"`
	Transforms    []etl.TransformConfig `json:"transforms"`
	Mode          string                `json:"mode"`
	DedupeKey     string                `json:"dedupeKey"`
	TriggerType   string                `json:"triggerType"`
	TriggerConfig string                `json:"triggerConfig"`
	Enabled       bool                  `json:"enabled"`
}

// normalize checks the input and fills defaults. A file watch without a
// path watches the source file itself.
func (in *ImportJobInput) normalize() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: job name is required", domain.ErrValidation)
	}
	if in.CampaignID == "" {
		return fmt.Errorf("%w: job needs a campaign", domain.ErrValidation)
	}
	source, err := etl.GetSource(in.SourceType)
	if err != nil {
		return err
	}
	if err := etl.ValidateConfig(source.Spec(), in.SourceConfig); err != nil {
		return err
	}
	if _, err := etl.BuildTransformers(in.Transforms, in.DedupeKey); err != nil {
		return err
	}
	switch etl.WriteMode(in.Mode) {
	case "":
		in.Mode = string(etl.ModeReplace)
	case etl.ModeReplace, etl.ModeAppend:
	default:
		return fmt.Errorf("%w: unknown write mode %q", domain.ErrValidation, in.Mode)
	}
	switch in.TriggerType {
	case "":
		in.TriggerType = etl.TriggerManual
	case etl.TriggerManual:
	case etl.TriggerSchedule:
		if _, err := cron.ParseStandard(in.TriggerConfig); err != nil {
			return fmt.Errorf("%w: invalid schedule %q: %v", domain.ErrValidation, in.TriggerConfig, err)
		}
	case etl.TriggerFileWatch:
		if in.TriggerConfig == "" {
			in.TriggerConfig = etl.SourceConfig(in.SourceConfig).String("filePath")
		}
		if in.TriggerConfig == "" {
			return fmt.Errorf("%w: file watch needs a path", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown trigger %q", domain.ErrValidation, in.TriggerType)
	}
	return nil
}

func (s *ImportService) CreateJob(ctx context.Context, in ImportJobInput) (*etl.ImportJob, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.campaigns.GetCampaign(in.CampaignID); err != nil {
		return nil, fmt.Errorf("import job campaign: %w", err)
	}
	job := &etl.ImportJob{
		CampaignID:    in.CampaignID,
		Name:          strings.TrimSpace(in.Name),
		SourceType:    in.SourceType,
		SourceCfg:     in.SourceConfig,
		Transforms:    in.Transforms,
		Mode:          etl.WriteMode(in.Mode),
		DedupeKey:     in.DedupeKey,
		TriggerType:   in.TriggerType,
		TriggerConfig: in.TriggerConfig,
		Enabled:       in.Enabled,
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ImportService) GetJob(id string) (*etl.ImportJob, error) {
	return s.store.GetJob(id)
}

// ListJobs lists the jobs of a campaign, or all jobs for an empty id.
func (s *ImportService) ListJobs(campaignID string) ([]etl.ImportJob, error) {
	return s.store.ListJobs(campaignID)
}

func (s *ImportService) UpdateJob(ctx context.Context, id string, in ImportJobInput) (*etl.ImportJob, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	job.Name = strings.TrimSpace(in.Name)
	job.SourceType = in.SourceType
	job.SourceCfg = in.SourceConfig
	job.Transforms = in.Transforms
	job.Mode = etl.WriteMode(in.Mode)
	job.DedupeKey = in.DedupeKey
	job.TriggerType = in.TriggerType
	job.TriggerConfig = in.TriggerConfig
	job.Enabled = in.Enabled
	if err := s.store.UpdateJob(job); err != nil {
		return nil, err
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *ImportService) DeleteJob(ctx context.Context, id string) error {
	if err := s.store.DeleteJob(id); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunJob imports the job's rows into its campaign and emits campaign:sync.
func (s *ImportService) RunJob(ctx context.Context, id string) (*etl.ImportResult, error) {
	return s.runJob(ctx, id, etl.TriggerManual)
}

func (s *ImportService) runJob(ctx context.Context, id, trigger string) (*etl.ImportResult, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	release, ok := s.running.Acquire(jobKey(id), campaignKey(job.CampaignID))
	if !ok {
		return nil, fmt.Errorf("%w: an import into campaign %s is already running", domain.ErrValidation, job.CampaignID)
	}
	defer release()
	if err := s.store.UpdateJobStatus(id, "running", ""); err != nil {
		log.Printf("[Campaign] mark job %s running: %v", id, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, importTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine().Run(runCtx, job)

	runLog := &etl.ImportRunLog{
		JobID:       id,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
		Error:       result.Error,
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		log.Printf("[Campaign] record run of job %s: %v", id, err)
	}
	if err := s.store.UpdateJobStatus(id, result.Status, result.Error); err != nil {
		log.Printf("[Campaign] update status of job %s: %v", id, err)
	}

	if runErr != nil {
		log.Printf("[Campaign] import %s (%s) failed: %v", job.Name, trigger, runErr)
	} else {
		log.Printf("[Campaign] import %s (%s): read %d, wrote %d in %s",
			job.Name, trigger, result.RowsRead, result.RowsWritten, result.Duration.Round(time.Millisecond))
	}
	if s.emitter != nil {
		s.emitter.Emit(ctx, EventCampaignSync, SyncEvent{
			JobID:       id,
			CampaignID:  job.CampaignID,
			Trigger:     trigger,
			Status:      result.Status,
			RowsRead:    result.RowsRead,
			RowsWritten: result.RowsWritten,
			Error:       result.Error,
		})
	}
	return result, runErr
}

// ListSources returns the available import source descriptors.
func (s *ImportService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the newest runs of a job.
func (s *ImportService) ListRunLogs(jobID string) ([]etl.ImportRunLog, error) {
	return s.store.ListRunLogs(jobID, runLogPageSize)
}

// ── Preview / Schema Discovery ─────────────────────────────

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Schema  *etl.Schema  `json:"schema"`
	Records []etl.Record `json:"records"`
}

func parseSourceConfig(cfgJSON string) (etl.SourceConfig, error) {
	var cfg etl.SourceConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse source config: %v", domain.ErrValidation, err)
	}
	return cfg, nil
}

// PreviewSource reads the first rows of a source without writing anything.
func (s *ImportService) PreviewSource(ctx context.Context, sourceType, cfgJSON string) (*PreviewResult, error) {
	cfg, err := parseSourceConfig(cfgJSON)
	if err != nil {
		return nil, err
	}
	previewCtx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	records, schema, err := s.engine().Preview(previewCtx, sourceType, cfg, previewRowsLimit)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

func (s *ImportService) DiscoverSchema(ctx context.Context, sourceType, cfgJSON string) (*etl.Schema, error) {
	cfg, err := parseSourceConfig(cfgJSON)
	if err != nil {
		return nil, err
	}
	source, err := etl.GetSource(sourceType)
	if err != nil {
		return nil, err
	}
	discCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()
	return source.Discover(discCtx, cfg)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// AddMaintenance registers a housekeeping task run on a cron spec alongside
// scheduled imports. It takes effect on the next RestartWatchers.
func (s *ImportService) AddMaintenance(spec, name string, fn func()) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%w: maintenance %s: %v", domain.ErrValidation, name, err)
	}
	s.mu.Lock()
	s.maintenance = append(s.maintenance, maintenanceTask{spec: spec, name: name, fn: fn})
	s.mu.Unlock()
	return nil
}

// RestartWatchers tears down the current watcher and cron and rebuilds them
// from the enabled jobs.
func (s *ImportService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	jobs, err := s.store.ListTriggeredJobs()
	if err != nil {
		log.Printf("[Campaign] watcher: list jobs: %v", err)
		return
	}

	// ── Cron ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != etl.TriggerSchedule || j.TriggerConfig == "" {
			continue
		}
		jid, name := j.ID, j.Name
		if _, err := c.AddFunc(j.TriggerConfig, func() {
			if _, err := s.runJob(ctx, jid, etl.TriggerSchedule); err != nil {
				log.Printf("[Campaign] scheduled import %s failed: %v", name, err)
			}
		}); err != nil {
			log.Printf("[Campaign] invalid schedule %q for job %s: %v", j.TriggerConfig, name, err)
			continue
		}
		scheduled++
	}
	for _, m := range s.maintenance {
		m := m
		if _, err := c.AddFunc(m.spec, func() {
			log.Printf("[Campaign] maintenance: %s", m.name)
			m.fn()
		}); err != nil {
			log.Printf("[Campaign] maintenance %s: %v", m.name, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		log.Printf("[Campaign] cron: %d entr(ies) scheduled", scheduled)
	}

	// ── File watchers ──
	pathToJobs := make(map[string][]string)
	for _, j := range jobs {
		if j.TriggerType != etl.TriggerFileWatch || j.TriggerConfig == "" {
			continue
		}
		abs, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			log.Printf("[Campaign] watcher: bad path %q: %v", j.TriggerConfig, err)
			continue
		}
		pathToJobs[abs] = append(pathToJobs[abs], j.ID)
	}
	if len(pathToJobs) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Campaign] watcher: create: %v", err)
		return
	}
	s.watcher = watcher

	// Watch directories: editors replace files by rename, which drops a
	// watch set on the file itself.
	watchedDirs := make(map[string]bool)
	for p := range pathToJobs {
		dir := filepath.Dir(p)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("[Campaign] watcher: watch %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToJobs)

	log.Printf("[Campaign] watcher: watching %d file(s)", len(pathToJobs))
}

func (s *ImportService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToJobs map[string][]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			jobIDs, ok := pathToJobs[abs]
			if !ok {
				continue
			}
			for _, jid := range jobIDs {
				if t, exists := timers[jid]; exists {
					t.Stop()
				}
				jid := jid
				timers[jid] = time.AfterFunc(watchDebounce, func() {
					if ctx.Err() != nil {
						return
					}
					log.Printf("[Campaign] watcher: %q changed, running job %s", abs, jid)
					if _, err := s.runJob(ctx, jid, etl.TriggerFileWatch); err != nil {
						log.Printf("[Campaign] watcher: job %s failed: %v", jid, err)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Campaign] watcher: %v", err)
		}
	}
}

// WaitRunning blocks until running imports finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ImportService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ImportService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *ImportService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
