package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrstudio/internal/etl"
)

// ImportJobStore persists campaign import jobs and their run history.
type ImportJobStore struct {
	db *DB
}

func NewImportJobStore(db *DB) *ImportJobStore {
	return &ImportJobStore{db: db}
}

const jobColumns = `id, campaign_id, name, source_type, source_config, transforms, mode, dedupe_key,
	trigger_type, trigger_config, enabled, last_run_at, last_status, last_error, created_at, updated_at`

func scanJob(sc interface{ Scan(...any) error }) (*etl.ImportJob, error) {
	var (
		job                etl.ImportJob
		srcCfg, transforms string
		lastRun            sql.NullTime
	)
	err := sc.Scan(
		&job.ID, &job.CampaignID, &job.Name, &job.SourceType, &srcCfg, &transforms, &job.Mode, &job.DedupeKey,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled, &lastRun, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	if err := json.Unmarshal([]byte(srcCfg), &job.SourceCfg); err != nil {
		return nil, fmt.Errorf("decode source config of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(transforms), &job.Transforms); err != nil {
		return nil, fmt.Errorf("decode transforms of job %s: %w", job.ID, err)
	}
	return &job, nil
}

func (s *ImportJobStore) CreateJob(job *etl.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	srcCfg, err := json.Marshal(job.SourceCfg)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	transforms, err := json.Marshal(job.Transforms)
	if err != nil {
		return fmt.Errorf("encode transforms: %w", err)
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO import_jobs (id, campaign_id, name, source_type, source_config, transforms, mode, dedupe_key,
		 trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.CampaignID, job.Name, job.SourceType, string(srcCfg), string(transforms), job.Mode, job.DedupeKey,
		job.TriggerType, job.TriggerConfig, job.Enabled, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", err)
	}
	return nil
}

func (s *ImportJobStore) GetJob(id string) (*etl.ImportJob, error) {
	job, err := scanJob(s.db.conn.QueryRow(`SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "import job", id)
	}
	return job, nil
}

func (s *ImportJobStore) UpdateJob(job *etl.ImportJob) error {
	job.UpdatedAt = time.Now()
	srcCfg, err := json.Marshal(job.SourceCfg)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	transforms, err := json.Marshal(job.Transforms)
	if err != nil {
		return fmt.Errorf("encode transforms: %w", err)
	}
	res, err := s.db.conn.Exec(
		`UPDATE import_jobs SET name=?, source_type=?, source_config=?, transforms=?, mode=?, dedupe_key=?,
		 trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceType, string(srcCfg), string(transforms), job.Mode, job.DedupeKey,
		job.TriggerType, job.TriggerConfig, job.Enabled, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return requireRow(res, "import job", job.ID)
}

func (s *ImportJobStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now()
	_, err := s.db.conn.Exec(
		`UPDATE import_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *ImportJobStore) DeleteJob(id string) error {
	return s.db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM import_run_logs WHERE job_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM import_jobs WHERE id = ?`, id)
		return err
	})
}

// ListJobs returns the jobs of one campaign, or of all campaigns when
// campaignID is empty.
func (s *ImportJobStore) ListJobs(campaignID string) ([]etl.ImportJob, error) {
	return s.query(`SELECT `+jobColumns+` FROM import_jobs WHERE ? = '' OR campaign_id = ? ORDER BY created_at ASC`, campaignID, campaignID)
}

// ListTriggeredJobs returns enabled jobs run by a schedule or a file watch.
func (s *ImportJobStore) ListTriggeredJobs() ([]etl.ImportJob, error) {
	return s.query(
		`SELECT `+jobColumns+` FROM import_jobs WHERE enabled = 1 AND trigger_type IN (?, ?) ORDER BY created_at ASC`,
		etl.TriggerSchedule, etl.TriggerFileWatch,
	)
}

func (s *ImportJobStore) query(q string, args ...any) ([]etl.ImportJob, error) {
	rows, err := s.db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []etl.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ── Run logs ───────────────────────────────────────────────

const maxRunLogs = 50

// CreateRunLog records a run and keeps the newest maxRunLogs per job.
func (s *ImportJobStore) CreateRunLog(l *etl.ImportRunLog) error {
	l.ID = uuid.New().String()
	return s.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO import_run_logs (id, job_id, started_at, finished_at, status, rows_read, rows_written, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.JobID, l.StartedAt, l.FinishedAt, l.Status, l.RowsRead, l.RowsWritten, l.Error,
		)
		if err != nil {
			return fmt.Errorf("insert run log: %w", err)
		}
		_, err = tx.Exec(
			`DELETE FROM import_run_logs WHERE job_id = ? AND id NOT IN (
				SELECT id FROM import_run_logs WHERE job_id = ? ORDER BY rowid DESC LIMIT ?
			)`, l.JobID, l.JobID, maxRunLogs,
		)
		return err
	})
}

// ListRunLogs returns the newest limit runs of a job.
func (s *ImportJobStore) ListRunLogs(jobID string, limit int) ([]etl.ImportRunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, rows_read, rows_written, error
		 FROM import_run_logs WHERE job_id = ? ORDER BY rowid DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []etl.ImportRunLog
	for rows.Next() {
		var l etl.ImportRunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
