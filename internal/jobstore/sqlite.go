package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lightbooth/boothflow/internal/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    project_id    TEXT NOT NULL,
    session_id    TEXT NOT NULL,
    experience_id TEXT NOT NULL,
    status        TEXT NOT NULL,
    progress      TEXT NOT NULL DEFAULT '{}',
    output        TEXT,
    error         TEXT,
    snapshot      TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    started_at    INTEGER,
    completed_at  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at);

CREATE TABLE IF NOT EXISTS export_logs (
    id               TEXT NOT NULL,
    job_id           TEXT NOT NULL,
    session_id       TEXT NOT NULL,
    provider         TEXT NOT NULL,
    status           TEXT NOT NULL,
    destination_path TEXT NOT NULL DEFAULT '',
    error            TEXT NOT NULL DEFAULT '',
    attempts         INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL,
    PRIMARY KEY (job_id, provider)
);
`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// SQLiteStore is the SQLite-backed job store.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// Open opens (and migrates) a SQLite job store at the given path.
func Open(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("job store path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobPending
	}

	snapshotJSON, err := json.Marshal(job.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	progressJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO jobs (id, project_id, session_id, experience_id, status, progress, snapshot, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProjectID, job.SessionID, job.ExperienceID, string(job.Status),
		string(progressJSON), string(snapshotJSON), toMillis(job.CreatedAt), toMillis(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, project_id, session_id, experience_id, status, progress, output, error, snapshot, created_at, updated_at, started_at, completed_at`

func scanJob(scanner interface{ Scan(...any) error }) (*models.Job, error) {
	var (
		job         models.Job
		status      string
		progressRaw string
		outputRaw   sql.NullString
		errorRaw    sql.NullString
		snapshotRaw string
		createdAt   int64
		updatedAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)
	if err := scanner.Scan(
		&job.ID, &job.ProjectID, &job.SessionID, &job.ExperienceID,
		&status, &progressRaw, &outputRaw, &errorRaw, &snapshotRaw,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	if err := json.Unmarshal([]byte(progressRaw), &job.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	if outputRaw.Valid && outputRaw.String != "" {
		job.Output = &models.MediaOutput{}
		if err := json.Unmarshal([]byte(outputRaw.String), job.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	if errorRaw.Valid && errorRaw.String != "" {
		job.Error = &models.ErrorRecord{}
		if err := json.Unmarshal([]byte(errorRaw.String), job.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error record: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(snapshotRaw), &job.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	if startedAt.Valid {
		t := fromMillis(startedAt.Int64)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		job.CompletedAt = &t
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) ClaimPending(ctx context.Context) (*models.Job, error) {
	now := toMillis(time.Now())

	// Guarded claim: only one worker can flip a given pending row.
	row := s.sqlDB.QueryRowContext(ctx, `
UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1)
RETURNING `+jobColumns,
		string(models.JobRunning), now, now, string(models.JobPending))

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	return job, nil
}

// transition runs a guarded status update. Zero affected rows on an existing
// job means the state machine forbids the change.
func (s *SQLiteStore) transition(ctx context.Context, id, query string, args ...any) error {
	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, id string) error {
	now := toMillis(time.Now())
	return s.transition(ctx, id, `
UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(models.JobRunning), now, now, id, string(models.JobPending))
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id string, output *models.MediaOutput) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	now := toMillis(time.Now())
	return s.transition(ctx, id, `
UPDATE jobs SET status = ?, output = ?, completed_at = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(models.JobCompleted), string(outputJSON), now, now, id, string(models.JobRunning))
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, rec *models.ErrorRecord) error {
	errorJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error record: %w", err)
	}
	now := toMillis(time.Now())
	return s.transition(ctx, id, `
UPDATE jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`,
		string(models.JobFailed), string(errorJSON), now, now, id,
		string(models.JobPending), string(models.JobRunning))
}

func (s *SQLiteStore) MarkCancelled(ctx context.Context, id string) error {
	now := toMillis(time.Now())
	return s.transition(ctx, id, `
UPDATE jobs SET status = ?, completed_at = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`,
		string(models.JobCancelled), now, now, id,
		string(models.JobPending), string(models.JobRunning))
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, progress models.JobProgress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	// Progress is advisory: writes against non-running jobs are dropped
	// silently rather than treated as transition violations.
	_, err = s.sqlDB.ExecContext(ctx, `
UPDATE jobs SET progress = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(progressJSON), toMillis(time.Now()), id, string(models.JobRunning))
	if err != nil {
		return fmt.Errorf("update progress for job %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) WriteExportLog(ctx context.Context, entry *models.ExportLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Attempts < 1 {
		entry.Attempts = 1
	}

	// Keyed by (job_id, provider): at-least-once task retries overwrite the
	// record instead of appending duplicates, accumulating the attempt count.
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO export_logs (id, job_id, session_id, provider, status, destination_path, error, attempts, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (job_id, provider) DO UPDATE SET
    status = excluded.status,
    destination_path = excluded.destination_path,
    error = excluded.error,
    attempts = export_logs.attempts + 1,
    created_at = excluded.created_at`,
		entry.ID, entry.JobID, entry.SessionID, entry.Provider, string(entry.Status),
		entry.DestinationPath, entry.Error, entry.Attempts, toMillis(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("write export log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListExportLogs(ctx context.Context, jobID string) ([]models.ExportLog, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, job_id, session_id, provider, status, destination_path, error, attempts, created_at
FROM export_logs WHERE job_id = ? ORDER BY provider`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list export logs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var logs []models.ExportLog
	for rows.Next() {
		var (
			entry     models.ExportLog
			status    string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.SessionID, &entry.Provider,
			&status, &entry.DestinationPath, &entry.Error, &entry.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export log: %w", err)
		}
		entry.Status = models.ExportStatus(status)
		entry.CreatedAt = fromMillis(createdAt)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
