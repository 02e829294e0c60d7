package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"recorte/internal/models"
)

// ErrDuplicateID は同じIDのジョブが既に存在する場合に返される
var ErrDuplicateID = errors.New("job id already exists")

const jobColumns = `id, url, start_sec, end_sec, name, status, origin, step, progress, attempts,
	title, filename, size_bytes, error, created_at, started_at, completed_at`

// JobRepository はジョブのデータアクセス層
type JobRepository struct {
	db *DB
}

// NewJobRepository は新しいJobRepositoryを作成
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// StatusCount はステータスごとの件数
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Create は新しいジョブを作成。実行中として登録した場合は開始時刻も記録する
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	job.CreatedAt = time.Now().UTC()
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.Origin == "" {
		job.Origin = models.OriginAPI
	}
	if job.Step == "" {
		job.Step = models.StepQueued
	}
	if job.Status == models.JobStatusRunning && job.StartedAt == nil {
		started := job.CreatedAt
		job.StartedAt = &started
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, url, start_sec, end_sec, name, status, origin, step, progress, created_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.URL, job.Start, job.End, job.Name, job.Status, job.Origin, job.Step, job.Progress,
		job.CreatedAt, job.StartedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	return err
}

// GetByID はIDでジョブを取得。存在しない場合はnil
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNext は最も古いキュー済みジョブを実行中にして返す。
// 1文のUPDATEで確保するため、複数ワーカーが同じジョブを取ることはない
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.Job, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = ?, step = ?, started_at = ?
		WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY rowid LIMIT 1)
		RETURNING id`,
		models.JobStatusRunning, models.StepProbing, time.Now().UTC(), models.JobStatusQueued,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateProgressWithStep はジョブの進捗とステップを更新
func (r *JobRepository) UpdateProgressWithStep(ctx context.Context, id string, progress int, step string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, step = ? WHERE id = ?`, progress, step, id)
	return err
}

// SetTitle は取得した動画タイトルを保存
func (r *JobRepository) SetTitle(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE jobs SET title = ? WHERE id = ?`, title, id)
	return err
}

// SetResult は成果物の情報を保存。ステータスは変更しない
func (r *JobRepository) SetResult(ctx context.Context, id, filename string, sizeBytes int64, attempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET filename = ?, size_bytes = ?, attempts = ? WHERE id = ?`,
		filename, sizeBytes, attempts, id)
	return err
}

// Complete はジョブを完了状態にする
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, step = ?, progress = 100, completed_at = ?
		WHERE id = ?`,
		models.JobStatusCompleted, models.StepDone, time.Now().UTC(), id)
	return err
}

// Fail はジョブを失敗状態にする
func (r *JobRepository) Fail(ctx context.Context, id string, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		models.JobStatusFailed, errorMsg, time.Now().UTC(), id)
	return err
}

// ResetRunning はワーカーが実行中のまま残したジョブをキューに戻し、そのIDを返す。
// 起動時のリカバリ用。CLIのジョブは別プロセスが実行中の可能性があるので対象外
func (r *JobRepository) ResetRunning(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE jobs SET status = ?, step = ?, progress = 0, started_at = NULL
		WHERE status = ? AND origin = ?
		RETURNING id`,
		models.JobStatusQueued, models.StepQueued, models.JobStatusRunning, models.OriginAPI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByStatus はステータスでジョブ一覧を取得
func (r *JobRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.Job, error) {
	if limit == 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY rowid DESC LIMIT ?`, status, limit)
}

// ListRecent は最近のジョブ一覧を取得
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]models.Job, error) {
	if limit == 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY rowid DESC LIMIT ?`, limit)
}

// CountByStatus はステータスごとのジョブ数を取得
func (r *JobRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountActive はキュー済みと実行中のジョブ数を返す
func (r *JobRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status IN (?, ?)`,
		models.JobStatusQueued, models.JobStatusRunning).Scan(&n)
	return n, err
}

// Delete はジョブを削除
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// DeleteFinished は完了・失敗したジョブを全て削除し、件数を返す
func (r *JobRepository) DeleteFinished(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?)`,
		models.JobStatusCompleted, models.JobStatusFailed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *JobRepository) list(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.Job, error) {
	var (
		job       models.Job
		started   sql.NullTime
		completed sql.NullTime
	)
	err := s.Scan(
		&job.ID, &job.URL, &job.Start, &job.End, &job.Name,
		&job.Status, &job.Origin, &job.Step, &job.Progress, &job.Attempts,
		&job.Title, &job.Filename, &job.SizeBytes, &job.Error,
		&job.CreatedAt, &started, &completed,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
