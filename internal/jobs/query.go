package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"recorte/internal/models"
	"recorte/internal/naming"
	"recorte/internal/storage"
	"recorte/internal/youtube"
)

// State は利用者に見せる状態
type State string

const (
	StateDone       State = "concluido"
	StateProcessing State = "processando"
	StateFailed     State = "erro"
)

// StatusReport はジョブ状態の照会結果
type StatusReport struct {
	ID       string
	State    State
	Filename string
	SizeMB   float64
	Message  string
	Step     string
	Progress int
}

var stepMessages = map[string]string{
	models.StepQueued:      "Aguardando na fila...",
	models.StepProbing:     "Verificando informações do vídeo...",
	models.StepDownloading: "Download em andamento...",
	models.StepTrimming:    "Corte em andamento...",
}

// Status はジョブの状態を返す。ストアを優先し、知らないIDはファイルから推定する
func (s *Service) Status(ctx context.Context, id string) (*StatusReport, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job != nil {
		return s.statusFromJob(job)
	}

	if a, ok := s.registry.FindArtifact(id); ok {
		return &StatusReport{
			ID:       id,
			State:    StateDone,
			Filename: a.Name,
			SizeMB:   models.RoundMB(a.Size),
			Message:  "Áudio pronto para download",
		}, nil
	}
	if s.registry.HasTemp(id) {
		return &StatusReport{ID: id, State: StateProcessing, Message: stepMessages[models.StepDownloading]}, nil
	}
	return nil, ErrNotFound
}

func (s *Service) statusFromJob(job *models.Job) (*StatusReport, error) {
	report := &StatusReport{ID: job.ID, Step: job.Step, Progress: job.Progress}

	switch job.Status {
	case models.JobStatusCompleted:
		a, ok := s.registry.Artifact(job.Filename)
		if !ok {
			return nil, ErrNotFound
		}
		report.State = StateDone
		report.Filename = a.Name
		report.SizeMB = models.RoundMB(a.Size)
		report.Message = "Áudio pronto para download"
	case models.JobStatusFailed:
		report.State = StateFailed
		report.Message = job.Error
	default:
		report.State = StateProcessing
		report.Message = stepMessages[job.Step]
		if report.Message == "" {
			report.Message = "Processamento iniciado..."
		}
	}
	return report, nil
}

// Locate はダウンロード対象の成果物を返す
func (s *Service) Locate(ctx context.Context, id string) (*Artifact, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job != nil && job.Status == models.JobStatusCompleted {
		if a, ok := s.registry.Artifact(job.Filename); ok {
			return a, nil
		}
	}
	if a, ok := s.registry.FindArtifact(id); ok {
		return a, nil
	}
	return nil, ErrNotFound
}

// PurgeResult は一括削除の結果
type PurgeResult struct {
	Files int
	Jobs  int64
}

// Purge は両ディレクトリのファイルと終了済みジョブの記録を削除する。
// 実行中ジョブの一時ファイルは残す
func (s *Service) Purge(ctx context.Context) (*PurgeResult, error) {
	running, err := s.repo.ListByStatus(ctx, models.JobStatusRunning, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to list running jobs: %w", err)
	}

	keep := func(dir, name string) bool {
		if filepath.Clean(dir) != filepath.Clean(s.opts.TempDir) {
			return false
		}
		for _, j := range running {
			if naming.IsTempOf(name, j.ID) {
				return true
			}
		}
		return false
	}

	files, err := s.registry.Purge(keep)
	if err != nil {
		return nil, fmt.Errorf("failed to purge files: %w", err)
	}
	n, err := s.repo.DeleteFinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to delete finished jobs: %w", err)
	}

	s.logger.Info("purged", "files", files, "jobs", n)
	return &PurgeResult{Files: files, Jobs: n}, nil
}

// Recover は前回の実行中に止まったジョブをキューに戻し、その一時ファイルを削除する
func (s *Service) Recover(ctx context.Context) (int, error) {
	ids, err := s.repo.ResetRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	for _, id := range ids {
		s.registry.RemoveTemp(id)
	}
	if len(ids) > 0 {
		s.logger.Info("requeued interrupted jobs", "count", len(ids))
	}
	return len(ids), nil
}

// List は最近のジョブ一覧を返す。statusが空なら全ステータス
func (s *Service) List(ctx context.Context, status string, limit int) ([]models.Job, error) {
	if status != "" {
		return s.repo.ListByStatus(ctx, status, limit)
	}
	return s.repo.ListRecent(ctx, limit)
}

// Stats はステータスごとの件数を返す
func (s *Service) Stats(ctx context.Context) ([]storage.StatusCount, error) {
	return s.repo.CountByStatus(ctx)
}

// Info は動画のメタ情報を返す
func (s *Service) Info(ctx context.Context, url string) (*youtube.VideoInfo, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, invalid("URL do YouTube é obrigatória")
	}
	if !youtube.IsSupportedURL(url) {
		return nil, invalid("URL do YouTube inválida")
	}
	if s.prober == nil {
		return nil, fmt.Errorf("metadata probe not configured")
	}
	return s.prober.GetVideo(ctx, url)
}

// Execute は受付から完了までを同期的に行う（CLI用）。
// ジョブは実行中として登録されるので、同じDBを使うワーカーには取られない
func (s *Service) Execute(ctx context.Context, req SubmitRequest) (*models.Job, *Outcome, error) {
	job, err := s.admit(ctx, req, &models.Job{
		Status: models.JobStatusRunning,
		Origin: models.OriginCLI,
		Step:   models.StepProbing,
	})
	if err != nil {
		return nil, nil, err
	}

	out, runErr := s.Run(ctx, job)
	if runErr != nil {
		if err := s.repo.Fail(context.WithoutCancel(ctx), job.ID, runErr.Error()); err != nil {
			s.logger.Error("failed to mark job failed", "job", job.ID, "err", err)
		}
		return job, nil, runErr
	}
	if err := s.repo.Complete(ctx, job.ID); err != nil {
		return job, out, fmt.Errorf("failed to complete job: %w", err)
	}
	return job, out, nil
}

// Job はジョブの記録を返す
func (s *Service) Job(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}
