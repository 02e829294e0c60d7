// Package jobs ties acquisition and trimming into one unit of work and keeps
// the job records and artifacts consistent.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"recorte/internal/acquire"
	"recorte/internal/models"
	"recorte/internal/naming"
	"recorte/internal/storage"
	"recorte/internal/trim"
	"recorte/internal/youtube"
)

// Acquirer はURLから検証済みのローカルファイルを得る
type Acquirer interface {
	Acquire(ctx context.Context, jobID, url string) (*acquire.Result, error)
}

// Trimmer は区間を切り出し、成果物の長さを計測する
type Trimmer interface {
	Trim(ctx context.Context, req trim.Request) (*trim.Result, error)
	Probe(ctx context.Context, path string) (float64, error)
}

// MetadataProber は動画のメタ情報だけを取得する
type MetadataProber interface {
	GetVideo(ctx context.Context, url string) (*youtube.VideoInfo, error)
}

// DefaultMaxSpan は MaxSpan 未設定時の区間上限（秒）
const DefaultMaxSpan = 7200

// Options はServiceの設定。MaxSpanが0以下ならDefaultMaxSpanを使う
type Options struct {
	TempDir    string
	OutputDir  string
	MaxSpan    int
	MaxPending int
	Logger     hclog.Logger
}

// Service はジョブの受付・処理・照会を行う
type Service struct {
	repo     *storage.JobRepository
	acquirer Acquirer
	trimmer  Trimmer
	prober   MetadataProber
	registry *Registry
	opts     Options
	logger   hclog.Logger

	newID func() string
}

// NewService は新しいServiceを作成。proberがnilの場合は再生時間の確認を省略する
func NewService(repo *storage.JobRepository, acquirer Acquirer, trimmer Trimmer, prober MetadataProber, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.MaxSpan <= 0 {
		opts.MaxSpan = DefaultMaxSpan
	}
	return &Service{
		repo:     repo,
		acquirer: acquirer,
		trimmer:  trimmer,
		prober:   prober,
		registry: NewRegistry(opts.TempDir, opts.OutputDir),
		opts:     opts,
		logger:   logger.Named("jobs"),
		newID:    func() string { return uuid.New().String()[:8] },
	}
}

// SubmitRequest は受付時の入力
type SubmitRequest struct {
	URL   string
	Start int
	End   int
	Name  string
}

// Validate は同期的な入力検証
func (r SubmitRequest) Validate(maxSpan int) error {
	url := strings.TrimSpace(r.URL)
	if url == "" {
		return invalid("URL do YouTube é obrigatória")
	}
	if !youtube.IsSupportedURL(url) {
		return invalid("URL do YouTube inválida")
	}
	if r.Start < 0 {
		return invalid("O tempo inicial não pode ser negativo")
	}
	if r.End <= r.Start {
		return invalid("O tempo final deve ser maior que o inicial")
	}
	if r.End-r.Start > maxSpan {
		return invalid(fmt.Sprintf("O corte não pode ter mais de %s", spanLabel(maxSpan)))
	}
	return nil
}

func spanLabel(seconds int) string {
	switch {
	case seconds%3600 == 0 && seconds/3600 == 1:
		return "1 hora"
	case seconds%3600 == 0:
		return fmt.Sprintf("%d horas", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%d minutos", seconds/60)
	default:
		return fmt.Sprintf("%d segundos", seconds)
	}
}

// Submit は入力を検証してジョブをキューに登録する。処理はワーカーが行う
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	return s.admit(ctx, req, &models.Job{Status: models.JobStatusQueued, Origin: models.OriginAPI})
}

// admit は検証と受付上限の確認を行い、jobの雛形に入力を詰めて登録する
func (s *Service) admit(ctx context.Context, req SubmitRequest, job *models.Job) (*models.Job, error) {
	if err := req.Validate(s.opts.MaxSpan); err != nil {
		return nil, err
	}

	if s.opts.MaxPending > 0 {
		active, err := s.repo.CountActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count active jobs: %w", err)
		}
		if active >= s.opts.MaxPending {
			return nil, ErrQueueFull
		}
	}

	job.URL = strings.TrimSpace(req.URL)
	job.Start = req.Start
	job.End = req.End
	job.Name = strings.TrimSpace(req.Name)

	// 短いIDは衝突し得るので、重複したら振り直す
	const maxIDTries = 5
	for i := 0; ; i++ {
		job.ID = s.newID()
		err := s.repo.Create(ctx, job)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrDuplicateID) || i+1 >= maxIDTries {
			return nil, fmt.Errorf("failed to create job: %w", err)
		}
	}

	s.logger.Info("job submitted", "job", job.ID, "origin", job.Origin, "start", job.Start, "end", job.End)
	return job, nil
}

// Outcome は処理成功時の結果
type Outcome struct {
	Filename string
	Path     string
	SizeMB   float64
	Duration int
	Mode     trim.Mode
	Attempts int
	Title    string
}

// Process はワーカーから呼ばれるハンドラ
func (s *Service) Process(ctx context.Context, job *models.Job) error {
	_, err := s.Run(ctx, job)
	return err
}

// Run は取得と切り出しを行う。成否に関わらずジョブの一時ファイルは削除される
func (s *Service) Run(ctx context.Context, job *models.Job) (*Outcome, error) {
	log := s.logger.With("job", job.ID)
	defer func() {
		if n := s.registry.RemoveTemp(job.ID); n > 0 {
			log.Debug("removed temporary files", "count", n)
		}
	}()

	// 再生時間の確認
	s.step(ctx, job.ID, 5, models.StepProbing)
	end, probedTitle, err := s.checkDuration(ctx, job)
	if err != nil {
		return nil, err
	}

	// ダウンロード
	s.step(ctx, job.ID, 10, models.StepDownloading)
	res, err := s.acquirer.Acquire(ctx, job.ID, job.URL)
	if err != nil {
		return nil, err
	}
	title := res.Title
	if title == acquire.DefaultTitle && probedTitle != "" {
		title = probedTitle
	}
	if err := s.repo.SetTitle(ctx, job.ID, title); err != nil {
		log.Warn("failed to store title", "err", err)
	}

	// 切り出し
	s.step(ctx, job.ID, 60, models.StepTrimming)
	filename := naming.ArtifactName(job.Name, title, job.ID)
	outPath := filepath.Join(s.opts.OutputDir, filename)
	cut, err := s.trimmer.Trim(ctx, trim.Request{
		Source: res.Path,
		Output: outPath,
		Start:  job.Start,
		End:    end,
	})
	if err != nil {
		return nil, err
	}

	// 成果物の確認
	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingOutput, filename)
	}

	// 実際の長さを計測。取れなければ要求した区間の長さを使う
	duration := end - job.Start
	if measured, err := s.trimmer.Probe(ctx, outPath); err != nil {
		log.Warn("failed to measure cut duration", "err", err)
	} else {
		duration = int(math.Round(measured))
	}

	attempts := res.Attempt + 1
	if err := s.repo.SetResult(ctx, job.ID, filename, info.Size(), attempts); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	out := &Outcome{
		Filename: filename,
		Path:     outPath,
		SizeMB:   models.RoundMB(info.Size()),
		Duration: duration,
		Mode:     cut.Mode,
		Attempts: attempts,
		Title:    title,
	}
	log.Info("job finished", "file", out.Filename, "size_mb", out.SizeMB, "duration", out.Duration, "mode", out.Mode)
	return out, nil
}

// checkDuration は開始位置が動画の長さを超えていないか確認し、
// 終了位置を長さに収める。メタ情報が取れない場合はそのまま続行する
func (s *Service) checkDuration(ctx context.Context, job *models.Job) (int, string, error) {
	end := job.End
	if s.prober == nil {
		return end, "", nil
	}

	info, err := s.prober.GetVideo(ctx, job.URL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		s.logger.Warn("metadata probe failed, continuing without duration check", "job", job.ID, "err", err)
		return end, "", nil
	}

	duration := info.DurationSeconds()
	if duration <= 0 {
		return end, info.Title, nil
	}
	if job.Start >= duration {
		return 0, "", fmt.Errorf("start %ds is beyond the video duration %ds", job.Start, duration)
	}
	if end > duration {
		s.logger.Info("clamping end to video duration", "job", job.ID, "end", end, "duration", duration)
		end = duration
	}
	return end, info.Title, nil
}

func (s *Service) step(ctx context.Context, id string, progress int, step string) {
	if err := s.repo.UpdateProgressWithStep(ctx, id, progress, step); err != nil {
		s.logger.Warn("failed to update progress", "job", id, "err", err)
	}
}
