package models

import "time"

// Job は1件の切り出しリクエスト
type Job struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Start       int        `json:"inicio"`
	End         int        `json:"fim"`
	Name        string     `json:"nome_arquivo,omitempty"`
	Status      string     `json:"status"`
	Origin      string     `json:"origin"`
	Step        string     `json:"step,omitempty"`
	Progress    int        `json:"progress"`
	Attempts    int        `json:"attempts"`
	Title       string     `json:"title,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	SizeBytes   int64      `json:"size_bytes,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Span は切り出し区間の秒数
func (j *Job) Span() int {
	return j.End - j.Start
}

// SizeMB は成果物のサイズ(MB、小数2桁)
func (j *Job) SizeMB() float64 {
	return RoundMB(j.SizeBytes)
}

// RoundMB はバイト数をMB(小数2桁)に変換
func RoundMB(size int64) float64 {
	mb := float64(size) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

// ジョブステータス
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ジョブの登録元。CLIのジョブは登録したプロセスが最後まで実行する
const (
	OriginAPI = "api"
	OriginCLI = "cli"
)

// 処理ステップ
const (
	StepQueued      = "queued"
	StepProbing     = "probing"
	StepDownloading = "downloading"
	StepTrimming    = "trimming"
	StepDone        = "done"
)
