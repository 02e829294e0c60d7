package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はサービス全体の設定
type Config struct {
	Port string

	DataDir   string
	TempDir   string
	OutputDir string
	DBPath    string

	MaxSpanSeconds int

	Download DownloadConfig
	Trim     TrimConfig
	Worker   WorkerConfig

	LogLevel string
	LogJSON  bool
}

// DownloadConfig はダウンロード（取得パイプライン）の設定
type DownloadConfig struct {
	Attempts       int
	BaseDelay      time.Duration
	Jitter         time.Duration
	BlockedDelay   time.Duration
	MinBytes       int64
	UpstreamRPS    float64
	MirrorHosts    []string
	StrategiesFile string
}

// TrimConfig はffmpegによる切り出しの設定
type TrimConfig struct {
	FFmpegPath  string
	FFprobePath string
	Bitrate     string
	FadeSeconds float64
}

// WorkerConfig はバックグラウンドワーカーの設定
type WorkerConfig struct {
	Concurrency  int
	MaxPending   int
	PollInterval time.Duration
}

// DefaultMaxSpanSeconds は切り出し区間の上限の既定値
const DefaultMaxSpanSeconds = 7200

// Load は.envと環境変数から設定を読み込む
func Load() *Config {
	// .envファイルを読み込み（存在しない場合はスキップ）
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		Port:           getEnv("PORT", "5000"),
		DataDir:        dataDir,
		TempDir:        getEnv("TEMP_DIR", filepath.Join(dataDir, "temp_downloads")),
		OutputDir:      getEnv("OUTPUT_DIR", filepath.Join(dataDir, "audio_files")),
		DBPath:         getEnv("DB_PATH", filepath.Join(dataDir, "recorte.db")),
		MaxSpanSeconds: getEnvAsPositiveInt("MAX_SPAN_SECONDS", DefaultMaxSpanSeconds),
		Download: DownloadConfig{
			Attempts:       getEnvAsInt("DOWNLOAD_ATTEMPTS", 4),
			BaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", 2*time.Second),
			Jitter:         getEnvAsDuration("RETRY_JITTER", time.Second),
			BlockedDelay:   getEnvAsDuration("BLOCKED_DELAY", 10*time.Second),
			MinBytes:       int64(getEnvAsInt("MIN_DOWNLOAD_BYTES", 10*1024)),
			UpstreamRPS:    getEnvAsFloat("UPSTREAM_RPS", 1),
			MirrorHosts:    getEnvAsList("MIRROR_HOSTS"),
			StrategiesFile: getEnv("STRATEGIES_FILE", ""),
		},
		Trim: TrimConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			Bitrate:     getEnv("AUDIO_BITRATE", "192k"),
			FadeSeconds: getEnvAsFloat("FADE_SECONDS", 0.5),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("WORKERS", 2),
			MaxPending:   getEnvAsInt("MAX_PENDING", 32),
			PollInterval: getEnvAsDuration("POLL_INTERVAL", time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvAsBool("LOG_JSON", false),
	}
}

// EnsureDirs は管理ディレクトリを作成する
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.TempDir, c.OutputDir, filepath.Dir(c.DBPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// getEnvAsPositiveInt は0以下の値を無効として既定値を使う
func getEnvAsPositiveInt(key string, fallback int) int {
	if v := getEnvAsInt(key, fallback); v > 0 {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
