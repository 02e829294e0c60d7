package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	ytdl "github.com/kkdai/youtube/v2"

	"recorte/internal/strategy"
)

// ErrNoFormat は条件に合うフォーマットがない場合のエラー
var ErrNoFormat = errors.New("no format matches the preference")

// AudioFormat は音声フォーマット情報
type AudioFormat struct {
	ItagNo        int
	MimeType      string // "audio/mp4", "audio/webm"
	Bitrate       int    // ビットレート (bps)
	ContentLength int64  // ファイルサイズ (bytes)
	Quality       string // 音質ラベル
	Language      string // 言語コード (例: "ja", "en")
	LanguageName  string // 言語表示名
	IsDefault     bool   // デフォルト音声トラックかどうか
}

// Extension はMIMEタイプから拡張子を返す
func (f *AudioFormat) Extension() string {
	return extensionFor(f.MimeType)
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/mp4"):
		return ".m4a"
	case strings.HasPrefix(mimeType, "video/mp4"):
		return ".mp4"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "3gpp"):
		return ".3gp"
	}
	return ".audio"
}

// GetAudioFormats は利用可能な音声フォーマット一覧を取得
func (c *Client) GetAudioFormats(ctx context.Context, videoURL string) ([]AudioFormat, error) {
	video, err := c.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	return audioFormats(video.Formats), nil
}

// audioFormats は音声のみのフォーマットをビットレート降順で返す
func audioFormats(list ytdl.FormatList) []AudioFormat {
	var formats []AudioFormat
	for _, f := range list {
		// 音声のみのフォーマットをフィルタ
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}

		af := AudioFormat{
			ItagNo:        f.ItagNo,
			MimeType:      f.MimeType,
			Bitrate:       f.Bitrate,
			ContentLength: f.ContentLength,
			Quality:       f.AudioQuality,
		}

		// 音声トラック情報があれば追加
		if f.AudioTrack != nil {
			af.LanguageName = f.AudioTrack.DisplayName
			af.Language = f.AudioTrack.ID
			af.IsDefault = f.AudioTrack.AudioIsDefault
		}

		formats = append(formats, af)
	}

	// ビットレート降順でソート
	sort.Slice(formats, func(i, j int) bool {
		return formats[i].Bitrate > formats[j].Bitrate
	})

	return formats
}

// SelectFormat は優先順位リストの先頭から順に条件に合うフォーマットを探す
func SelectFormat(formats ytdl.FormatList, pref strategy.FormatPreference) (*ytdl.Format, error) {
	for _, sel := range pref {
		var candidates []*ytdl.Format
		for i := range formats {
			if matches(&formats[i], sel) {
				candidates = append(candidates, &formats[i])
			}
		}
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			if sel.Lowest {
				return candidates[i].Bitrate < candidates[j].Bitrate
			}
			return candidates[i].Bitrate > candidates[j].Bitrate
		})
		return candidates[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoFormat, pref)
}

func matches(f *ytdl.Format, sel strategy.FormatSelector) bool {
	// 音声のないストリームは対象外
	if f.AudioChannels == 0 {
		return false
	}

	audioOnly := strings.HasPrefix(f.MimeType, "audio/")
	if sel.AudioOnly && !audioOnly {
		return false
	}
	// "best" は音声と映像が一体になったストリームのみ
	if !sel.AudioOnly && audioOnly {
		return false
	}

	switch sel.Container {
	case "":
	case "m4a", "mp4":
		if !strings.Contains(f.MimeType, "/mp4") {
			return false
		}
	default:
		if !strings.Contains(f.MimeType, "/"+sel.Container) {
			return false
		}
	}

	if sel.MaxHeight > 0 && f.Height > sel.MaxHeight {
		return false
	}
	return true
}

// Extractor は1回分の設定でメディアを取得する。
// YouTube以外のホストのURLはミラー（Invidious互換API）から取得する
type Extractor struct {
	base         http.RoundTripper
	newTransport func(timeout time.Duration) http.RoundTripper
	retryWait    time.Duration
	logger       hclog.Logger
}

// NewExtractor は新しいExtractorを作成
// baseがnilの場合は試行ごとにTransportを作り、試行の終わりに閉じる
func NewExtractor(base http.RoundTripper, logger hclog.Logger) *Extractor {
	return &Extractor{
		base:         base,
		newTransport: newBaseTransport,
		retryWait:    defaultRetryWait,
		logger:       logger,
	}
}

// Extract は設定に従ってメディアを destPrefix + 拡張子 に保存し、
// 保存先パスと動画タイトルを返す
func (e *Extractor) Extract(ctx context.Context, videoURL string, cfg strategy.Config, destPrefix string) (string, string, error) {
	base := e.base
	if base == nil {
		base = e.newTransport(cfg.SocketTimeout)
		if closer, ok := base.(interface{ CloseIdleConnections() }); ok {
			defer closer.CloseIdleConnections()
		}
	}
	httpClient := newHTTPClient(base, cfg, e.retryWait, e.logger)

	if mirror, ok := mirrorBase(videoURL); ok {
		return extractFromMirror(ctx, httpClient, mirror, videoURL, cfg, destPrefix)
	}

	client := ytdl.Client{HTTPClient: httpClient}

	// 動画情報を取得
	video, err := client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to get video: %w", err)
	}

	// 最適なフォーマットを選択
	format, err := SelectFormat(video.Formats, cfg.Formats)
	if err != nil {
		return "", "", err
	}

	// ストリームを取得
	stream, _, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", "", fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	outputPath, err := saveStream(stream, destPrefix+extensionFor(format.MimeType))
	if err != nil {
		return "", "", err
	}
	return outputPath, video.Title, nil
}

// saveStream はストリームをファイルに書き出す。失敗時はファイルを削除する
func saveStream(stream io.Reader, outputPath string) (string, error) {
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(file, stream)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("failed to download: %w", err)
	}
	return outputPath, nil
}
