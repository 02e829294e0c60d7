package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kkdai/youtube/v2"
)

// Client はYouTube API操作を抽象化するクライアント
type Client struct {
	client youtube.Client
}

// NewClient は新しいYouTubeクライアントを作成
// httpClientがnilの場合はデフォルトのクライアントを使う
func NewClient(httpClient *http.Client) *Client {
	return &Client{
		client: youtube.Client{HTTPClient: httpClient},
	}
}

// VideoInfo は動画のメタ情報
type VideoInfo struct {
	ID          string
	Title       string
	Author      string
	Duration    time.Duration
	Description string
	Thumbnail   string
	Views       int
}

// DurationSeconds は再生時間を秒（切り捨て）で返す
func (v *VideoInfo) DurationSeconds() int {
	return int(v.Duration / time.Second)
}

// FormattedDuration は再生時間を "m:ss" 形式で返す
func (v *VideoInfo) FormattedDuration() string {
	secs := v.DurationSeconds()
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// GetVideo は動画情報を取得（ダウンロードはしない）
func (c *Client) GetVideo(ctx context.Context, url string) (*VideoInfo, error) {
	video, err := c.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return toVideoInfo(video), nil
}

func toVideoInfo(video *youtube.Video) *VideoInfo {
	// 一番大きいサムネイルを選ぶ
	var thumbnail string
	var width uint
	for _, t := range video.Thumbnails {
		if t.Width >= width {
			width = t.Width
			thumbnail = t.URL
		}
	}

	return &VideoInfo{
		ID:          video.ID,
		Title:       video.Title,
		Author:      video.Author,
		Duration:    video.Duration,
		Description: video.Description,
		Thumbnail:   thumbnail,
		Views:       video.Views,
	}
}
