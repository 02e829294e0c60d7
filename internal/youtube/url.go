package youtube

import (
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// supportedHosts は受け付けるYouTubeのホスト
var supportedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

// IsSupportedURL はURLがYouTubeの動画を指しているかを判定
func IsSupportedURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !supportedHosts[strings.ToLower(u.Hostname())] {
		return false
	}

	_, err = youtube.ExtractVideoID(raw)
	return err == nil
}

// VideoID はURLから動画IDを取り出す
func VideoID(raw string) (string, error) {
	return youtube.ExtractVideoID(strings.TrimSpace(raw))
}
