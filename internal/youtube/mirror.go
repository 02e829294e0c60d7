package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ytdl "github.com/kkdai/youtube/v2"

	"recorte/internal/strategy"
)

// MirrorResolver は代替ホストに同じ動画のURLを組み立て、
// 最初に応答したものを返す
type MirrorResolver struct {
	hosts  []string
	client *http.Client
}

// NewMirrorResolver は新しいMirrorResolverを作成
// hostsは "yewtu.be" や "https://inv.example.org" の形式
func NewMirrorResolver(hosts []string, client *http.Client) *MirrorResolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &MirrorResolver{hosts: hosts, client: client}
}

// Candidates は動画IDから代替URLの一覧を作る
func (m *MirrorResolver) Candidates(videoURL string) []string {
	id, err := VideoID(videoURL)
	if err != nil {
		return nil
	}

	var out []string
	for _, host := range m.hosts {
		base := strings.TrimRight(strings.TrimSpace(host), "/")
		if base == "" {
			continue
		}
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		out = append(out, base+"/watch?v="+url.QueryEscape(id))
	}
	return out
}

// Resolve は代替URLに軽量なHEADリクエストを送り、
// 最初に成功したURLを返す。全て失敗した場合はfalse
func (m *MirrorResolver) Resolve(ctx context.Context, videoURL string) (string, bool) {
	for _, candidate := range m.Candidates(videoURL) {
		if m.probe(ctx, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (m *MirrorResolver) probe(ctx context.Context, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

// mirrorBase はYouTube以外のホストを指すURLなら、そのミラーのベースURLを返す
func mirrorBase(videoURL string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(videoURL))
	if err != nil || u.Host == "" || supportedHosts[strings.ToLower(u.Hostname())] {
		return nil, false
	}
	path := strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/watch")
	if path == "" {
		path = "/"
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}, true
}

// mirrorVideo は /api/v1/videos/:id のレスポンス（必要な項目のみ）
type mirrorVideo struct {
	Title           string         `json:"title"`
	AdaptiveFormats []mirrorFormat `json:"adaptiveFormats"`
	FormatStreams   []mirrorFormat `json:"formatStreams"`
}

type mirrorFormat struct {
	Itag          flexNumber `json:"itag"`
	Type          string     `json:"type"`
	Bitrate       flexNumber `json:"bitrate"`
	Clen          flexNumber `json:"clen"`
	QualityLabel  string     `json:"qualityLabel"`
	AudioChannels int        `json:"audioChannels"`
}

// flexNumber は数値と数値文字列の両方を受け付ける
type flexNumber int64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*n = flexNumber(v)
	return nil
}

// formats はミラーのフォーマット一覧をSelectFormatで扱える形にする
func (v *mirrorVideo) formats() ytdl.FormatList {
	var list ytdl.FormatList
	add := func(f mirrorFormat, muxed bool) {
		channels := f.AudioChannels
		if muxed && channels == 0 {
			channels = 2
		}
		list = append(list, ytdl.Format{
			ItagNo:        int(f.Itag),
			MimeType:      f.Type,
			Bitrate:       int(f.Bitrate),
			ContentLength: int64(f.Clen),
			QualityLabel:  f.QualityLabel,
			Height:        heightFromLabel(f.QualityLabel),
			AudioChannels: channels,
		})
	}
	for _, f := range v.AdaptiveFormats {
		add(f, false)
	}
	for _, f := range v.FormatStreams {
		add(f, true)
	}
	return list
}

// heightFromLabel は "360p" や "720p60" から高さを取り出す
func heightFromLabel(label string) int {
	i := strings.IndexByte(label, 'p')
	if i <= 0 {
		return 0
	}
	h, _ := strconv.Atoi(label[:i])
	return h
}

// extractFromMirror はミラーのAPIでフォーマットを選び、ミラー経由でストリームを保存する
func extractFromMirror(ctx context.Context, client *http.Client, base *url.URL, videoURL string, cfg strategy.Config, destPrefix string) (string, string, error) {
	id, err := VideoID(videoURL)
	if err != nil {
		return "", "", err
	}

	var video mirrorVideo
	api := base.JoinPath("api", "v1", "videos", id)
	api.RawQuery = url.Values{"fields": {"title,adaptiveFormats,formatStreams"}}.Encode()
	if err := getJSON(ctx, client, api.String(), &video); err != nil {
		return "", "", fmt.Errorf("failed to get video from mirror: %w", err)
	}

	format, err := SelectFormat(video.formats(), cfg.Formats)
	if err != nil {
		return "", "", err
	}

	// local=true でミラー自身がストリームを中継する
	stream := base.JoinPath("latest_version")
	stream.RawQuery = url.Values{
		"id":    {id},
		"itag":  {strconv.Itoa(format.ItagNo)},
		"local": {"true"},
	}.Encode()
	resp, err := get(ctx, client, stream.String())
	if err != nil {
		return "", "", fmt.Errorf("failed to get stream from mirror: %w", err)
	}
	defer resp.Body.Close()

	outputPath, err := saveStream(resp.Body, destPrefix+extensionFor(format.MimeType))
	if err != nil {
		return "", "", err
	}
	return outputPath, video.Title, nil
}

func getJSON(ctx context.Context, client *http.Client, target string, v any) error {
	resp, err := get(ctx, client, target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// get は2xx以外をエラーにする。ステータスはエラー文に含める
func get(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
