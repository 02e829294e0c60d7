package youtube

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"recorte/internal/strategy"
)

// defaultRetryWait はリトライ間隔の初期値。以降は指数的に伸びる
const defaultRetryWait = 500 * time.Millisecond

// newHTTPClient は1回の試行用のHTTPクライアントを作る。
// ヘッダー付与はbaseの直上で行い、リトライはretryablehttpに任せる。
// Client.Timeoutは設定しない（ストリーム全体のダウンロード時間を制限しないため）。
func newHTTPClient(base http.RoundTripper, cfg strategy.Config, wait time.Duration, logger hclog.Logger) *http.Client {
	inner := &http.Client{
		Transport: &headerTransport{base: base, headers: cfg.Headers},
	}
	return &http.Client{
		Transport: &rangeTransport{
			page:     &retryablehttp.RoundTripper{Client: newRetryClient(inner, cfg.Retries, wait, logger)},
			fragment: &retryablehttp.RoundTripper{Client: newRetryClient(inner, cfg.FragmentRetries, wait, logger)},
		},
	}
}

// newRetryClient はネットワークエラーと5xx/429をリトライするクライアント。
// 回数を使い切った場合は最後のレスポンスをそのまま返す
func newRetryClient(httpClient *http.Client, retries int, wait time.Duration, logger hclog.Logger) *retryablehttp.Client {
	if wait <= 0 {
		wait = defaultRetryWait
	}
	c := retryablehttp.NewClient()
	c.HTTPClient = httpClient
	c.RetryMax = retries
	c.RetryWaitMin = wait
	c.RetryWaitMax = 8 * wait
	c.ErrorHandler = lastResponse
	c.Logger = nil
	if logger != nil {
		c.Logger = logger.Named("http")
	}
	return c
}

// lastResponse はリトライを使い切ったとき、レスポンスがあればエラーにせず返す。
// ステータスの判断は呼び出し側に任せる
func lastResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// newBaseTransport は接続とレスポンスヘッダーの待ち時間を制限したTransport
func newBaseTransport(timeout time.Duration) http.RoundTripper {
	if timeout <= 0 {
		timeout = strategy.DefaultSocketTimeout
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// headerTransport はリクエストに未設定のヘッダーを付与する
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for key, values := range t.headers {
		// User-Agentはライブラリが既定値を入れるので常に上書きする
		if clone.Header.Get(key) != "" && !strings.EqualFold(key, "User-Agent") {
			continue
		}
		clone.Header[key] = append([]string(nil), values...)
	}
	return t.base.RoundTrip(clone)
}

// rangeTransport はチャンク取得とそれ以外でリトライ回数を切り替える
type rangeTransport struct {
	page     http.RoundTripper
	fragment http.RoundTripper
}

func (t *rangeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isFragment(req) {
		return t.fragment.RoundTrip(req)
	}
	return t.page.RoundTrip(req)
}

// isFragment はチャンク単位のストリーム取得かどうか
func isFragment(req *http.Request) bool {
	return req.Header.Get("Range") != "" || req.URL.Query().Get("range") != ""
}
