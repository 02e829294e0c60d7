package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recorte/internal/acquire"
	"recorte/internal/jobs"
	"recorte/internal/models"
	"recorte/internal/storage"
	"recorte/internal/trim"
	"recorte/internal/youtube"
)

const testURL = "https://youtu.be/dQw4w9WgXcQ"

type stubAcquirer struct{ dir string }

func (s stubAcquirer) Acquire(ctx context.Context, jobID, url string) (*acquire.Result, error) {
	path := filepath.Join(s.dir, "temp_"+jobID+"_0.m4a")
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		return nil, err
	}
	return &acquire.Result{Path: path, Title: "Song", Size: 5}, nil
}

type stubTrimmer struct{}

func (stubTrimmer) Trim(ctx context.Context, req trim.Request) (*trim.Result, error) {
	if err := os.WriteFile(req.Output, []byte("ID3 audio"), 0644); err != nil {
		return nil, err
	}
	return &trim.Result{Path: req.Output, Mode: trim.ModeCopy}, nil
}

func (stubTrimmer) Probe(ctx context.Context, path string) (float64, error) {
	return 30, nil
}

type stubProber struct{ err error }

func (s stubProber) GetVideo(ctx context.Context, url string) (*youtube.VideoInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &youtube.VideoInfo{
		Title:     "Never Gonna Give You Up",
		Author:    "Rick Astley",
		Duration:  213 * time.Second,
		Thumbnail: "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
	}, nil
}

type testServer struct {
	e    *echo.Echo
	svc  *jobs.Service
	repo *storage.JobRepository
	out  string
}

func newTestServer(t *testing.T, prober jobs.MetadataProber, maxPending int) *testServer {
	t.Helper()
	base := t.TempDir()
	tempDir := filepath.Join(base, "temp")
	outDir := filepath.Join(base, "out")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	require.NoError(t, os.MkdirAll(outDir, 0755))

	db, err := storage.Open(filepath.Join(base, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := storage.NewJobRepository(db)

	svc := jobs.NewService(repo, stubAcquirer{dir: tempDir}, stubTrimmer{}, prober, jobs.Options{
		TempDir:    tempDir,
		OutputDir:  outDir,
		MaxSpan:    7200,
		MaxPending: maxPending,
	})

	e := echo.New()
	Register(e, NewAPIHandler(svc, nil), NewJobHandler(svc), NewHealthHandler(outDir, nil))
	return &testServer{e: e, svc: svc, repo: repo, out: outDir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// runQueued processes the queued job the way the worker does.
func (s *testServer) runQueued(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	job, err := s.repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, s.svc.Process(ctx, job))
	require.NoError(t, s.repo.Complete(ctx, job.ID))
}

func TestBanner(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)
	rec := s.do(t, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "online", body["status"])
	assert.NotEmpty(t, body["recursos"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)
	rec := s.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Version)
}

func TestProcess_EndToEnd(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)

	rec := s.do(t, http.MethodPost, "/api/processar",
		`{"url":"`+testURL+`","inicio":60,"fim":"90","nome_arquivo":"meu audio"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ProcessResponse](t, rec)
	assert.True(t, resp.Sucesso)
	assert.Len(t, resp.IDProcesso, 8)
	assert.Equal(t, ProcessDetails{InicioSegundos: 60, FimSegundos: 90, DuracaoCorte: 30}, resp.Detalhes)

	rec = s.do(t, http.MethodGet, "/api/status/"+resp.IDProcesso, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tamanho_mb")
	assert.Equal(t, "processando", decode[StatusResponse](t, rec).Status)

	s.runQueued(t)

	rec = s.do(t, http.MethodGet, "/api/status/"+resp.IDProcesso, "")
	require.Equal(t, http.StatusOK, rec.Code)
	// 数バイトの成果物は0.00MBに丸められるが、項目自体は返す
	assert.Contains(t, rec.Body.String(), `"tamanho_mb":0`)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "concluido", status.Status)
	require.NotNil(t, status.TamanhoMB)
	assert.Zero(t, *status.TamanhoMB)
	assert.Equal(t, "meu_audio_"+resp.IDProcesso+".mp3", status.Arquivo)
	assert.Equal(t, "/api/download/"+resp.IDProcesso, status.DownloadURL)

	rec = s.do(t, http.MethodGet, status.DownloadURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), status.Arquivo)
	assert.Equal(t, "ID3 audio", rec.Body.String())
}

func TestProcess_Defaults(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)

	rec := s.do(t, http.MethodPost, "/api/processar", `{"url":"`+testURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProcessResponse](t, rec)
	assert.Equal(t, 0, resp.Detalhes.InicioSegundos)
	assert.Equal(t, 30, resp.Detalhes.FimSegundos)
}

func TestProcess_ValidationErrors(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing url", `{"inicio":0,"fim":30}`, "obrigatória"},
		{"bad host", `{"url":"https://example.com/v","inicio":0,"fim":30}`, "inválida"},
		{"end not after start", `{"url":"` + testURL + `","inicio":30,"fim":10}`, "maior que o inicial"},
		{"span too long", `{"url":"` + testURL + `","inicio":0,"fim":9000}`, "2 horas"},
		{"malformed", `{"url":`, "inválido"},
		{"non numeric", `{"url":"` + testURL + `","inicio":"abc"}`, "inválido"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/processar", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[ErrorResponse](t, rec).Erro, tt.want)
		})
	}

	list, err := s.svc.List(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProcess_QueueFull(t *testing.T) {
	s := newTestServer(t, stubProber{}, 1)
	body := `{"url":"` + testURL + `","inicio":0,"fim":30}`

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/processar", body).Code)
	rec := s.do(t, http.MethodPost, "/api/processar", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Erro)
}

func TestStatus_UnknownAndFailed(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)

	rec := s.do(t, http.MethodGet, "/api/status/deadbeef", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	job, err := s.svc.Submit(context.Background(), jobs.SubmitRequest{URL: testURL, Start: 0, End: 30})
	require.NoError(t, err)
	require.NoError(t, s.repo.Fail(context.Background(), job.ID, "all 4 download attempts failed"))

	rec = s.do(t, http.MethodGet, "/api/status/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "erro", status.Status)
	assert.Contains(t, status.Mensagem, "download attempts failed")
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)
	rec := s.do(t, http.MethodGet, "/api/download/deadbeef", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Arquivo não encontrado", decode[ErrorResponse](t, rec).Erro)
}

func TestPurge(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)
	require.NoError(t, os.WriteFile(filepath.Join(s.out, "x_aaaaaaaa.mp3"), []byte("x"), 0644))

	rec := s.do(t, http.MethodPost, "/api/limpar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PurgeResponse](t, rec)
	assert.True(t, resp.Sucesso)
	assert.Equal(t, 1, resp.ArquivosRemovidos)
	assert.NoFileExists(t, filepath.Join(s.out, "x_aaaaaaaa.mp3"))
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)

	rec := s.do(t, http.MethodPost, "/api/info", `{"url":"`+testURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[InfoResponse](t, rec)
	assert.True(t, info.Sucesso)
	assert.Equal(t, "Never Gonna Give You Up", info.Titulo)
	assert.Equal(t, 213, info.Duracao)
	assert.Equal(t, "3:33", info.DuracaoFormatada)
	assert.Equal(t, "Rick Astley", info.Autor)

	rec = s.do(t, http.MethodPost, "/api/info", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfo_ProbeFailure(t *testing.T) {
	s := newTestServer(t, stubProber{err: errors.New("video unavailable")}, 0)

	rec := s.do(t, http.MethodPost, "/api/info", `{"url":"`+testURL+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Erro, "Não foi possível")
}

func TestJobEndpoints(t *testing.T) {
	s := newTestServer(t, stubProber{}, 0)
	job, err := s.svc.Submit(context.Background(), jobs.SubmitRequest{URL: testURL, Start: 0, End: 30})
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/jobs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Job](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, job.ID, list[0].ID)

	rec = s.do(t, http.MethodGet, "/api/jobs/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"queued": 1}, decode[map[string]int](t, rec))

	rec = s.do(t, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/jobs/missing1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), job.ID)
}
