package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"

	"recorte/internal/jobs"
)

// APIHandler は切り出しAPIのハンドラー
type APIHandler struct {
	svc    *jobs.Service
	logger hclog.Logger
}

// NewAPIHandler は新しいAPIHandlerを作成
func NewAPIHandler(svc *jobs.Service, logger hclog.Logger) *APIHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &APIHandler{svc: svc, logger: logger.Named("api")}
}

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Erro string `json:"erro"`
}

// flexInt は数値と数値文字列の両方を受け付ける
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			return nil
		}
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.New("número inválido")
	}
	f.Value = int(v)
	f.Set = true
	return nil
}

func (f flexInt) or(def int) int {
	if !f.Set {
		return def
	}
	return f.Value
}

// ProcessRequest は /api/processar のリクエスト
type ProcessRequest struct {
	URL         string  `json:"url"`
	Inicio      flexInt `json:"inicio"`
	Fim         flexInt `json:"fim"`
	NomeArquivo string  `json:"nome_arquivo"`
}

// ProcessDetails は受付時の区間情報
type ProcessDetails struct {
	InicioSegundos int `json:"inicio_segundos"`
	FimSegundos    int `json:"fim_segundos"`
	DuracaoCorte   int `json:"duracao_corte"`
}

// ProcessResponse は /api/processar のレスポンス
type ProcessResponse struct {
	Sucesso    bool           `json:"sucesso"`
	IDProcesso string         `json:"id_processo"`
	Mensagem   string         `json:"mensagem"`
	Detalhes   ProcessDetails `json:"detalhes"`
}

// Process はジョブを受け付ける
func (h *APIHandler) Process(c echo.Context) error {
	var req ProcessRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Erro: "Corpo da requisição inválido"})
	}

	// 省略時は0〜30秒
	start := req.Inicio.or(0)
	end := req.Fim.or(30)

	job, err := h.svc.Submit(c.Request().Context(), jobs.SubmitRequest{
		URL:   req.URL,
		Start: start,
		End:   end,
		Name:  req.NomeArquivo,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, ProcessResponse{
		Sucesso:    true,
		IDProcesso: job.ID,
		Mensagem:   "Processamento iniciado",
		Detalhes: ProcessDetails{
			InicioSegundos: job.Start,
			FimSegundos:    job.End,
			DuracaoCorte:   job.Span(),
		},
	})
}

// StatusResponse は /api/status のレスポンス
type StatusResponse struct {
	Sucesso     bool     `json:"sucesso"`
	Status      string   `json:"status"`
	Arquivo     string   `json:"arquivo,omitempty"`
	TamanhoMB   *float64 `json:"tamanho_mb,omitempty"` // 完了時は0でも出力する
	DownloadURL string   `json:"download_url,omitempty"`
	Mensagem    string   `json:"mensagem,omitempty"`
	Etapa       string   `json:"etapa,omitempty"`
	Progresso   int      `json:"progresso,omitempty"`
}

// Status はジョブの状態を返す
func (h *APIHandler) Status(c echo.Context) error {
	id := c.Param("id")
	report, err := h.svc.Status(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}

	resp := StatusResponse{
		Sucesso:   true,
		Status:    string(report.State),
		Mensagem:  report.Message,
		Etapa:     report.Step,
		Progresso: report.Progress,
	}
	if report.State == jobs.StateDone {
		resp.Arquivo = report.Filename
		size := report.SizeMB
		resp.TamanhoMB = &size
		resp.DownloadURL = "/api/download/" + id
	}
	return c.JSON(http.StatusOK, resp)
}

// Download は成果物を添付ファイルとして返す
func (h *APIHandler) Download(c echo.Context) error {
	artifact, err := h.svc.Locate(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Erro: "Arquivo não encontrado"})
		}
		return h.fail(c, err)
	}
	return c.Attachment(artifact.Path, artifact.Name)
}

// PurgeResponse は /api/limpar のレスポンス
type PurgeResponse struct {
	Sucesso            bool   `json:"sucesso"`
	Mensagem           string `json:"mensagem"`
	ArquivosRemovidos  int    `json:"arquivos_removidos"`
	ProcessosRemovidos int64  `json:"processos_removidos"`
}

// Purge は管理ディレクトリのファイルを削除する
func (h *APIHandler) Purge(c echo.Context) error {
	res, err := h.svc.Purge(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, PurgeResponse{
		Sucesso:            true,
		Mensagem:           "Arquivos limpos",
		ArquivosRemovidos:  res.Files,
		ProcessosRemovidos: res.Jobs,
	})
}

// InfoRequest は /api/info のリクエスト
type InfoRequest struct {
	URL string `json:"url"`
}

// InfoResponse は /api/info のレスポンス
type InfoResponse struct {
	Sucesso          bool   `json:"sucesso"`
	Titulo           string `json:"titulo"`
	Duracao          int    `json:"duracao"`
	DuracaoFormatada string `json:"duracao_formatada"`
	Autor            string `json:"autor"`
	Thumbnail        string `json:"thumbnail"`
}

// Info は動画のメタ情報を返す
func (h *APIHandler) Info(c echo.Context) error {
	var req InfoRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Erro: "Corpo da requisição inválido"})
	}

	info, err := h.svc.Info(c.Request().Context(), req.URL)
	if err != nil {
		if jobs.IsValidation(err) {
			return h.fail(c, err)
		}
		h.logger.Warn("metadata probe failed", "err", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Erro: "Não foi possível obter informações do vídeo"})
	}

	return c.JSON(http.StatusOK, InfoResponse{
		Sucesso:          true,
		Titulo:           info.Title,
		Duracao:          info.DurationSeconds(),
		DuracaoFormatada: info.FormattedDuration(),
		Autor:            info.Author,
		Thumbnail:        info.Thumbnail,
	})
}

// fail はエラーをHTTPステータスに変換する
func (h *APIHandler) fail(c echo.Context, err error) error {
	switch {
	case jobs.IsValidation(err):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Erro: err.Error()})
	case errors.Is(err, jobs.ErrQueueFull):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Erro: "Servidor ocupado, tente novamente em instantes"})
	case errors.Is(err, jobs.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Erro: "Processo não encontrado"})
	}
	h.logger.Error("request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Erro: "Erro interno do servidor"})
}
