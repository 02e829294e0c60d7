package handlers

import (
	"net/http"

	"recorte/internal/version"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Banner はサービスの概要を返す
func Banner(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"mensagem": "YouTube Audio API - Recorte",
		"status":   "online",
		"versao":   version.Version,
		"recursos": []string{
			"Corte preciso com FFmpeg",
			"Fade in/out automático",
			"Validação de tempos",
			"Nomes de arquivo personalizados",
			"Múltiplas tentativas de download",
			"Fila de processos com limite de concorrência",
		},
		"endpoints": map[string]string{
			"POST /api/info":         "Informações do vídeo",
			"POST /api/processar":    "Iniciar corte",
			"GET  /api/status/:id":   "Verificar status",
			"GET  /api/download/:id": "Baixar áudio",
			"POST /api/limpar":       "Limpar arquivos",
			"GET  /api/jobs":         "Listar processos",
			"GET  /api/jobs/stats":   "Estatísticas",
			"GET  /jobs":             "Página de processos",
			"GET  /health":           "Saúde do serviço",
		},
	})
}

func render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return component.Render(c.Request().Context(), c.Response())
}
