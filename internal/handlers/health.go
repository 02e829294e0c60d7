package handlers

import (
	"net/http"

	"recorte/internal/version"

	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v4/disk"
)

// HealthHandler はヘルスチェックのハンドラー
type HealthHandler struct {
	outputDir string
	logger    hclog.Logger
}

// NewHealthHandler は新しいHealthHandlerを作成
func NewHealthHandler(outputDir string, logger hclog.Logger) *HealthHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HealthHandler{outputDir: outputDir, logger: logger.Named("health")}
}

// DiskStatus は出力ディレクトリのディスク使用量
type DiskStatus struct {
	Path        string  `json:"path"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthResponse は /health のレスポンス
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Disk    *DiskStatus `json:"disk,omitempty"`
}

// Health はサービスの状態を返す
func (h *HealthHandler) Health(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: version.Version}

	usage, err := disk.UsageWithContext(c.Request().Context(), h.outputDir)
	if err != nil {
		h.logger.Warn("failed to read disk usage", "path", h.outputDir, "err", err)
	} else {
		resp.Disk = &DiskStatus{
			Path:        h.outputDir,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	}

	return c.JSON(http.StatusOK, resp)
}
