package handlers

import "github.com/labstack/echo/v4"

// Register はルートを登録する
func Register(e *echo.Echo, api *APIHandler, jobs *JobHandler, health *HealthHandler) {
	e.GET("/", Banner)
	e.GET("/health", health.Health)

	e.POST("/api/info", api.Info)
	e.POST("/api/processar", api.Process)
	e.GET("/api/status/:id", api.Status)
	e.GET("/api/download/:id", api.Download)
	e.POST("/api/limpar", api.Purge)

	e.GET("/api/jobs", jobs.List)
	e.GET("/api/jobs/stats", jobs.Stats)
	e.GET("/api/jobs/:id", jobs.Get)
	e.GET("/jobs", jobs.ListPage)
}
