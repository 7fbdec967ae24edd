package api

import "github.com/labstack/echo/v4"

func (h *Handler) registerRoutes(e *echo.Echo) {
	e.GET("/api/data", h.GetData)
	e.GET("/api/enemies", h.GetEnemies)
	e.GET("/api/clear", h.GetClear)
	e.GET("/api/pause", h.GetPause)
	e.POST("/api/pause", h.PostPause)
	e.GET("/api/skill/:uid", h.GetSkill)
	e.GET("/api/capture/stats", h.GetCaptureStats)

	e.GET("/api/history/list", h.GetHistoryList)
	e.GET("/api/history/:ts/summary", h.GetHistorySummary)
	e.GET("/api/history/:ts/data", h.GetHistoryData)
	e.GET("/api/history/:ts/skill/:uid", h.GetHistorySkill)
	e.GET("/api/history/:ts/download", h.GetHistoryDownload)

	e.GET("/api/settings", h.GetSettings)
	e.POST("/api/settings", h.PostSettings)

	e.GET("/ws", h.ServeWS)
}
