// Package api implements the HTTP/WebSocket query and broadcast surface
// (C9): a read-mostly view over the statistics engine plus pause/clear/
// settings control endpoints.
package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/google/gopacket/pcap"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/settings"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/stats"
)

// Handler holds the collaborators every endpoint needs. It carries no
// per-request state, so a single instance is shared across all handlers.
type Handler struct {
	engine    *stats.Engine
	settings  *settings.Store
	log       *zap.Logger
	logsDir   string
	pcapStats func() (pcap.Stats, error)

	hub *broadcastHub
}

// apiResponse is the envelope every JSON endpoint replies with:
// code 0 means success, nonzero means msg carries the failure reason.
type apiResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, apiResponse{Code: 0, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, apiResponse{Code: 1, Msg: msg})
}

// NewHandler builds the API handler. logsDir is needed directly (rather
// than only through engine) so history endpoints can stat files without
// going through a statistics-engine method for every read. pcapStats is
// the capture source's own stats reader; it is nil-safe so tests that
// build a Handler without a live capture device can leave it unset.
func NewHandler(engine *stats.Engine, st *settings.Store, logsDir string, log *zap.Logger, pcapStats func() (pcap.Stats, error)) *Handler {
	return &Handler{
		engine:    engine,
		settings:  st,
		logsDir:   logsDir,
		log:       log,
		pcapStats: pcapStats,
		hub:       newBroadcastHub(log),
	}
}

// NewEcho builds an echo instance with the middleware the teacher's HTTP
// surface relies on (request logging, panic recovery) plus permissive CORS,
// and registers every route.
func (h *Handler) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
	}))

	h.registerRoutes(e)

	return e
}

// GetData handles GET /api/data.
func (h *Handler) GetData(c echo.Context) error {
	return ok(c, h.engine.Manager().Snapshot())
}

// GetEnemies handles GET /api/enemies.
func (h *Handler) GetEnemies(c echo.Context) error {
	snap := h.engine.Manager().Snapshot()
	return ok(c, map[string]interface{}{"enemy": snap.Enemy})
}

// GetClear handles GET /api/clear.
func (h *Handler) GetClear(c echo.Context) error {
	h.engine.ClearAll(nowMillis())
	return ok(c, nil)
}

// GetPause handles GET /api/pause.
func (h *Handler) GetPause(c echo.Context) error {
	return ok(c, map[string]bool{"paused": h.engine.Paused()})
}

// pauseRequest is the body of POST /api/pause.
type pauseRequest struct {
	Paused bool `json:"paused"`
}

// PostPause handles POST /api/pause.
func (h *Handler) PostPause(c echo.Context) error {
	var req pauseRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	h.engine.SetPaused(req.Paused)

	return ok(c, map[string]bool{"paused": req.Paused})
}

// GetSkill handles GET /api/skill/:uid.
func (h *Handler) GetSkill(c echo.Context) error {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid uid")
	}

	snap, found := h.engine.Manager().SkillSnapshot(uid)
	if !found {
		return fail(c, http.StatusNotFound, "unknown uid")
	}

	return ok(c, snap)
}

// GetHistoryList handles GET /api/history/list.
func (h *Handler) GetHistoryList(c echo.Context) error {
	list, err := stats.ListHistory(h.logsDir)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return ok(c, list)
}

// GetHistorySummary handles GET /api/history/:ts/summary.
func (h *Handler) GetHistorySummary(c echo.Context) error {
	return h.serveHistoryFile(c, stats.HistorySummaryPath)
}

// GetHistoryData handles GET /api/history/:ts/data.
func (h *Handler) GetHistoryData(c echo.Context) error {
	return h.serveHistoryFile(c, stats.HistoryDataPath)
}

// GetHistorySkill handles GET /api/history/:ts/skill/:uid.
func (h *Handler) GetHistorySkill(c echo.Context) error {
	ts := c.Param("ts")
	if !stats.IsValidHistoryTimestamp(ts) {
		return fail(c, http.StatusNotFound, "unknown session")
	}

	path := stats.HistorySkillPath(h.logsDir, ts, c.Param("uid"))

	return h.serveFile(c, path)
}

// GetHistoryDownload handles GET /api/history/:ts/download, serving
// fight.log as a file attachment.
func (h *Handler) GetHistoryDownload(c echo.Context) error {
	ts := c.Param("ts")
	if !stats.IsValidHistoryTimestamp(ts) {
		return fail(c, http.StatusNotFound, "unknown session")
	}

	path := stats.HistoryLogPath(h.logsDir, ts)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fail(c, http.StatusNotFound, "no fight log for session")
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return c.Attachment(path, "fight.log")
}

func (h *Handler) serveHistoryFile(c echo.Context, pathFor func(logsDir, ts string) string) error {
	ts := c.Param("ts")
	if !stats.IsValidHistoryTimestamp(ts) {
		return fail(c, http.StatusNotFound, "unknown session")
	}

	return h.serveFile(c, pathFor(h.logsDir, ts))
}

func (h *Handler) serveFile(c echo.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(c, http.StatusNotFound, "not found")
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSONBlob(http.StatusOK, data)
}

// GetCaptureStats handles GET /api/capture/stats, surfacing pcap's own
// packets-received/dropped counters for operational visibility.
func (h *Handler) GetCaptureStats(c echo.Context) error {
	if h.pcapStats == nil {
		return fail(c, http.StatusServiceUnavailable, "no capture device attached")
	}

	stats, err := h.pcapStats()
	if err != nil {
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return ok(c, map[string]int{
		"packetsReceived":  stats.PacketsReceived,
		"packetsDropped":   stats.PacketsDropped,
		"packetsIfDropped": stats.PacketsIfDropped,
	})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(c echo.Context) error {
	return ok(c, h.settings.All())
}

// PostSettings handles POST /api/settings: a merge-write over the current
// settings document.
func (h *Handler) PostSettings(c echo.Context) error {
	var updates map[string]interface{}
	if err := c.Bind(&updates); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	if err := h.settings.Merge(updates); err != nil {
		return fail(c, http.StatusInternalServerError, err.Error())
	}

	return ok(c, h.settings.All())
}
