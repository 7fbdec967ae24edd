package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/api"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/capture"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/reassembly"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/settings"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/stats"
)

// Config gathers everything App needs to start, already resolved by the
// cmd entrypoint (device name, log level, file paths).
type Config struct {
	Device       string
	Version      string
	CachePath    string
	LogsDir      string
	SettingsPath string
}

// App composes the capture source, processing pipeline, statistics
// engine and HTTP/WebSocket surface into the running collector
// (component C10).
type App struct {
	log *zap.Logger

	source   *capture.Source
	pipeline *Pipeline
	engine   *stats.Engine
	api      *api.Handler

	cancel context.CancelFunc
}

// New opens the capture device and wires every component together. It
// does not block; call Run to start the processing loop and HTTP server.
func New(cfg Config, log *zap.Logger) (*App, error) {
	st, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	engine, err := stats.New(cfg.CachePath, cfg.LogsDir, st, log, cfg.Version, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("init statistics engine: %w", err)
	}

	src, err := capture.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open capture device %q: %w", cfg.Device, err)
	}

	apiHandler := api.NewHandler(engine, st, cfg.LogsDir, log, src.Stats)

	pipeline, err := NewPipeline(src.LinkType(), engine, log, func(tuple reassembly.FiveTuple) {
		log.Info("locked onto scene-server flow", zap.String("src", tuple.SrcIP), zap.Uint16("srcPort", tuple.SrcPort), zap.String("dst", tuple.DstIP), zap.Uint16("dstPort", tuple.DstPort))
		engine.ClearDataOnServerChange(time.Now().UnixMilli())
	})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	return &App{
		log:      log,
		source:   src,
		pipeline: pipeline,
		engine:   engine,
		api:      apiHandler,
	}, nil
}

// Run starts every background task and blocks until ctx is canceled. The
// caller is expected to cancel ctx from a signal handler.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	go a.engine.RunRealtimeTicker(ctx, a.api.OnTick)
	go a.engine.RunAutoSaveTicker(ctx, func(nowMs int64) {
		a.pipeline.EvictStale(time.UnixMilli(nowMs))
		metrics.LogSnapshot(a.log)
	})
	go a.processLoop(ctx)

	ln, port, err := api.Listen()
	if err != nil {
		return fmt.Errorf("bind http server: %w", err)
	}

	e := a.api.NewEcho()
	e.Listener = ln

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	a.log.Info("http surface listening", zap.String("url", url))
	go api.OpenBrowser(url, a.log)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start("") }()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return e.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// processLoop is the single processing task described in spec.md §5: it
// drains captured frames and runs C2-C7 to completion for each one.
func (a *App) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-a.source.Frames():
			if !ok {
				return
			}
			a.pipeline.HandleFrame(frame)
		}
	}
}

// Shutdown stops capture and flushes the statistics engine, in that
// order so no in-flight frame is lost mid-write.
func (a *App) Shutdown() error {
	if a.cancel != nil {
		a.cancel()
	}

	a.source.Close()
	a.pipeline.Close()

	return a.engine.Shutdown()
}
