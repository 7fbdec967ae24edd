// Package metrics tracks process counters for the capture and
// reassembly pipeline as Prometheus metrics. There is no HTTP
// scrape surface: the counters are process-internal and are only
// ever surfaced via LogSnapshot, which a caller invokes on its own
// schedule (see internal/app's auto-save ticker).
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

var (
	// PacketsCaptured counts raw link-layer frames read off the wire.
	PacketsCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scenewatch_packets_captured_total",
		Help: "Link-layer frames read from the capture device.",
	})

	// FramesDecoded counts application frames successfully split out of a
	// reassembled TCP stream, by decode outcome.
	FramesDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenewatch_frames_decoded_total",
		Help: "Application frames handed to the decoder, by outcome.",
	}, []string{"outcome"})

	// ReassemblyDrops counts discarded fragments/segments, by reason.
	ReassemblyDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenewatch_reassembly_drops_total",
		Help: "Fragments or TCP segments dropped during reassembly, by reason.",
	}, []string{"reason"})

	// SceneServerLocks counts how many times the signature matcher has
	// locked onto a scene-server flow.
	SceneServerLocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scenewatch_scene_server_locks_total",
		Help: "Number of times a scene-server flow has been identified.",
	})
)

func init() {
	prometheus.MustRegister(PacketsCaptured, FramesDecoded, ReassemblyDrops, SceneServerLocks)
}

// LogSnapshot gathers the registered counters and writes them to log at
// debug level, one field per metric series. It is the only consumer of
// these counters; there is no HTTP metrics endpoint.
func LogSnapshot(log *zap.Logger) {
	if log == nil {
		return
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Debug("metrics snapshot gather failed", zap.Error(err))
		return
	}

	fields := make([]zap.Field, 0, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields = append(fields, zap.Float64(seriesName(mf.GetName(), m), counterValue(m)))
		}
	}

	log.Debug("metrics snapshot", fields...)
}

func counterValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func seriesName(name string, m *dto.Metric) string {
	labels := m.GetLabel()
	if len(labels) == 0 {
		return name
	}

	sort.Slice(labels, func(i, j int) bool { return labels[i].GetName() < labels[j].GetName() })

	out := name
	for _, l := range labels {
		out += "." + l.GetName() + "=" + l.GetValue()
	}
	return out
}
