package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSnapshotEmitsRegisteredCounters(t *testing.T) {
	PacketsCaptured.Add(3)
	FramesDecoded.WithLabelValues("ok").Inc()

	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	LogSnapshot(log)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "metrics snapshot", entry.Message)

	found := false
	for _, f := range entry.Context {
		if f.Key == "scenewatch_packets_captured_total" {
			found = true
			require.GreaterOrEqual(t, math.Float64frombits(uint64(f.Integer)), float64(3))
		}
	}
	require.True(t, found, "expected packets-captured series in snapshot fields")
}

func TestLogSnapshotNilLoggerIsNoOp(t *testing.T) {
	LogSnapshot(nil)
}
