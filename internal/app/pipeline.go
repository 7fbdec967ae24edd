// Package app wires the capture, reassembly, decoder and statistics
// components into the single processing pipeline described in spec.md §5,
// and owns the HTTP/WebSocket surface and signal-driven shutdown (C10).
package app

import (
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/capture"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/decoder"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/reassembly"
)

// Pipeline runs components C2-C7 for one captured link-layer frame at a
// time. HandleFrame is not safe for concurrent use by more than one
// goroutine; the processing task is its sole caller (spec.md §5, task 2).
// EvictStale, called from the auto-save ticker, only touches FlowState,
// which does its own locking.
type Pipeline struct {
	linkType int
	flow     *reassembly.FlowState
	decoder  *decoder.Decoder
	log      *zap.Logger

	onServerChange func(tuple reassembly.FiveTuple)

	lastTuple reassembly.FiveTuple
	wasLocked bool
}

// NewPipeline builds a Pipeline reading frames captured under linkType and
// dispatching decoded events to sink.
func NewPipeline(linkType int, sink decoder.EventSink, log *zap.Logger, onServerChange func(reassembly.FiveTuple)) (*Pipeline, error) {
	dec, err := decoder.New(sink, log)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		linkType:       linkType,
		flow:           reassembly.NewFlowState(),
		decoder:        dec,
		log:            log,
		onServerChange: onServerChange,
	}, nil
}

// Close releases the decoder's resources.
func (p *Pipeline) Close() {
	p.decoder.Close()
}

// HandleFrame strips the link-layer header, reassembles IPv4 fragments,
// locates the locked TCP flow, reassembles its byte stream and splits out
// application frames, dispatching each to the decoder. A frame-length
// corruption (spec.md §4.6) is fatal: the process exits after logging.
func (p *Pipeline) HandleFrame(f capture.Frame) {
	metrics.PacketsCaptured.Inc()

	ipPayload, ok := capture.StripLinkLayer(p.linkType, f.Payload)
	if !ok {
		return
	}

	var ip4 layers.IPv4
	if err := ip4.DecodeFromBytes(ipPayload, gopacket.NilDecodeFeedback); err != nil {
		return
	}

	if ip4.Protocol != layers.IPProtocolTCP {
		return
	}

	segment := ip4.Payload

	fragOffset := int(ip4.FragOffset) * 8
	moreFragments := ip4.Flags&layers.IPv4MoreFragments != 0
	if moreFragments || fragOffset > 0 {
		key := reassembly.FragKey{ID: ip4.Id, Src: ip4.SrcIP.String(), Dst: ip4.DstIP.String(), Proto: byte(ip4.Protocol)}

		reassembled, complete := p.flow.HandleFragment(key, fragOffset, segment, moreFragments, f.Timestamp)
		if !complete {
			return
		}

		segment = reassembled
	}

	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(segment, gopacket.NilDecodeFeedback); err != nil {
		return
	}

	if len(tcp.Payload) == 0 {
		return
	}

	tuple := reassembly.FiveTuple{
		SrcIP:   ip4.SrcIP.String(),
		SrcPort: uint16(tcp.SrcPort),
		DstIP:   ip4.DstIP.String(),
		DstPort: uint16(tcp.DstPort),
	}

	frames, err := p.flow.HandleSegment(tuple, tcp.Seq, tcp.Ack, tcp.Payload, f.Timestamp)
	if err != nil {
		metrics.ReassemblyDrops.WithLabelValues("frame_too_large").Inc()
		if p.log != nil {
			p.log.Error("application frame corrupted beyond recovery, terminating", zap.Error(err))
		}
		os.Exit(1)
	}

	p.notifyServerChange()

	for _, frame := range frames {
		if len(frame) < 4 {
			metrics.FramesDecoded.WithLabelValues("undersized").Inc()
			continue
		}
		metrics.FramesDecoded.WithLabelValues("ok").Inc()
		p.decoder.Decode(frame[4:])
	}
}

// notifyServerChange fires onServerChange whenever the locked five-tuple
// differs from the last frame processed, covering both a fresh lock and a
// hand-off to a different server.
func (p *Pipeline) notifyServerChange() {
	tuple, _, locked := p.flow.Locked()

	changed := locked && (!p.wasLocked || tuple != p.lastTuple)

	p.wasLocked = locked
	p.lastTuple = tuple

	if changed {
		metrics.SceneServerLocks.Inc()
		if p.onServerChange != nil {
			p.onServerChange(tuple)
		}
	}
}

// EvictStale runs the periodic maintenance the auto-save ticker is
// responsible for: IP fragment eviction and TCP stall detection
// (spec.md §5, task 4).
func (p *Pipeline) EvictStale(now time.Time) {
	p.flow.EvictStaleFragments(now)
	p.flow.CheckStall(now)
}
