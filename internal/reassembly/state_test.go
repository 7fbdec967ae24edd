package reassembly

import (
	"testing"
	"time"
)

func TestFlowStateLocksOnSignatureAndReassembles(t *testing.T) {
	fs := NewFlowState()
	now := time.Now()

	client := FiveTuple{SrcIP: "10.0.0.1", SrcPort: 1234, DstIP: "10.0.0.2", DstPort: 80}

	signature := buildFrameDownPayload()

	lockFrames, err := fs.HandleSegment(client, 1000, 0, signature, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lockFrames) != 0 {
		t.Fatalf("expected no frames from the locking segment itself")
	}

	tuple, dir, locked := fs.Locked()
	if !locked {
		t.Fatalf("expected flow to be locked after signature match")
	}
	if tuple != client || dir != DirSameAsObserved {
		t.Fatalf("unexpected lock state: %+v %v", tuple, dir)
	}

	seededSeq := uint32(1000) + uint32(len(signature))

	frames, err := fs.HandleSegment(client, seededSeq, 0, frame([]byte("payload")), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one complete frame, got %d", len(frames))
	}
}

func TestFlowStateIgnoresOtherFlowsOnceLocked(t *testing.T) {
	fs := NewFlowState()
	now := time.Now()

	client := FiveTuple{SrcIP: "10.0.0.1", SrcPort: 1234, DstIP: "10.0.0.2", DstPort: 80}
	other := FiveTuple{SrcIP: "10.0.0.9", SrcPort: 5555, DstIP: "10.0.0.2", DstPort: 80}

	signature := buildFrameDownPayload()
	if _, err := fs.HandleSegment(client, 1000, 0, signature, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames, err := fs.HandleSegment(other, 1, 0, frame([]byte("noise")), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frames != nil {
		t.Fatalf("expected segments outside the locked flow to be ignored")
	}
}

func TestFlowStateStallUnlocks(t *testing.T) {
	fs := NewFlowState()
	old := time.Now().Add(-time.Minute)

	client := FiveTuple{SrcIP: "10.0.0.1", SrcPort: 1234, DstIP: "10.0.0.2", DstPort: 80}
	signature := buildFrameDownPayload()

	if _, err := fs.HandleSegment(client, 1000, 0, signature, old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seededSeq := uint32(1000) + uint32(len(signature))
	if _, err := fs.HandleSegment(client, seededSeq, 0, frame([]byte("payload")), old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stalled := fs.CheckStall(time.Now()); !stalled {
		t.Fatalf("expected stall to be detected")
	}

	if _, _, locked := fs.Locked(); locked {
		t.Fatalf("expected flow to unlock after stall")
	}
}

func TestFlowStateFatalCorruption(t *testing.T) {
	fs := NewFlowState()
	now := time.Now()

	client := FiveTuple{SrcIP: "10.0.0.1", SrcPort: 1234, DstIP: "10.0.0.2", DstPort: 80}
	signature := buildFrameDownPayload()

	if _, err := fs.HandleSegment(client, 1000, 0, signature, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	corrupt := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	_, err := fs.HandleSegment(client, 1000+uint32(len(signature)), 0, corrupt, now)
	if err == nil {
		t.Fatalf("expected a fatal frame-corruption error")
	}
}
