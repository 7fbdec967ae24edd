package reassembly

import (
	"bytes"
	"testing"
)

func frame(payload []byte) []byte {
	length := uint32(len(payload) + 4)
	out := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	return append(out, payload...)
}

func TestSplitFramesSingleComplete(t *testing.T) {
	f := frame([]byte("hello"))

	frames, consumed, err := SplitFrames(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(f) {
		t.Fatalf("expected all bytes consumed, got %d of %d", consumed, len(f))
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], f) {
		t.Fatalf("unexpected frames: %v", frames)
	}
}

func TestSplitFramesWaitsForMoreData(t *testing.T) {
	f := frame([]byte("hello world"))
	partial := f[:len(f)-3]

	frames, consumed, err := SplitFrames(partial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 0 || consumed != 0 {
		t.Fatalf("expected no frames yet, got %d frames, consumed %d", len(frames), consumed)
	}
}

func TestSplitFramesMultipleAndIdempotentAcrossBoundary(t *testing.T) {
	a := frame([]byte("AAAA"))
	b := frame([]byte("BB"))
	whole := append(append([]byte{}, a...), b...)

	// Split everything at once.
	framesWhole, consumedWhole, err := SplitFrames(whole)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumedWhole != len(whole) || len(framesWhole) != 2 {
		t.Fatalf("expected 2 frames fully consumed, got %d frames, consumed %d", len(framesWhole), consumedWhole)
	}

	// Split incrementally: first only `a` has arrived.
	framesPart, consumedPart, err := SplitFrames(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumedPart != len(a) || len(framesPart) != 1 {
		t.Fatalf("expected 1 frame from partial buffer, got %d, consumed %d", len(framesPart), consumedPart)
	}

	// Then `b` arrives, appended after dropping consumed bytes.
	remaining := append(append([]byte{}, a[consumedPart:]...), b...)
	framesRest, consumedRest, err := SplitFrames(remaining)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumedRest != len(remaining) || len(framesRest) != 1 {
		t.Fatalf("expected 1 frame from remainder, got %d, consumed %d", len(framesRest), consumedRest)
	}

	if !bytes.Equal(framesWhole[0], framesPart[0]) || !bytes.Equal(framesWhole[1], framesRest[0]) {
		t.Fatalf("incremental split diverged from whole-buffer split")
	}
}

func TestSplitFramesCorruptionIsFatal(t *testing.T) {
	oversized := []byte{0xFF, 0xFF, 0xFF, 0xFF}

	_, _, err := SplitFrames(oversized)
	if err == nil {
		t.Fatalf("expected an error for an oversized length prefix")
	}
	if _, ok := err.(ErrFrameTooLarge); !ok {
		t.Fatalf("expected ErrFrameTooLarge, got %T", err)
	}
}
