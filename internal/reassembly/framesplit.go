package reassembly

import "encoding/binary"

// maxFrameLen is the corruption threshold from spec.md §4.6: legitimate
// application frames are always small, so anything claiming to be larger
// indicates the byte stream has desynchronised catastrophically.
const maxFrameLen = 0x0FFFFF

// ErrFrameTooLarge is returned by SplitFrames when a length prefix exceeds
// maxFrameLen. Per spec.md §7/§9 this is treated as fatal by the caller.
type ErrFrameTooLarge struct{ Length uint32 }

func (e ErrFrameTooLarge) Error() string {
	return "frame length exceeds maximum plausible size"
}

// SplitFrames repeatedly reads a 4-byte big-endian length prefix L from
// the head of buf and, once at least L bytes are available, yields the
// first L bytes (the prefix included) as one complete frame. It returns
// every complete frame found, plus the number of bytes consumed from the
// front of buf (the caller should drop these via TCPReassembler.Consume).
// Splitting is idempotent across buffer boundaries: calling SplitFrames on
// a prefix of the stream, then again once more bytes have arrived, yields
// the same frames as calling it once on the concatenation.
func SplitFrames(buf []byte) (frames [][]byte, consumed int, err error) {
	for {
		remaining := buf[consumed:]
		if len(remaining) < 4 {
			return frames, consumed, nil
		}

		length := binary.BigEndian.Uint32(remaining[0:4])
		if length > maxFrameLen {
			return frames, consumed, ErrFrameTooLarge{Length: length}
		}

		if len(remaining) < int(length) {
			return frames, consumed, nil
		}

		frame := make([]byte, length)
		copy(frame, remaining[:length])
		frames = append(frames, frame)
		consumed += int(length)
	}
}
