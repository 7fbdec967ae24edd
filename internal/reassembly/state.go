package reassembly

import (
	"sync"
	"time"
)

// FlowState is the single point of synchronization for components C3-C6:
// IPv4 defragmentation, scene-server flow identification, TCP byte-stream
// reconstruction and application frame splitting. Exactly one TCP flow is
// ever locked onto at a time (spec.md §5) so all of this state lives
// behind one mutex rather than being keyed per-connection.
type FlowState struct {
	mu sync.Mutex

	ip  *IPReassembler
	tcp *TCPReassembler

	locked    bool
	tuple     FiveTuple
	direction Direction
}

// NewFlowState builds an unlocked flow state ready to scan for a
// scene-server signature.
func NewFlowState() *FlowState {
	return &FlowState{
		ip:  NewIPReassembler(),
		tcp: NewTCPReassembler(),
	}
}

// HandleFragment folds one IPv4 fragment into the shared defragmentation
// cache, independent of whether a flow is currently locked: the signature
// scan needs fully reassembled datagrams for every candidate flow, not
// just the locked one.
func (f *FlowState) HandleFragment(key FragKey, fragOffset int, payload []byte, moreFragments bool, now time.Time) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ip.Add(key, fragOffset, payload, moreFragments, now)
}

// EvictStaleFragments drops fragment trains idle for more than 30s.
func (f *FlowState) EvictStaleFragments(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ip.EvictStale(now)
}

// Locked reports whether a scene-server flow is currently identified, and
// which five-tuple/direction it is locked onto.
func (f *FlowState) Locked() (FiveTuple, Direction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.tuple, f.direction, f.locked
}

// Unlock drops the current flow lock and clears the TCP reassembler,
// returning to the unlocked signature-scanning state (spec.md §4.4's
// "lock onto 5-tuple, clear reassembler" transition, run in reverse when
// the server changes).
func (f *FlowState) Unlock() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.locked = false
	f.tuple = FiveTuple{}
	f.tcp.Reset()
}

// HandleSegment feeds one TCP segment into the pipeline. If no flow is
// locked yet, the payload is first checked against the three scene-server
// signatures; a match locks onto the implied five-tuple and seeds the TCP
// reassembler. Segments outside the locked flow are ignored (frames is
// nil, err is nil). err is non-nil only when the frame splitter hits a
// length prefix above the corruption threshold, which the caller must
// treat as fatal (spec.md §7).
func (f *FlowState) HandleSegment(tuple FiveTuple, seq, ack uint32, payload []byte, now time.Time) (frames [][]byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.locked {
		m, ok := MatchSignature(payload, seq, ack)
		if !ok {
			return nil, nil
		}

		f.locked = true
		f.direction = m.Direction
		if m.Direction == DirReversed {
			f.tuple = tuple.Reverse()
		} else {
			f.tuple = tuple
		}

		f.tcp.Seed(m.SeedSeq)
	}

	if tuple != f.tuple {
		return nil, nil
	}

	f.tcp.Feed(seq, payload, now)

	buf := f.tcp.Bytes()
	frames, consumed, splitErr := SplitFrames(buf)
	f.tcp.Consume(consumed)

	return frames, splitErr
}

// CheckStall resets the TCP reassembler and drops the lock if the locked
// flow has gone silent for more than 30s, returning true if it did.
func (f *FlowState) CheckStall(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.locked {
		return false
	}

	if f.tcp.CheckStall(now) {
		f.locked = false
		f.tuple = FiveTuple{}
		return true
	}

	return false
}
