// Package reassembly implements IP defragmentation, TCP stream
// reconstruction, scene-server flow identification and application frame
// splitting (components C3-C6 of the pipeline).
package reassembly

import (
	"sort"
	"sync"
	"time"
)

// FragKey identifies one IPv4 fragment train.
type FragKey struct {
	ID    uint16
	Src   string
	Dst   string
	Proto byte
}

type fragPiece struct {
	offset  int
	payload []byte
}

type fragEntry struct {
	pieces     []fragPiece
	haveLast   bool
	totalLen   int
	lastTouch  time.Time
}

// ipFragmentTimeout is the inactivity window after which a partially
// reassembled datagram is evicted (spec.md §4.3).
const ipFragmentTimeout = 30 * time.Second

// IPReassembler buffers IPv4 fragments keyed by (id, src, dst, proto) and
// emits a full datagram payload once the collected pieces fully cover the
// range implied by the last fragment, however it was ordered on arrival.
type IPReassembler struct {
	mu    sync.Mutex
	frags map[FragKey]*fragEntry
}

// NewIPReassembler builds an empty reassembler.
func NewIPReassembler() *IPReassembler {
	return &IPReassembler{frags: make(map[FragKey]*fragEntry)}
}

// Add folds one IPv4 fragment into the train for key. fragOffset is in
// bytes (already multiplied by 8 from the wire field). moreFragments is
// the packet's MF flag. Returns the reassembled payload and true once the
// train is complete; overlapping regions resolve last-writer-wins, using
// arrival order (spec.md §9, documented divergence from first-wins
// middlebox behavior).
func (r *IPReassembler) Add(key FragKey, fragOffset int, payload []byte, moreFragments bool, now time.Time) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.frags[key]
	if !ok {
		e = &fragEntry{}
		r.frags[key] = e
	}

	e.pieces = append(e.pieces, fragPiece{offset: fragOffset, payload: payload})
	e.lastTouch = now

	if !moreFragments {
		e.haveLast = true
		if end := fragOffset + len(payload); end > e.totalLen {
			e.totalLen = end
		}
	}

	if !e.haveLast || !coversFully(e.pieces, e.totalLen) {
		return nil, false
	}

	out := make([]byte, e.totalLen)
	for _, p := range e.pieces {
		copy(out[p.offset:], p.payload)
	}

	delete(r.frags, key)

	return out, true
}

// coversFully reports whether pieces, taken as byte ranges, cover
// [0, total) without any gap.
func coversFully(pieces []fragPiece, total int) bool {
	if total == 0 {
		return false
	}

	type interval struct{ start, end int }

	ivs := make([]interval, len(pieces))
	for i, p := range pieces {
		ivs[i] = interval{start: p.offset, end: p.offset + len(p.payload)}
	}

	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })

	covered := 0
	for _, iv := range ivs {
		if iv.start > covered {
			return false
		}
		if iv.end > covered {
			covered = iv.end
		}
	}

	return covered >= total
}

// EvictStale drops fragment trains that haven't been touched in over 30s.
func (r *IPReassembler) EvictStale(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.frags {
		if now.Sub(e.lastTouch) > ipFragmentTimeout {
			delete(r.frags, key)
		}
	}
}
