package gamenet

import (
	"net"
	"sync"
	"time"
)

// recvEntry is one out-of-order packet parked in the reorder buffer.
type recvEntry struct {
	payload    []byte
	ts         uint32
	receivedAt time.Time
}

// reliableReceiver deduplicates, buffers out-of-order packets, produces
// SACK feedback and runs the skip-deadline policy before handing contiguous
// runs to the delivery queue. One mutex protects the reorder buffer,
// nextExpected and the skip deadline.
type reliableReceiver struct {
	emitSACK   func(frame []byte, to net.Addr) error
	timers     *timerService
	deliveries *deliveryQueue
	stats      *stats

	skipTimeout time.Duration
	sackWidth   int

	mu           sync.Mutex
	nextExpected uint16
	reorder      map[uint16]recvEntry
	skipAt       time.Time
	skipArmed    bool
}

func newReliableReceiver(emitSACK func([]byte, net.Addr) error, timers *timerService, deliveries *deliveryQueue, st *stats, cfg Config) *reliableReceiver {
	return &reliableReceiver{
		emitSACK:    emitSACK,
		timers:      timers,
		deliveries:  deliveries,
		stats:       st,
		skipTimeout: cfg.SkipTimeout,
		sackWidth:   cfg.SACKWidth,
		reorder:     make(map[uint16]recvEntry),
	}
}

// handleData processes one RELIABLE_DATA frame. Every reception generates a
// SACK, duplicates included, so spurious retransmits are suppressed
// quickly. The SACK content reflects the state at arrival; the frame goes
// out after the reorder buffer is updated.
func (r *reliableReceiver) handleData(seq uint16, ts uint32, payload []byte, from net.Addr) {
	r.mu.Lock()
	sack := r.buildSACKLocked(seq)
	now := r.timers.now()
	switch {
	case seqBefore(seq, r.nextExpected):
		// Already delivered (or skipped).
		r.stats.Duplicates.Add(1)
	case seq == r.nextExpected:
		r.deliverLocked(seq, ts, payload)
		r.drainLocked()
		if len(r.reorder) == 0 {
			r.skipArmed = false
		}
	default:
		if _, dup := r.reorder[seq]; dup {
			r.stats.Duplicates.Add(1)
		} else {
			r.reorder[seq] = recvEntry{payload: payload, ts: ts, receivedAt: now}
		}
		if !r.skipArmed {
			r.skipArmed = true
			r.skipAt = now.Add(r.skipTimeout)
		}
	}
	r.checkSkipLocked(now)
	r.mu.Unlock()

	if err := r.emitSACK(sack, from); err != nil {
		log.Debugw("SACK send failed", "error", err)
		return
	}
	r.stats.SACKsSent.Add(1)
}

// onTick runs the skip policy from the recv loop's idle tick.
func (r *reliableReceiver) onTick(now time.Time) {
	r.mu.Lock()
	r.checkSkipLocked(now)
	r.mu.Unlock()
}

// checkSkipLocked advances nextExpected past one missing sequence per tick
// once the skip deadline has passed, sacrificing that sequence for
// liveness. The deadline is re-armed while a gap remains.
func (r *reliableReceiver) checkSkipLocked(now time.Time) {
	if !r.skipArmed || now.Before(r.skipAt) {
		return
	}
	if _, ok := r.reorder[r.nextExpected]; ok {
		return
	}
	skipped := r.nextExpected
	r.nextExpected++
	r.stats.Skips.Add(1)
	log.Debugw("skip deadline passed, advancing past missing sequence", "seq", skipped)
	r.drainLocked()
	if len(r.reorder) > 0 {
		r.skipAt = now.Add(r.skipTimeout)
	} else {
		r.skipArmed = false
	}
}

func (r *reliableReceiver) deliverLocked(seq uint16, ts uint32, payload []byte) {
	r.deliveries.push(Delivery{Seq: seq, Reliable: true, Timestamp: ts, Payload: payload})
	r.nextExpected++
	r.stats.ReliableDelivered.Add(1)
}

func (r *reliableReceiver) drainLocked() {
	for {
		entry, ok := r.reorder[r.nextExpected]
		if !ok {
			return
		}
		delete(r.reorder, r.nextExpected)
		r.deliverLocked(r.nextExpected, entry.ts, entry.payload)
	}
}

// buildSACKLocked frames the ack state at arrival time: cumAck is the
// highest in-order sequence delivered or skipped, the bitmap marks everything parked
// in the reorder buffer plus the arriving sequence itself.
func (r *reliableReceiver) buildSACKLocked(arriving uint16) []byte {
	cumAck := r.nextExpected - 1
	bm := newSackBitmap(r.nextExpected, r.sackWidth)
	for seq := range r.reorder {
		bm.mark(seq)
	}
	bm.mark(arriving)
	return marshalPacket(chanSACK, cumAck, r.timers.nowMillis(), bm.bytes())
}

// reorderLen exists for invariant checks.
func (r *reliableReceiver) reorderLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reorder)
}
