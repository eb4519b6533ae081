package gamenet

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// sendEntry is one unacknowledged reliable packet. It exists from first
// send until the sequence is acknowledged, abandoned, or the endpoint
// closes.
type sendEntry struct {
	frame     []byte
	firstSent time.Time
	retries   int
	backoff   *backoff.ExponentialBackOff
}

// reliableSender assigns reliable sequence numbers, enforces the send
// window, schedules per-packet retransmission timers and consumes SACKs.
// One mutex serializes the send buffer, inflight count, pending queue and
// RTO estimator state; the timer worker's callbacks take it before
// re-emitting.
type reliableSender struct {
	emit   func(frame []byte) error
	timers *timerService
	stats  *stats

	window     int
	maxRetries int
	rtoMin     time.Duration
	rtoMax     time.Duration
	sackWidth  int

	mu       sync.Mutex
	nextSeq  uint16
	buffer   map[uint16]*sendEntry
	inflight int
	pending  *pendingQueue
	closed   bool

	srtt      time.Duration
	rttvar    time.Duration
	rto       time.Duration
	hasSample bool
}

func newReliableSender(emit func([]byte) error, timers *timerService, st *stats, cfg Config) *reliableSender {
	return &reliableSender{
		emit:       emit,
		timers:     timers,
		stats:      st,
		window:     cfg.Window,
		maxRetries: cfg.MaxRetries,
		rtoMin:     cfg.RTOMin,
		rtoMax:     cfg.RTOMax,
		sackWidth:  cfg.SACKWidth,
		buffer:     make(map[uint16]*sendEntry),
		pending:    newPendingQueue(cfg.PendingLimit),
		rto:        cfg.InitialRTO,
	}
}

// sendReliable admits the payload into the window immediately, or queues it
// until SACKs free a slot. A full pending queue is the backpressure signal.
func (s *reliableSender) sendReliable(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.inflight < s.window {
		s.sendLocked(payload)
		return nil
	}
	if !s.pending.push(payload) {
		return ErrSendQueueFull
	}
	return nil
}

func (s *reliableSender) sendLocked(payload []byte) {
	seq := s.nextSeq
	s.nextSeq++
	frame := marshalPacket(chanReliable, seq, s.timers.nowMillis(), payload)
	entry := &sendEntry{
		frame:     frame,
		firstSent: s.timers.now(),
		backoff:   s.newBackOffLocked(),
	}
	s.buffer[seq] = entry
	s.inflight++
	s.stats.ReliableSent.Add(1)
	s.timers.schedule(seq, entry.backoff.NextBackOff(), s.onTimeout)
	if err := s.emit(frame); err != nil {
		log.Warnw("reliable send failed, retransmit timer will recover", "seq", seq, "error", err)
	}
}

// newBackOffLocked builds the per-sequence retransmit schedule: the current
// RTO estimate, doubling per consecutive retry, capped at rtoMax.
func (s *reliableSender) newBackOffLocked() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.rto
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = s.rtoMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// handleSACK cancels timers and frees window slots for every acknowledged
// sequence, samples RTT from unambiguous acks (Karn's rule), and drains the
// pending queue into the freed slots.
func (s *reliableSender) handleSACK(cumAck uint16, bitmap []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	var acked []uint16
	for seq := range s.buffer {
		if seqLEQ(seq, cumAck) {
			acked = append(acked, seq)
		}
	}
	forEachMarked(cumAck, bitmap, s.sackWidth, func(seq uint16) {
		if _, ok := s.buffer[seq]; ok {
			acked = append(acked, seq)
		}
	})
	for _, seq := range acked {
		s.ackLocked(seq)
	}
	s.drainPendingLocked()
}

func (s *reliableSender) ackLocked(seq uint16) {
	entry, ok := s.buffer[seq]
	if !ok {
		return
	}
	s.timers.cancel(seq)
	if entry.retries == 0 {
		s.updateRTOLocked(s.timers.now().Sub(entry.firstSent))
	}
	delete(s.buffer, seq)
	s.inflight--
}

func (s *reliableSender) drainPendingLocked() {
	for s.inflight < s.window {
		payload, ok := s.pending.pop()
		if !ok {
			return
		}
		s.sendLocked(payload)
	}
}

// updateRTOLocked folds an unambiguous RTT sample into the estimator:
// srtt with gain 1/8, rttvar with gain 1/4, rto = srtt + 4*rttvar clamped
// to [rtoMin, rtoMax].
func (s *reliableSender) updateRTOLocked(rtt time.Duration) {
	if !s.hasSample {
		s.srtt = rtt
		s.rttvar = rtt / 2
		s.hasSample = true
	} else {
		s.srtt = (7*s.srtt + rtt) / 8
		delta := s.srtt - rtt
		if delta < 0 {
			delta = -delta
		}
		s.rttvar = (3*s.rttvar + delta) / 4
	}
	rto := s.srtt + 4*s.rttvar
	if rto < s.rtoMin {
		rto = s.rtoMin
	}
	if rto > s.rtoMax {
		rto = s.rtoMax
	}
	s.rto = rto
}

// onTimeout re-emits an unacknowledged frame and reschedules, or abandons
// the sequence once the retry budget is spent. A callback racing an ack
// finds its sequence gone from the buffer and is a no-op.
func (s *reliableSender) onTimeout(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.buffer[seq]
	if !ok || s.closed {
		return
	}
	if entry.retries >= s.maxRetries {
		log.Warnw("retry budget exhausted, abandoning sequence", "seq", seq, "retries", entry.retries)
		delete(s.buffer, seq)
		s.inflight--
		s.stats.RetryExhausted.Add(1)
		s.drainPendingLocked()
		return
	}
	entry.retries++
	refreshTimestamp(entry.frame, s.timers.nowMillis())
	s.stats.Retransmits.Add(1)
	s.timers.schedule(seq, entry.backoff.NextBackOff(), s.onTimeout)
	if err := s.emit(entry.frame); err != nil {
		log.Warnw("retransmit failed", "seq", seq, "error", err)
	}
}

// close cancels all pending timers and discards buffered and pending sends.
func (s *reliableSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for seq := range s.buffer {
		s.timers.cancel(seq)
	}
	s.buffer = make(map[uint16]*sendEntry)
	s.pending.clear()
	s.inflight = 0
}

// inflightCount and bufferLen exist for invariant checks.
func (s *reliableSender) inflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

func (s *reliableSender) bufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func (s *reliableSender) currentRTO() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rto
}
