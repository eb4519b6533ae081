package gamenet

import "sync"

// unreliableChannel is fire-and-forget: stamp-and-send on egress,
// stamp-and-enqueue on ingress. No buffering, no timers, no ordering.
type unreliableChannel struct {
	emit       func(frame []byte) error
	timers     *timerService
	deliveries *deliveryQueue
	stats      *stats

	mu      sync.Mutex
	nextSeq uint16
}

func newUnreliableChannel(emit func([]byte) error, timers *timerService, deliveries *deliveryQueue, st *stats) *unreliableChannel {
	return &unreliableChannel{
		emit:       emit,
		timers:     timers,
		deliveries: deliveries,
		stats:      st,
	}
}

func (u *unreliableChannel) send(payload []byte) error {
	u.mu.Lock()
	seq := u.nextSeq
	u.nextSeq++
	u.mu.Unlock()
	frame := marshalPacket(chanUnreliable, seq, u.timers.nowMillis(), payload)
	u.stats.UnreliableSent.Add(1)
	if err := u.emit(frame); err != nil {
		// Best-effort channel: loss stays silent beyond the log line.
		log.Warnw("unreliable send failed", "useq", seq, "error", err)
	}
	return nil
}

func (u *unreliableChannel) handleData(ts uint32, payload []byte) {
	u.deliveries.push(Delivery{Reliable: false, Timestamp: ts, Payload: payload})
	u.stats.UnreliableDelivered.Add(1)
}
