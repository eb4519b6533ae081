package gamenet

import "sync/atomic"

// stats is the endpoint's traffic counter set. All fields are atomic; the
// recv worker, timer worker and application threads update them without
// locks.
type stats struct {
	ReliableSent        atomic.Uint64
	UnreliableSent      atomic.Uint64
	Retransmits         atomic.Uint64
	RetryExhausted      atomic.Uint64
	SACKsSent           atomic.Uint64
	ReliableDelivered   atomic.Uint64
	UnreliableDelivered atomic.Uint64
	Duplicates          atomic.Uint64
	Skips               atomic.Uint64
	MalformedFrames     atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of an endpoint's counters.
type StatsSnapshot struct {
	ReliableSent        uint64
	UnreliableSent      uint64
	Retransmits         uint64
	RetryExhausted      uint64
	SACKsSent           uint64
	ReliableDelivered   uint64
	UnreliableDelivered uint64
	Duplicates          uint64
	Skips               uint64
	MalformedFrames     uint64
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		ReliableSent:        s.ReliableSent.Load(),
		UnreliableSent:      s.UnreliableSent.Load(),
		Retransmits:         s.Retransmits.Load(),
		RetryExhausted:      s.RetryExhausted.Load(),
		SACKsSent:           s.SACKsSent.Load(),
		ReliableDelivered:   s.ReliableDelivered.Load(),
		UnreliableDelivered: s.UnreliableDelivered.Load(),
		Duplicates:          s.Duplicates.Load(),
		Skips:               s.Skips.Load(),
		MalformedFrames:     s.MalformedFrames.Load(),
	}
}
