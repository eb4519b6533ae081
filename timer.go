package gamenet

import (
	"container/heap"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// timerService is the endpoint's clock and retransmission timer in one
// place: a monotonic millisecond clock plus cancellable per-sequence timers
// fired by a single scheduling loop over a min-heap. Cancellation marks the
// entry and drops it from the key map; the loop discards marked entries
// lazily instead of deleting from the heap.
type timerService struct {
	clk clock.Clock

	mu        sync.Mutex
	entries   timerHeap
	scheduled map[uint16]*timerEntry
	wake      chan struct{}
	done      chan struct{}
	stopped   bool
	wg        sync.WaitGroup
}

type timerEntry struct {
	seq       uint16
	deadline  time.Time
	fn        func(seq uint16)
	cancelled bool
}

func newTimerService(clk clock.Clock) *timerService {
	return &timerService{
		clk:       clk,
		scheduled: make(map[uint16]*timerEntry),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (ts *timerService) start() {
	ts.wg.Add(1)
	go ts.run()
}

// now returns the service's monotonic clock reading.
func (ts *timerService) now() time.Time {
	return ts.clk.Now()
}

// nowMillis returns the clock's millisecond reading truncated mod 2^32,
// the ts_ms stamp carried in every frame header.
func (ts *timerService) nowMillis() uint32 {
	return uint32(ts.clk.Now().UnixMilli())
}

// schedule arms a timer for seq at now+delay. A previously armed timer for
// the same seq is replaced.
func (ts *timerService) schedule(seq uint16, delay time.Duration, fn func(seq uint16)) {
	ts.mu.Lock()
	if ts.stopped {
		ts.mu.Unlock()
		return
	}
	if old, ok := ts.scheduled[seq]; ok {
		old.cancelled = true
	}
	entry := &timerEntry{seq: seq, deadline: ts.clk.Now().Add(delay), fn: fn}
	ts.scheduled[seq] = entry
	heap.Push(&ts.entries, entry)
	ts.mu.Unlock()
	ts.signal()
}

// cancel disarms the timer for seq. A cancelled entry's callback never runs.
func (ts *timerService) cancel(seq uint16) {
	ts.mu.Lock()
	if entry, ok := ts.scheduled[seq]; ok {
		entry.cancelled = true
		delete(ts.scheduled, seq)
	}
	ts.mu.Unlock()
}

func (ts *timerService) stop() {
	ts.mu.Lock()
	if ts.stopped {
		ts.mu.Unlock()
		return
	}
	ts.stopped = true
	for seq, entry := range ts.scheduled {
		entry.cancelled = true
		delete(ts.scheduled, seq)
	}
	ts.mu.Unlock()
	close(ts.done)
	ts.wg.Wait()
}

func (ts *timerService) signal() {
	select {
	case ts.wake <- struct{}{}:
	default:
	}
}

func (ts *timerService) run() {
	defer ts.wg.Done()
	for {
		ts.mu.Lock()
		now := ts.clk.Now()
		var due []*timerEntry
		for ts.entries.Len() > 0 {
			next := ts.entries[0]
			if next.cancelled {
				heap.Pop(&ts.entries)
				continue
			}
			if next.deadline.After(now) {
				break
			}
			heap.Pop(&ts.entries)
			delete(ts.scheduled, next.seq)
			due = append(due, next)
		}
		var wait time.Duration = -1
		if len(due) == 0 && ts.entries.Len() > 0 {
			wait = ts.entries[0].deadline.Sub(now)
		}
		ts.mu.Unlock()

		if len(due) > 0 {
			for _, entry := range due {
				entry.fn(entry.seq)
			}
			continue
		}

		if wait < 0 {
			select {
			case <-ts.wake:
			case <-ts.done:
				return
			}
			continue
		}
		timer := ts.clk.Timer(wait)
		select {
		case <-timer.C:
		case <-ts.wake:
			timer.Stop()
		case <-ts.done:
			timer.Stop()
			return
		}
	}
}

// timerHeap orders entries by deadline; simultaneous deadlines fire in
// ascending modular sequence order.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return seqBefore(h[i].seq, h[j].seq)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
