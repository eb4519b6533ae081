package gamenet

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
)

type gamenetTestSuite struct {
	suite.Suite
}

func (suite *gamenetTestSuite) handleTestError(err error) {
	if err != nil {
		suite.Errorf(err, "error occurred")
	}
}

// testConfig shrinks the protocol timers so integration tests finish fast.
func testConfig() Config {
	return Config{
		Window:      64,
		SkipTimeout: 80 * time.Millisecond,
		RTOMin:      20 * time.Millisecond,
		RTOMax:      500 * time.Millisecond,
		InitialRTO:  40 * time.Millisecond,
		MaxRetries:  4,
		ReadTimeout: 5 * time.Millisecond,
	}.withDefaults()
}

// chanAddr is the placeholder peer address of an in-memory connector.
type chanAddr string

func (a chanAddr) Network() string { return "chan" }
func (a chanAddr) String() string  { return string(a) }

// chanConn is an in-memory frameConn. Two instances are cross-linked into a
// full-duplex pair; a manipulator hook drops selected reliable sequences on
// the way out to simulate loss.
type chanConn struct {
	name     string
	in       chan []byte
	peer     *chanConn
	isSender bool
	done     chan struct{}

	mu        sync.Mutex
	closed    bool
	dropOnce  map[uint16]int
	dropEvery map[uint16]bool
}

func newChanConnPair(aName, bName string) (*chanConn, *chanConn) {
	a := &chanConn{
		name: aName, in: make(chan []byte, 4096), isSender: true,
		done: make(chan struct{}), dropOnce: map[uint16]int{}, dropEvery: map[uint16]bool{},
	}
	b := &chanConn{
		name: bName, in: make(chan []byte, 4096), isSender: true,
		done: make(chan struct{}), dropOnce: map[uint16]int{}, dropEvery: map[uint16]bool{},
	}
	a.peer, b.peer = b, a
	return a, b
}

// dropReliableOnce swallows the next n copies of the reliable frame with
// the given sequence number.
func (c *chanConn) dropReliableOnce(seq uint16, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropOnce[seq] = n
}

// dropReliableEvery swallows every copy of the reliable frame with the
// given sequence number.
func (c *chanConn) dropReliableEvery(seq uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropEvery[seq] = true
}

func (c *chanConn) shouldDrop(frame []byte) bool {
	if len(frame) < headerLength || frame[0] != chanReliable {
		return false
	}
	seq := binary.BigEndian.Uint16(frame[1:3])
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropEvery[seq] {
		return true
	}
	if n := c.dropOnce[seq]; n > 0 {
		c.dropOnce[seq] = n - 1
		return true
	}
	return false
}

func (c *chanConn) emit(frame []byte) error {
	if !c.isSender {
		return ErrNoRemote
	}
	return c.emitTo(frame, chanAddr(c.peer.name))
}

func (c *chanConn) emitTo(frame []byte, _ net.Addr) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return net.ErrClosed
	}
	c.mu.Unlock()
	if c.shouldDrop(frame) {
		return nil
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	select {
	case c.peer.in <- out:
	case <-c.peer.done:
	}
	return nil
}

func (c *chanConn) readFrame(buf []byte, timeout time.Duration) (int, net.Addr, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-c.in:
		copy(buf, frame)
		return len(frame), chanAddr(c.peer.name), nil
	case <-timer.C:
		return 0, nil, errReadTimeout
	case <-c.done:
		return 0, nil, net.ErrClosed
	}
}

func (c *chanConn) hasRemote() bool {
	return c.isSender
}

func (c *chanConn) localAddr() net.Addr {
	return chanAddr(c.name)
}

func (c *chanConn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// frameRecorder captures emitted frames for the sender and receiver unit
// suites.
type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *frameRecorder) emit(frame []byte) error {
	out := make([]byte, len(frame))
	copy(out, frame)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, out)
	return nil
}

func (r *frameRecorder) emitTo(frame []byte, _ net.Addr) error {
	return r.emit(frame)
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *frameRecorder) at(i int) packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkt, err := parsePacket(r.frames[i])
	if err != nil {
		panic(err)
	}
	return pkt
}

func (r *frameRecorder) last() packet {
	return r.at(r.count() - 1)
}
