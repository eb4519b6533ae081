package gamenet

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
)

// Endpoint is one side of a dual-channel datagram transport. It exposes
// Send, non-blocking Receive, and Close; internally it runs a recv worker
// that drives the receiver state machine and a timer worker that fires
// retransmissions.
type Endpoint struct {
	cfg        Config
	conn       frameConn
	timers     *timerService
	sender     *reliableSender
	receiver   *reliableReceiver
	unreliable *unreliableChannel
	deliveries *deliveryQueue
	st         *stats

	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open binds a UDP socket on cfg.LocalPort and starts the endpoint's
// workers. With an empty cfg.Remote the endpoint is receiver-only and every
// Send fails with ErrNoRemote.
func Open(cfg Config) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	conn, err := newUDPConn(cfg.LocalPort, cfg.Remote)
	if err != nil {
		return nil, err
	}
	e := newEndpoint(conn, clock.New(), cfg)
	e.start()
	return e, nil
}

// Dial opens a sending endpoint towards remote ("host:port").
func Dial(localPort int, remote string) (*Endpoint, error) {
	return Open(Config{LocalPort: localPort, Remote: remote})
}

// Listen opens a receiver-only endpoint.
func Listen(localPort int) (*Endpoint, error) {
	return Open(Config{LocalPort: localPort})
}

// newEndpoint wires the components around an arbitrary frameConn; tests use
// it with an in-memory connector and a mock clock. cfg must already carry
// its defaults.
func newEndpoint(conn frameConn, clk clock.Clock, cfg Config) *Endpoint {
	e := &Endpoint{
		cfg:        cfg,
		conn:       conn,
		timers:     newTimerService(clk),
		deliveries: newDeliveryQueue(),
		st:         &stats{},
		done:       make(chan struct{}),
	}
	e.receiver = newReliableReceiver(conn.emitTo, e.timers, e.deliveries, e.st, cfg)
	e.unreliable = newUnreliableChannel(conn.emit, e.timers, e.deliveries, e.st)
	if conn.hasRemote() {
		e.sender = newReliableSender(conn.emit, e.timers, e.st, cfg)
	}
	return e
}

func (e *Endpoint) start() {
	e.timers.start()
	e.wg.Add(1)
	go e.recvLoop()
}

// recvLoop reads one datagram at a time and dispatches by channel tag. The
// short read timeout doubles as the skip policy's idle tick.
func (e *Endpoint) recvLoop() {
	defer e.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-e.done:
			return
		default:
		}
		n, from, err := e.conn.readFrame(buf, e.cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				e.receiver.onTick(e.timers.now())
				continue
			}
			if e.closed.Load() {
				return
			}
			log.Debugw("socket read error", "error", err)
			continue
		}
		pkt, perr := parsePacket(buf[:n])
		if perr != nil {
			e.st.MalformedFrames.Add(1)
			continue
		}
		switch pkt.ch {
		case chanReliable:
			e.receiver.handleData(pkt.seq, pkt.ts, pkt.payload, from)
		case chanSACK:
			if e.sender != nil {
				e.sender.handleSACK(pkt.seq, pkt.payload)
			}
		case chanUnreliable:
			e.unreliable.handleData(pkt.ts, pkt.payload)
		}
	}
}

// Send transmits payload on the reliable or the unreliable channel. It
// fails with ErrNoRemote on receiver-only endpoints, ErrClosed after Close,
// and ErrSendQueueFull when the reliable pending queue is at its cap.
func (e *Endpoint) Send(payload []byte, reliable bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.conn.hasRemote() {
		return ErrNoRemote
	}
	if reliable {
		return e.sender.sendReliable(payload)
	}
	return e.unreliable.send(payload)
}

// Receive pops the next delivery record, never blocking. The second return
// is false when nothing is queued or the endpoint is closed.
func (e *Endpoint) Receive() (Delivery, bool) {
	if e.closed.Load() {
		return Delivery{}, false
	}
	return e.deliveries.pop()
}

// Stats returns a snapshot of the endpoint's counters.
func (e *Endpoint) Stats() StatsSnapshot {
	return e.st.snapshot()
}

// LocalAddr returns the bound socket address, useful when LocalPort was 0.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.localAddr()
}

// Close stops both workers, cancels all retransmission timers, discards
// pending sends, closes the socket and joins the workers. Idempotent.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		if e.sender != nil {
			e.sender.close()
		}
		e.timers.stop()
		var result *multierror.Error
		if err := e.conn.close(); err != nil {
			result = multierror.Append(result, err)
		}
		e.wg.Wait()
		e.closeErr = result.ErrorOrNil()
	})
	return e.closeErr
}
