package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/pushgate/internal/observability"
	"github.com/danmuck/pushgate/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Ack means the frame bytes were accepted by the transport. The gateway
// protocol has no delivery acknowledgement.
type Ack struct {
	RequestID string
	Bytes     int
	SentAt    time.Time
}

type ManagerOptions struct {
	Backoff      session.Backoff
	WriteTimeout time.Duration
	Logger       *zerolog.Logger
}

type pendingRequest struct {
	id       string
	frame    []byte
	future   *Future[Ack]
	timer    *time.Timer
	queuedAt time.Time
}

// stopTimer is safe to call any number of times, before or after the timer
// fired.
func (r *pendingRequest) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *pendingRequest) finish(ack Ack, err error) bool {
	r.stopTimer()
	if !r.future.resolve(ack, err) {
		return false
	}
	observability.RecordGatewayWrite(Outcome(err), ack.Bytes)
	return true
}

// link is one live gateway connection with its reader and writer goroutines.
type link struct {
	id        string
	conn      net.Conn
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newLink(conn net.Conn) *link {
	return &link{
		id:   uuid.NewString(),
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (l *link) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// ConnectionManager owns at most one gateway connection. Writes issued while
// no connection is live are queued and flushed in arrival order once the
// connection is up.
type ConnectionManager struct {
	addr         string
	dialer       Dialer
	backoff      session.Backoff
	writeTimeout time.Duration
	log          zerolog.Logger

	mu         sync.Mutex
	state      State
	link       *link
	queue      *session.Outbox[*pendingRequest]
	retryAt    time.Time
	dialCancel context.CancelFunc
	closed     bool
}

func NewConnectionManager(addr string, dialer Dialer, opts ManagerOptions) *ConnectionManager {
	backoff := opts.Backoff
	if backoff == nil {
		backoff = session.NewExponentialBackoff(session.DefaultConfig().Backoff, nil)
	}
	return &ConnectionManager{
		addr:         addr,
		dialer:       dialer,
		backoff:      backoff,
		writeTimeout: opts.WriteTimeout,
		log:          observability.Component(opts.Logger, "gateway").With().Str("addr", addr).Logger(),
		queue:        session.NewOutbox[*pendingRequest](),
	}
}

func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending reports requests not yet handed to the transport.
func (m *ConnectionManager) Pending() int {
	return m.queue.Len()
}

// Write queues frame for the gateway. A positive deadline bounds how long the
// request may wait for a connection; it fails with ErrTimeout when it elapses
// first. Once connected, only the transport WriteTimeout applies.
func (m *ConnectionManager) Write(frame []byte, deadline time.Duration) *Future[Ack] {
	req := &pendingRequest{
		id:       uuid.NewString(),
		frame:    frame,
		future:   newFuture[Ack](),
		queuedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		req.finish(Ack{RequestID: req.id}, ErrClosed)
		return req.future
	}

	m.queue.Push(req.id, req)
	observability.SetGatewayPending(m.queue.Len())
	if deadline > 0 && m.state != StateConnected {
		req.timer = time.AfterFunc(deadline, func() { m.expire(req, deadline) })
	}

	switch m.state {
	case StateConnected:
		m.link.signal()
	case StateDisconnected:
		m.log.Debug().Str("request_id", req.id).Msg("gateway.Write connecting")
		m.connectLocked()
	case StateConnecting:
		m.log.Debug().Str("request_id", req.id).Int("pending", m.queue.Len()).Msg("gateway.Write queued")
	}
	return req.future
}

// Close drops the live connection and fails every pending request with
// ErrClosed. Later writes fail immediately.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	l := m.link
	m.link = nil
	m.state = StateDisconnected
	cancel := m.dialCancel
	m.dialCancel = nil
	orphaned := m.queue.Drain()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if l != nil {
		l.close()
	}
	for _, r := range orphaned {
		r.finish(Ack{RequestID: r.id}, ErrClosed)
	}
	observability.SetGatewayPending(0)
	m.log.Info().Int("orphaned", len(orphaned)).Msg("gateway.Close")
	return nil
}

func (m *ConnectionManager) expire(req *pendingRequest, deadline time.Duration) {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	_, queued := m.queue.Remove(req.id)
	pending := m.queue.Len()
	m.mu.Unlock()
	if !queued {
		return
	}
	observability.SetGatewayPending(pending)
	err := fmt.Errorf("%w: no gateway connection after %s", ErrTimeout, deadline)
	if req.finish(Ack{RequestID: req.id}, err) {
		m.log.Warn().Str("request_id", req.id).Dur("deadline", deadline).Msg("gateway.Write timed out")
	}
}

// connectLocked starts one connection attempt. Caller holds m.mu.
func (m *ConnectionManager) connectLocked() {
	m.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel
	delay := time.Until(m.retryAt)
	if delay < 0 {
		delay = 0
	}
	go m.connect(ctx, cancel, delay)
}

func (m *ConnectionManager) connect(ctx context.Context, cancel context.CancelFunc, delay time.Duration) {
	defer cancel()
	if delay > 0 {
		m.log.Debug().Dur("delay", delay).Msg("gateway.connect backoff")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	conn, err := m.dialer.Dial(ctx, m.addr)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.dialCancel = nil
	if err != nil {
		next := m.backoff.NextDelay()
		m.retryAt = time.Now().Add(next)
		m.state = StateDisconnected
		failed := m.queue.Drain()
		m.mu.Unlock()

		observability.RecordGatewayConnect(false)
		observability.SetGatewayPending(0)
		m.log.Warn().Err(err).Dur("retry_in", next).Int("failed", len(failed)).Msg("gateway.connect failed")
		cause := fmt.Errorf("%w: %w", ErrConnectFailed, err)
		for _, r := range failed {
			r.finish(Ack{RequestID: r.id}, cause)
		}
		return
	}

	m.backoff.Reset()
	m.retryAt = time.Time{}
	l := newLink(conn)
	m.link = l
	m.state = StateConnected
	// Queued requests now wait only on the transport.
	for _, id := range m.queue.IDs() {
		if r, ok := m.queue.Get(id); ok {
			r.stopTimer()
		}
	}
	pending := m.queue.Len()
	m.mu.Unlock()

	observability.RecordGatewayConnect(true)
	m.log.Info().Str("link", l.id).Int("pending", pending).Msg("gateway.connect established")
	go m.readLoop(l)
	go m.writeLoop(l)
	l.signal()
}

// readLoop only watches for loss. The command-0 protocol sends nothing back
// on success, so inbound bytes are discarded.
func (m *ConnectionManager) readLoop(l *link) {
	_, err := io.Copy(io.Discard, l.conn)
	if err == nil {
		err = io.EOF
	}
	m.lose(l, err, nil)
}

func (m *ConnectionManager) writeLoop(l *link) {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			m.mu.Lock()
			if m.link != l {
				m.mu.Unlock()
				return
			}
			batch := m.queue.Drain()
			m.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			observability.SetGatewayPending(0)

			for i, r := range batch {
				r.stopTimer()
				if m.writeTimeout > 0 {
					_ = l.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
				}
				n, err := l.conn.Write(r.frame)
				if err != nil {
					r.finish(Ack{RequestID: r.id, Bytes: n}, fmt.Errorf("%w: %w", ErrConnectionLost, err))
					m.lose(l, err, batch[i+1:])
					return
				}
				r.finish(Ack{RequestID: r.id, Bytes: n, SentAt: time.Now()}, nil)
				m.log.Trace().Str("request_id", r.id).Int("bytes", n).Dur("queued", time.Since(r.queuedAt)).Msg("gateway.write sent")
			}
		}
	}
}

// lose tears down l. Requests still queued, plus extra ones already taken by
// the writer, fail with ErrConnectionLost. Only the first call for a link
// changes manager state.
func (m *ConnectionManager) lose(l *link, cause error, extra []*pendingRequest) {
	l.close()

	m.mu.Lock()
	var orphaned []*pendingRequest
	current := m.link == l
	if current {
		m.link = nil
		m.state = StateDisconnected
		m.retryAt = time.Now().Add(m.backoff.NextDelay())
		orphaned = m.queue.Drain()
	}
	m.mu.Unlock()

	orphaned = append(extra, orphaned...)
	err := fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	for _, r := range orphaned {
		r.finish(Ack{RequestID: r.id}, err)
	}
	if current {
		observability.SetGatewayPending(0)
		m.log.Warn().Str("link", l.id).Err(cause).Int("orphaned", len(orphaned)).Msg("gateway.connection lost")
	}
}
