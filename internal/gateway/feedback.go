package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/pushgate/internal/observability"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FeedbackSession harvests the feedback service once: connect, read until
// the peer closes, decode.
type FeedbackSession struct {
	id     string
	addr   string
	dialer Dialer
	log    zerolog.Logger
	used   atomic.Bool

	mu   sync.Mutex
	conn net.Conn
}

func NewFeedbackSession(addr string, dialer Dialer, logger *zerolog.Logger) *FeedbackSession {
	id := uuid.NewString()
	return &FeedbackSession{
		id:     id,
		addr:   addr,
		dialer: dialer,
		log:    observability.Component(logger, "feedback").With().Str("addr", addr).Str("session", id).Logger(),
	}
}

func (s *FeedbackSession) ID() string {
	return s.id
}

// Read starts the harvest. A positive deadline bounds the whole exchange;
// when it elapses the connection is closed and the future fails with
// ErrTimeout. A session can be read once.
func (s *FeedbackSession) Read(deadline time.Duration) *Future[[]wire.FeedbackRecord] {
	if !s.used.CompareAndSwap(false, true) {
		return failedFuture[[]wire.FeedbackRecord](ErrSessionUsed)
	}

	f := newFuture[[]wire.FeedbackRecord]()
	ctx, cancel := context.WithCancel(context.Background())
	var timer *time.Timer
	if deadline > 0 {
		timer = time.AfterFunc(deadline, func() {
			err := fmt.Errorf("%w: feedback stream not closed after %s", ErrTimeout, deadline)
			if f.resolve(nil, err) {
				observability.RecordFeedbackRead("timeout", 0)
				s.log.Warn().Dur("deadline", deadline).Msg("feedback.Read timed out")
				cancel()
				s.closeConn()
			}
		})
	}
	go func() {
		defer cancel()
		s.run(ctx, f)
		if timer != nil {
			timer.Stop()
		}
	}()
	return f
}

func (s *FeedbackSession) run(ctx context.Context, f *Future[[]wire.FeedbackRecord]) {
	s.log.Debug().Msg("feedback.Read connecting")
	conn, err := s.dialer.Dial(ctx, s.addr)
	if err != nil {
		if f.resolve(nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)) {
			observability.RecordFeedbackRead("connect_failed", 0)
			s.log.Warn().Err(err).Msg("feedback.Read connect failed")
		}
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if f.Resolved() {
		s.closeConn()
		return
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, conn)
	s.closeConn()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		// The peer dropped the stream abnormally. Whole records read so far
		// are still valid.
		s.log.Warn().Err(err).Int64("bytes", n).Msg("feedback.Read stream ended with error")
	}

	records := wire.DecodeFeedback(buf.Bytes())
	if f.resolve(records, nil) {
		observability.RecordFeedbackRead("success", len(records))
		s.log.Info().Int64("bytes", n).Int("records", len(records)).Msg("feedback.Read complete")
	}
}

func (s *FeedbackSession) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
