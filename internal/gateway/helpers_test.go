package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/pushgate/internal/protocol/wire"
)

var errRefused = errors.New("connection refused")

// pipeDialer hands out net.Pipe clients. While gated, Dial blocks until
// release is called. Server ends are delivered on servers.
type pipeDialer struct {
	mu      sync.Mutex
	gate    chan struct{}
	fail    error
	dials   int
	servers chan net.Conn
}

func newPipeDialer(gated bool) *pipeDialer {
	d := &pipeDialer{servers: make(chan net.Conn, 8)}
	if gated {
		d.gate = make(chan struct{})
	}
	return d
}

func (d *pipeDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	fail := d.fail
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func (d *pipeDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

func (d *pipeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *pipeDialer) nextServer(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-d.servers:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection dialed")
		return nil
	}
}

// countingBackoff never delays and records calls.
type countingBackoff struct {
	mu     sync.Mutex
	nexts  int
	resets int
}

func (b *countingBackoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nexts++
	return 0
}

func (b *countingBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
}

func (b *countingBackoff) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nexts, b.resets
}

func token(seed byte) wire.Token {
	var t wire.Token
	for i := range t {
		t[i] = seed ^ byte(i)
	}
	return t
}

func frame(t *testing.T, seed byte, body string) []byte {
	t.Helper()
	b, err := wire.EncodeOne(token(seed), []byte(body))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

// encodeFeedback builds the byte stream a feedback service would send.
func encodeFeedback(records []wire.FeedbackRecord) []byte {
	out := make([]byte, 0, len(records)*wire.FeedbackRecordLen)
	for _, r := range records {
		out = binary.BigEndian.AppendUint32(out, uint32(int32(r.Timestamp.Unix())))
		out = binary.BigEndian.AppendUint16(out, r.TokenLen)
		out = append(out, r.Token[:]...)
	}
	return out
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
