package gateway

import (
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/pushgate/internal/credentials"
	"github.com/danmuck/pushgate/internal/payload"
	"github.com/danmuck/pushgate/internal/protocol/session"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/danmuck/pushgate/internal/testutil/testlog"
	"github.com/danmuck/pushgate/internal/testutil/tlstest"
	"github.com/stretchr/testify/require"
)

type tlsFixture struct {
	gateway  net.Listener
	feedback net.Listener
	client   *tls.Config
}

func newTLSFixture(t *testing.T) tlsFixture {
	t.Helper()
	ca := tlstest.NewAuthority(t, "pushgate test ca")
	bundle := ca.IssueClientCert(t, "provider")
	client, err := credentials.ClientConfig(bundle.PEM, credentials.Options{CAFile: ca.CAFile()})
	require.NoError(t, err)
	return tlsFixture{gateway: ca.Listen(t), feedback: ca.Listen(t), client: client}
}

func (fx tlsFixture) session(t *testing.T) *Session {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Environment = session.EnvironmentSandbox
	cfg.RequestTimeout = 3 * time.Second
	s, err := New(Config{
		Session:      cfg,
		TLS:          fx.client,
		GatewayAddr:  fx.gateway.Addr().String(),
		FeedbackAddr: fx.feedback.Addr().String(),
		Backoff:      &countingBackoff{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func acceptRead(t *testing.T, ln net.Listener, n int) <-chan []byte {
	t.Helper()
	out := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(out)
			return
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			close(out)
			return
		}
		out <- buf
	}()
	return out
}

func TestSessionWriteOverTLS(t *testing.T) {
	testlog.Start(t)
	fx := newTLSFixture(t)
	s := fx.session(t)

	tokens := []wire.Token{token(1), token(2)}
	bodies := [][]byte{[]byte(`{"aps":{"alert":"one"}}`), []byte(`{"aps":{"alert":"two"}}`)}
	want, err := wire.Encode(tokens, bodies)
	require.NoError(t, err)
	received := acceptRead(t, fx.gateway, len(want))

	f, err := s.Write(tokens, bodies)
	require.NoError(t, err)
	ack, err := f.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, len(want), ack.Bytes)

	select {
	case got, ok := <-received:
		require.True(t, ok, "server did not receive the frame")
		require.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatal("server read timed out")
	}
	require.Equal(t, StateConnected, s.State())
}

func TestSessionWritePayloads(t *testing.T) {
	testlog.Start(t)
	fx := newTLSFixture(t)
	s := fx.session(t)

	p, err := payload.New(payload.WithAlert("Hello"), payload.WithBadge(3))
	require.NoError(t, err)
	want, err := wire.EncodeOne(token(7), p.JSON())
	require.NoError(t, err)
	received := acceptRead(t, fx.gateway, len(want))

	f, err := s.WritePayloads([]wire.Token{token(7)}, []*payload.Payload{p})
	require.NoError(t, err)
	_, err = f.Wait(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, want, <-received)

	_, err = s.WritePayloads([]wire.Token{token(7)}, []*payload.Payload{nil})
	require.Error(t, err)
}

func TestSessionReadFeedbackOverTLS(t *testing.T) {
	testlog.Start(t)
	fx := newTLSFixture(t)
	s := fx.session(t)

	want, stream := feedbackStream(1700000000, 1700000500, 1700000900)
	go func() {
		conn, err := fx.feedback.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write(stream)
		_ = conn.Close()
	}()

	got, err := s.Read().Wait(waitCtx(t))
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Token, got[i].Token)
		require.Equal(t, want[i].Timestamp.Unix(), got[i].Timestamp.Unix())
	}
}

func TestSessionWriteRejectsBadBatches(t *testing.T) {
	testlog.Start(t)
	d := newPipeDialer(true)
	s, err := New(Config{Dialer: d, Backoff: &countingBackoff{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Write(nil, nil)
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = s.Write([]wire.Token{token(1), token(2)}, [][]byte{[]byte("x")})
	require.ErrorIs(t, err, ErrArityMismatch)

	_, err = s.WriteOne(token(1), make([]byte, wire.MaxFramePayload+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	require.Equal(t, 0, d.dialCount())
	require.Equal(t, StateDisconnected, s.State())
}

func TestNewSessionDefaultsAndValidation(t *testing.T) {
	testlog.Start(t)

	_, err := New(Config{})
	require.ErrorIs(t, err, ErrTLSRequired)

	_, err = New(Config{Session: session.Config{Environment: "staging"}, Dialer: newPipeDialer(false)})
	require.ErrorIs(t, err, session.ErrInvalidEnvironment)

	s, err := New(Config{Session: session.Config{Environment: session.EnvironmentSandbox}, TLS: &tls.Config{}})
	require.NoError(t, err)
	defer s.Close()
	want, err := session.EndpointsFor(session.EnvironmentSandbox)
	require.NoError(t, err)
	require.Equal(t, want, s.Endpoints())
	require.Equal(t, session.EnvironmentSandbox, s.Environment())

	prod, err := New(Config{TLS: &tls.Config{}, GatewayAddr: " 127.0.0.1:9 "})
	require.NoError(t, err)
	defer prod.Close()
	require.Equal(t, session.EnvironmentProduction, prod.Environment())
	require.Equal(t, "127.0.0.1:9", prod.Endpoints().Gateway)
}
