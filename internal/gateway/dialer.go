package gateway

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Dialer opens one transport connection to addr.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

type DialerFunc func(ctx context.Context, addr string) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return f(ctx, addr)
}

// TLSDialer dials TCP and completes the TLS handshake before returning.
type TLSDialer struct {
	Config           *tls.Config
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
}

func (d *TLSDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if d.Config == nil {
		return nil, ErrTLSRequired
	}
	dialer := net.Dialer{Timeout: d.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	cfg := d.Config.Clone()
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		cfg.ServerName = host
	}
	conn := tls.Client(rawConn, cfg)
	handshakeCtx := ctx
	if d.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, d.HandshakeTimeout)
		defer cancel()
	}
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}
