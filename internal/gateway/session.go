package gateway

import (
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/danmuck/pushgate/internal/payload"
	"github.com/danmuck/pushgate/internal/protocol/session"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/rs/zerolog"
)

var ErrEmptyBatch = errors.New("gateway: empty batch")

// Config binds credentials and environment to one Session.
type Config struct {
	Session session.Config
	TLS     *tls.Config

	// GatewayAddr and FeedbackAddr override the environment endpoints.
	GatewayAddr  string
	FeedbackAddr string

	// Dialer overrides the TLS dialer built from TLS and Session timeouts.
	Dialer  Dialer
	Backoff session.Backoff
	Logger  *zerolog.Logger
}

// Session is the client entry point: Write sends notification frames over
// the shared gateway connection and Read harvests the feedback service.
type Session struct {
	cfg       Config
	endpoints session.Endpoints
	dialer    Dialer
	manager   *ConnectionManager
}

func New(cfg Config) (*Session, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	endpoints, err := session.EndpointsFor(cfg.Session.Environment)
	if err != nil {
		return nil, err
	}
	if addr := strings.TrimSpace(cfg.GatewayAddr); addr != "" {
		endpoints.Gateway = addr
	}
	if addr := strings.TrimSpace(cfg.FeedbackAddr); addr != "" {
		endpoints.Feedback = addr
	}

	dialer := cfg.Dialer
	if dialer == nil {
		if cfg.TLS == nil {
			return nil, ErrTLSRequired
		}
		dialer = &TLSDialer{
			Config:           cfg.TLS,
			ConnectTimeout:   cfg.Session.ConnectTimeout,
			HandshakeTimeout: cfg.Session.HandshakeTimeout,
		}
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = session.NewExponentialBackoff(cfg.Session.Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	return &Session{
		cfg:       cfg,
		endpoints: endpoints,
		dialer:    dialer,
		manager: NewConnectionManager(endpoints.Gateway, dialer, ManagerOptions{
			Backoff:      backoff,
			WriteTimeout: cfg.Session.WriteTimeout,
			Logger:       cfg.Logger,
		}),
	}, nil
}

func (s *Session) Endpoints() session.Endpoints {
	return s.endpoints
}

func (s *Session) Environment() session.Environment {
	return s.cfg.Session.Environment
}

func (s *Session) State() State {
	return s.manager.State()
}

// Write encodes the batch and hands it to the gateway connection. Encoding
// errors are returned directly; connection errors only through the future.
func (s *Session) Write(tokens []wire.Token, payloads [][]byte) (*Future[Ack], error) {
	if len(tokens) == 0 && len(payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	frame, err := wire.Encode(tokens, payloads)
	if err != nil {
		return nil, err
	}
	return s.manager.Write(frame, s.cfg.Session.RequestTimeout), nil
}

func (s *Session) WriteOne(token wire.Token, body []byte) (*Future[Ack], error) {
	return s.Write([]wire.Token{token}, [][]byte{body})
}

// WritePayloads is Write for payloads built through the payload package.
func (s *Session) WritePayloads(tokens []wire.Token, payloads []*payload.Payload) (*Future[Ack], error) {
	bodies := make([][]byte, len(payloads))
	for i, p := range payloads {
		if p == nil {
			return nil, fmt.Errorf("gateway: payload %d is nil", i)
		}
		bodies[i] = p.JSON()
	}
	return s.Write(tokens, bodies)
}

// Read harvests the feedback service with a fresh FeedbackSession.
func (s *Session) Read() *Future[[]wire.FeedbackRecord] {
	fs := NewFeedbackSession(s.endpoints.Feedback, s.dialer, s.cfg.Logger)
	return fs.Read(s.cfg.Session.RequestTimeout)
}

func (s *Session) Close() error {
	return s.manager.Close()
}
