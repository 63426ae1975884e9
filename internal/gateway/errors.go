package gateway

import (
	"errors"

	"github.com/danmuck/pushgate/internal/protocol/wire"
)

var (
	ErrTimeout        = errors.New("gateway: timeout")
	ErrConnectFailed  = errors.New("gateway: connect failed")
	ErrConnectionLost = errors.New("gateway: connection lost")
	ErrClosed         = errors.New("gateway: closed")
	ErrSessionUsed    = errors.New("gateway: feedback session already used")
	ErrTLSRequired    = errors.New("gateway: tls config required")

	ErrArityMismatch   = wire.ErrArityMismatch
	ErrPayloadTooLarge = wire.ErrPayloadTooLarge
)

// Outcome maps a resolution error to a short metric/log label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectFailed):
		return "connect_failed"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
