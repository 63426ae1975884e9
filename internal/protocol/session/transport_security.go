package session

import (
	"errors"
	"fmt"
	"strings"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

const (
	GatewayHost         = "gateway.push.apple.com"
	GatewaySandboxHost  = "gateway.sandbox.push.apple.com"
	GatewayPort         = "2195"
	FeedbackHost        = "feedback.push.apple.com"
	FeedbackSandboxHost = "feedback.sandbox.push.apple.com"
	FeedbackPort        = "2196"
)

var (
	ErrInvalidEnvironment = errors.New("session: invalid environment")
	ErrInvalidTimeout     = errors.New("session: invalid timeout")
)

// Endpoints is the host:port pair for one environment.
type Endpoints struct {
	Gateway  string
	Feedback string
}

func NormalizeEnvironment(env Environment) Environment {
	if strings.TrimSpace(string(env)) == "" {
		return EnvironmentProduction
	}
	return Environment(strings.ToLower(strings.TrimSpace(string(env))))
}

func ParseEnvironment(raw string) (Environment, error) {
	env := NormalizeEnvironment(Environment(raw))
	switch env {
	case EnvironmentProduction, EnvironmentSandbox:
		return env, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEnvironment, raw)
	}
}

func EndpointsFor(env Environment) (Endpoints, error) {
	switch NormalizeEnvironment(env) {
	case EnvironmentProduction:
		return Endpoints{
			Gateway:  GatewayHost + ":" + GatewayPort,
			Feedback: FeedbackHost + ":" + FeedbackPort,
		}, nil
	case EnvironmentSandbox:
		return Endpoints{
			Gateway:  GatewaySandboxHost + ":" + GatewayPort,
			Feedback: FeedbackSandboxHost + ":" + FeedbackPort,
		}, nil
	default:
		return Endpoints{}, fmt.Errorf("%w: %q", ErrInvalidEnvironment, env)
	}
}

func (c Config) Validate() error {
	if _, err := ParseEnvironment(string(c.Environment)); err != nil {
		return err
	}
	if c.ConnectTimeout < 0 || c.HandshakeTimeout < 0 || c.WriteTimeout < 0 || c.RequestTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}
