package main

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pushgate/internal/credentials"
	"github.com/danmuck/pushgate/internal/gateway"
	"github.com/danmuck/pushgate/internal/protocol/session"
	"github.com/rs/zerolog"
)

// pushctl config.toml key mapping to runtime settings.
type fileConfig struct {
	Environment        string   `toml:"environment"`
	Certificate        string   `toml:"certificate"`
	CAFile             string   `toml:"ca_file"`
	ServerName         string   `toml:"server_name"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
	GatewayAddress     string   `toml:"gateway_address"`
	FeedbackAddress    string   `toml:"feedback_address"`
	RequestTimeout     string   `toml:"request_timeout"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	BackoffInitial     string   `toml:"backoff_initial"`
	BackoffMax         string   `toml:"backoff_max"`
	BackoffMultiplier  float64  `toml:"backoff_multiplier"`
	BackoffJitter      bool     `toml:"backoff_jitter"`
	HTTPAddr           string   `toml:"http_addr"`
	CORSOrigins        []string `toml:"cors_origins"`
	StorePath          string   `toml:"store_path"`
	APIToken           string   `toml:"api_token"`
}

type runtimeConfig struct {
	Session            session.Config
	Certificate        string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	GatewayAddress     string
	FeedbackAddress    string
	HTTPAddr           string
	CORSOrigins        []string
	StorePath          string
	APIToken           string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Session:  session.DefaultConfig(),
		HTTPAddr: ":8080",
	}
}

// loadRuntimeConfig overlays the file at path on the defaults. An empty path
// yields the defaults.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load pushctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return runtimeConfig{}, fmt.Errorf("load pushctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("environment") {
		env, err := session.ParseEnvironment(raw.Environment)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load pushctl config: %w", err)
		}
		cfg.Session.Environment = env
	}
	if meta.IsDefined("certificate") {
		cfg.Certificate = strings.TrimSpace(raw.Certificate)
	}
	if meta.IsDefined("ca_file") {
		cfg.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("server_name") {
		cfg.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("insecure_skip_verify") {
		cfg.InsecureSkipVerify = raw.InsecureSkipVerify
	}
	if meta.IsDefined("gateway_address") {
		cfg.GatewayAddress = strings.TrimSpace(raw.GatewayAddress)
	}
	if meta.IsDefined("feedback_address") {
		cfg.FeedbackAddress = strings.TrimSpace(raw.FeedbackAddress)
	}
	if meta.IsDefined("request_timeout") {
		if cfg.Session.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return runtimeConfig{}, err
		}
	}
	if meta.IsDefined("connect_timeout") {
		if cfg.Session.ConnectTimeout, err = parseDuration("connect_timeout", raw.ConnectTimeout); err != nil {
			return runtimeConfig{}, err
		}
	}
	if meta.IsDefined("backoff_initial") {
		if cfg.Session.Backoff.InitialDelay, err = parseDuration("backoff_initial", raw.BackoffInitial); err != nil {
			return runtimeConfig{}, err
		}
	}
	if meta.IsDefined("backoff_max") {
		if cfg.Session.Backoff.MaxDelay, err = parseDuration("backoff_max", raw.BackoffMax); err != nil {
			return runtimeConfig{}, err
		}
	}
	if meta.IsDefined("backoff_multiplier") {
		if raw.BackoffMultiplier < 1 {
			return runtimeConfig{}, fmt.Errorf("load pushctl config: backoff_multiplier must be >= 1, got %v", raw.BackoffMultiplier)
		}
		cfg.Session.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Session.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("store_path") {
		cfg.StorePath = strings.TrimSpace(raw.StorePath)
	}

	if meta.IsDefined("api_token") {
		cfg.APIToken = strings.TrimSpace(raw.APIToken)
	}

	if err := cfg.Session.Validate(); err != nil {
		return runtimeConfig{}, fmt.Errorf("load pushctl config: %w", err)
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("load pushctl config: %s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func (c runtimeConfig) tlsConfig() (*tls.Config, error) {
	return credentials.ClientConfig(c.Certificate, credentials.Options{
		CAFile:             c.CAFile,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
		Production:         session.NormalizeEnvironment(c.Session.Environment) == session.EnvironmentProduction,
	})
}

func (c runtimeConfig) openSession(logger *zerolog.Logger) (*gateway.Session, error) {
	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	return gateway.New(gateway.Config{
		Session:      c.Session,
		TLS:          tlsCfg,
		GatewayAddr:  c.GatewayAddress,
		FeedbackAddr: c.FeedbackAddress,
		Logger:       logger,
	})
}
