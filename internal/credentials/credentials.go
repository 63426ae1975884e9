// Package credentials loads provider certificates for the push gateway.
//
// A provider credential is a single PEM bundle holding both the client
// certificate and its private key. It may be passed inline or as a path.
package credentials

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

const inlineMarker = "-----BEGIN CERTIFICATE"

var (
	ErrSourceRequired         = errors.New("credentials: certificate source required")
	ErrNoCertificate          = errors.New("credentials: no certificate in bundle")
	ErrCAParse                = errors.New("credentials: parse ca bundle")
	ErrInsecureSkipNotAllowed = errors.New("credentials: insecure skip verify not allowed in production")
)

// Options tunes the client TLS config built around the provider certificate.
type Options struct {
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	Production         bool
}

// IsInline reports whether source carries PEM text rather than a path.
func IsInline(source string) bool {
	return strings.Contains(source, inlineMarker)
}

// ReadBundle returns the raw PEM bytes for source.
func ReadBundle(source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrSourceRequired
	}
	if IsInline(source) {
		log.Debug().Str("source", "inline").Msg("credentials.ReadBundle")
		return []byte(source), nil
	}
	log.Debug().Str("source", source).Msg("credentials.ReadBundle")
	b, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", source, err)
	}
	return b, nil
}

// Load parses the certificate and private key from a single bundle.
func Load(source string) (tls.Certificate, error) {
	b, err := ReadBundle(source)
	if err != nil {
		return tls.Certificate{}, err
	}
	if !bytes.Contains(b, []byte(inlineMarker)) {
		return tls.Certificate{}, ErrNoCertificate
	}
	cert, err := tls.X509KeyPair(b, b)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("credentials: parse bundle: %w", err)
	}
	return cert, nil
}

// ClientConfig builds the TLS config used for both gateway and feedback
// connections.
func ClientConfig(source string, opts Options) (*tls.Config, error) {
	if opts.Production && opts.InsecureSkipVerify {
		return nil, ErrInsecureSkipNotAllowed
	}
	cert, err := Load(source)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Certificates:       []tls.Certificate{cert},
		ServerName:         strings.TrimSpace(opts.ServerName),
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}
	if caPath := strings.TrimSpace(opts.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("%w: %s", ErrCAParse, caPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
