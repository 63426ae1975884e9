package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/pushgate/internal/testutil/testlog"
	"github.com/danmuck/pushgate/internal/testutil/tlstest"
)

func TestLoadInlineAndPath(t *testing.T) {
	testlog.Start(t)
	ca := newTestAuthority(t)
	b := ca.IssueClientCert(t, "provider")

	if !IsInline(b.PEM) {
		t.Fatalf("bundle PEM should be detected as inline")
	}
	if IsInline(b.BundlePath) {
		t.Fatalf("path should not be detected as inline")
	}

	fromPEM, err := Load(b.PEM)
	if err != nil {
		t.Fatalf("load inline: %v", err)
	}
	fromPath, err := Load(b.BundlePath)
	if err != nil {
		t.Fatalf("load path: %v", err)
	}
	if len(fromPEM.Certificate) == 0 || len(fromPath.Certificate) == 0 {
		t.Fatalf("expected certificate chains")
	}
	if string(fromPEM.Certificate[0]) != string(fromPath.Certificate[0]) {
		t.Fatalf("inline and path loads differ")
	}
}

func TestLoadErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := Load("  "); !errors.Is(err, ErrSourceRequired) {
		t.Fatalf("expected ErrSourceRequired, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatalf("expected read error")
	}

	ca := newTestAuthority(t)
	b := ca.IssueClientCert(t, "keyonly")
	if _, err := Load(b.KeyPath); !errors.Is(err, ErrNoCertificate) {
		t.Fatalf("expected ErrNoCertificate, got %v", err)
	}
	if _, err := Load(b.CertPath); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestClientConfig(t *testing.T) {
	testlog.Start(t)
	ca := newTestAuthority(t)
	b := ca.IssueClientCert(t, "provider")

	cfg, err := ClientConfig(b.BundlePath, Options{CAFile: ca.CAFile(), ServerName: "gateway.test"})
	if err != nil {
		t.Fatalf("client config: %v", err)
	}
	if cfg.RootCAs == nil || len(cfg.Certificates) != 1 || cfg.ServerName != "gateway.test" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := ClientConfig(b.PEM, Options{InsecureSkipVerify: true, Production: true}); !errors.Is(err, ErrInsecureSkipNotAllowed) {
		t.Fatalf("expected ErrInsecureSkipNotAllowed, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not pem"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ClientConfig(b.PEM, Options{CAFile: bad}); !errors.Is(err, ErrCAParse) {
		t.Fatalf("expected ErrCAParse, got %v", err)
	}
}

func newTestAuthority(t *testing.T) *tlstest.Authority {
	t.Helper()
	return tlstest.NewAuthority(t, "pushgate-test-ca")
}
