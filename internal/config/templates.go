// Package config holds starter pushctl config files.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter config for the named environment.
func Template(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "production":
		return fmt.Sprintf(baseTemplate, "production", "/etc/pushgate/provider.pem"), nil
	case "sandbox":
		return fmt.Sprintf(baseTemplate, "sandbox", "/etc/pushgate/provider-sandbox.pem"), nil
	case "local":
		return localTemplate, nil
	default:
		return "", fmt.Errorf("unknown config template: %s", env)
	}
}

func WriteTemplate(path, env string, overwrite bool) error {
	template, err := Template(env)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const baseTemplate = `environment = %q
certificate = %q

request_timeout = "15s"
connect_timeout = "10s"
backoff_initial = "1s"
backoff_max = "1h"
backoff_multiplier = 2.718
backoff_jitter = true

http_addr = ":8080"
cors_origins = ["http://localhost:3000"]
store_path = "pushgate-feedback.db"
`

// localTemplate points both endpoints at a gateway stub on this host.
const localTemplate = `environment = "sandbox"
certificate = "provider.pem"
ca_file = "ca.pem"
server_name = "localhost"
gateway_address = "127.0.0.1:2195"
feedback_address = "127.0.0.1:2196"

request_timeout = "5s"
connect_timeout = "2s"
backoff_initial = "100ms"
backoff_max = "5s"

http_addr = "127.0.0.1:8080"
`
