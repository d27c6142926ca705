// ABOUTME: Tests for Corefile parsing and plugin setup.
// ABOUTME: Covers valid configurations, missing directives, and invalid values.

package dyndns

import (
	"strings"
	"testing"
	"time"

	"github.com/coredns/caddy"
)

func TestSetup_ValidMinimal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	input := `dyndns example.org. {
		datafile ` + dir + `/records.json
		listen 127.0.0.1:0
		user router
		password secret
	}`

	c := caddy.NewTestController("dns", input)
	if err := setup(c); err != nil {
		t.Fatalf("setup() error: %v", err)
	}
}

func TestSetup_ValidCloudflare(t *testing.T) {
	t.Parallel()
	input := `dyndns example.org. {
		listen 127.0.0.1:0
		user router
		password secret
		cloudflare {
			token cf-token
		}
		read_error fail
	}`

	c := caddy.NewTestController("dns", input)
	if err := setup(c); err != nil {
		t.Fatalf("setup() error: %v", err)
	}
}

func TestParseConfig_Full(t *testing.T) {
	t.Parallel()
	input := `dyndns example.org. example.net. {
		datafile /var/lib/coredns/records.yaml
		reload 30s
		listen :8443
		user router
		password secret
		tls cert.pem key.pem ca.pem
		read_error fail
		fallthrough example.net.
	}`

	cfg, err := parseConfig(caddy.NewTestController("dns", input))
	if err != nil {
		t.Fatalf("parseConfig() error: %v", err)
	}
	if len(cfg.zones) != 2 || cfg.zones[0] != "example.org." || cfg.zones[1] != "example.net." {
		t.Errorf("zones = %v", cfg.zones)
	}
	if cfg.reload != 30*time.Second {
		t.Errorf("reload = %v, want 30s", cfg.reload)
	}
	if cfg.listen != ":8443" || cfg.user != "router" || cfg.password != "secret" {
		t.Errorf("listen/user/password = %q/%q/%q", cfg.listen, cfg.user, cfg.password)
	}
	if cfg.tls == nil || cfg.tls.cert != "cert.pem" || cfg.tls.key != "key.pem" || cfg.tls.ca != "ca.pem" {
		t.Errorf("tls = %+v", cfg.tls)
	}
	if cfg.readErrors != ReadErrorFail {
		t.Errorf("readErrors = %v, want %v", cfg.readErrors, ReadErrorFail)
	}
	if len(cfg.fallArgs) != 1 || cfg.fallArgs[0] != "example.net." {
		t.Errorf("fallArgs = %v", cfg.fallArgs)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()
	input := `dyndns {
		datafile records.json
		listen :8080
		user router
		password secret
		tls cert.pem key.pem
	}`

	c := caddy.NewTestController("dns", input)
	c.ServerBlockKeys = []string{"example.org."}
	cfg, err := parseConfig(c)
	if err != nil {
		t.Fatalf("parseConfig() error: %v", err)
	}
	if len(cfg.zones) != 1 || cfg.zones[0] != "example.org." {
		t.Errorf("zones = %v, want server block zone", cfg.zones)
	}
	if cfg.readErrors != ReadErrorAsAbsent {
		t.Errorf("readErrors = %v, want %v", cfg.readErrors, ReadErrorAsAbsent)
	}
	if cfg.tls == nil || cfg.tls.ca != "" {
		t.Errorf("tls = %+v, want server-only TLS", cfg.tls)
	}
	if cfg.fallArgs != nil {
		t.Errorf("fallArgs = %v, want nil", cfg.fallArgs)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	t.Parallel()

	const creds = `
		listen :8080
		user router
		password secret`

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing listen", "datafile records.json\nuser router\npassword secret", "listen is required"},
		{"missing password", "datafile records.json\nlisten :8080\nuser router", "user and password"},
		{"missing user", "datafile records.json\nlisten :8080\npassword secret", "user and password"},
		{"no backend", creds, "datafile is required"},
		{"both backends", "datafile records.json\ncloudflare {\ntoken t\n}" + creds, "mutually exclusive"},
		{"empty cloudflare", "cloudflare {\n}" + creds, "requires a token"},
		{"unknown cloudflare directive", "cloudflare {\nemail me@example.org\n}" + creds, "unknown cloudflare directive"},
		{"bad reload", "datafile records.json\nreload soon" + creds, "invalid reload duration"},
		{"bad read_error", "datafile records.json\nread_error ignore" + creds, "read error policy"},
		{"tls one arg", "datafile records.json\ntls cert.pem" + creds, "CERT KEY"},
		{"datafile without path", "datafile" + creds, "datafile requires"},
		{"unknown directive", "datafile records.json\nttl 60" + creds, "unknown directive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			input := "dyndns example.org. {\n" + tt.body + "\n}"
			_, err := parseConfig(caddy.NewTestController("dns", input))
			if err == nil {
				t.Fatalf("parseConfig() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("parseConfig() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
