package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
auth:
  users:
    - token: tok-1
      id: u1
      email: u1@example.com
      role: employe
      actif: true
paths:
  catalog: catalog.json
`

// Load fills defaults for everything the file leaves out.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second || cfg.Server.WriteTimeout != 30*time.Second {
		t.Fatalf("default timeouts = %v/%v", cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Hub.PingInterval != 30*time.Second {
		t.Fatalf("default ping interval = %v", cfg.Hub.PingInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default log level = %q", cfg.Logging.Level)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Fatalf("Addr() = %q", cfg.Server.Addr())
	}
}

// Secrets in the environment win over values in the file.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SMTP_PASSWORD", "env-secret")

	body := minimalConfig + `
database:
  dsn: postgres://file/db
smtp:
  enabled: true
  host: smtp.example.com
  from: support@example.com
  password: file-secret
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Fatalf("DSN = %q, want env value", cfg.Database.DSN)
	}
	if cfg.SMTP.Password != "env-secret" {
		t.Fatalf("SMTP password = %q, want env value", cfg.SMTP.Password)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing catalog path",
			body: strings.Replace(minimalConfig, "catalog: catalog.json", `catalog: ""`, 1),
			want: "catalog path",
		},
		{
			name: "no users",
			body: "paths:\n  catalog: catalog.json\n",
			want: "auth user",
		},
		{
			name: "duplicate token",
			body: `
auth:
  users:
    - {token: tok-1, id: u1, email: u1@example.com, role: employe, actif: true}
    - {token: tok-1, id: u2, email: u2@example.com, role: admin, actif: true}
paths:
  catalog: catalog.json
`,
			want: "duplicate token",
		},
		{
			name: "smtp enabled without host",
			body: minimalConfig + "smtp:\n  enabled: true\n",
			want: "smtp",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load error = %v, want containing %q", err, tc.want)
			}
		})
	}
}
