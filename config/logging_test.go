package config

import (
	"path/filepath"
	"testing"
)

func TestLogFilePathEnvOverride(t *testing.T) {
	t.Setenv("VAULT_LOG_FILE", "")
	if got, want := LogFilePath(), filepath.Join("logs", "vault-api.log"); got != want {
		t.Fatalf("default log path = %q, want %q", got, want)
	}

	custom := filepath.Join(t.TempDir(), "api.log")
	t.Setenv("VAULT_LOG_FILE", custom)
	if got := LogFilePath(); got != custom {
		t.Fatalf("overridden log path = %q, want %q", got, custom)
	}
}
