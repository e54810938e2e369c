package dispatcher

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("dispatcher", flag.ContinueOnError)
	t.Setenv("NESO_DISPATCHER_PORT", "9091")
	t.Setenv("NESO_DISPATCHER_DB_PATH", "data/test-federation.db")

	cfg, err := ParseConfig(fs, []string{"-max-attempts", "3", "-poll-interval", "500ms"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9091 {
		t.Fatalf("port = %d, want 9091", cfg.Port)
	}
	if cfg.DBPath != "data/test-federation.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("poll interval = %v, want 500ms", cfg.PollInterval)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("dispatcher", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8091 {
		t.Fatalf("port = %d, want 8091", cfg.Port)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.MaxAttempts != 8 {
		t.Fatalf("max attempts = %d, want 8", cfg.MaxAttempts)
	}
	if cfg.SendTimeout != 30*time.Second {
		t.Fatalf("send timeout = %v, want 30s", cfg.SendTimeout)
	}
}
