package syncconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// withConfigFile points TILL_CONFIG at a temp file holding contents (none
// when empty) and isolates HOME.
func withConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.json")
	t.Setenv("TILL_CONFIG", path)
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	withConfigFile(t, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.URL != defaultServerURL {
		t.Errorf("url = %q", cfg.Sync.URL)
	}
	if cfg.Sync.RetryCeiling != 5 {
		t.Errorf("retry ceiling = %d, want 5", cfg.Sync.RetryCeiling)
	}
	if cfg.Sync.Interval != 60*time.Second || cfg.Sync.EntryTimeout != 15*time.Second || cfg.Sync.ProbeInterval != 10*time.Second {
		t.Errorf("durations = %v / %v / %v", cfg.Sync.Interval, cfg.Sync.EntryTimeout, cfg.Sync.ProbeInterval)
	}
	if !cfg.Sync.Auto {
		t.Error("auto sync should default on")
	}
	if !strings.HasSuffix(cfg.DB.Path, "till.db") {
		t.Errorf("db path = %q", cfg.DB.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	withConfigFile(t, `{"sync":{"url":"https://pos.example.com","retry_ceiling":3,"interval":"2m"},"log":{"level":"debug"}}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.URL != "https://pos.example.com" || cfg.Sync.RetryCeiling != 3 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Interval != 2*time.Minute {
		t.Errorf("interval = %v", cfg.Sync.Interval)
	}
	if cfg.Sync.EntryTimeout != 15*time.Second {
		t.Errorf("unset key lost its default: %v", cfg.Sync.EntryTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	withConfigFile(t, `{"sync":{"url":"https://file.example.com","retry_ceiling":3}}`)
	t.Setenv("TILL_SYNC_URL", "https://env.example.com")
	t.Setenv("TILL_SYNC_RETRY_CEILING", "8")
	t.Setenv("TILL_SYNC_AUTO", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.URL != "https://env.example.com" {
		t.Errorf("url = %q, want env value", cfg.Sync.URL)
	}
	if cfg.Sync.RetryCeiling != 8 {
		t.Errorf("retry ceiling = %d, want 8", cfg.Sync.RetryCeiling)
	}
	if cfg.Sync.Auto {
		t.Error("TILL_SYNC_AUTO=false ignored")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"zero ceiling", `{"sync":{"retry_ceiling":0}}`},
		{"negative timeout", `{"sync":{"entry_timeout":"-1s"}}`},
		{"malformed json", `{"sync":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfigFile(t, tt.file)
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSetPersistsAndValidates(t *testing.T) {
	path := withConfigFile(t, `{"sync":{"url":"https://keep.example.com"}}`)

	if err := Set("sync.retry_ceiling", "7"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.RetryCeiling != 7 || cfg.Sync.URL != "https://keep.example.com" {
		t.Errorf("after Set: %+v", cfg.Sync)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(data), "probe_interval") {
		t.Errorf("defaults written to file: %s", data)
	}

	if err := Set("sync.retry_ceiling", "0"); err == nil {
		t.Error("invalid value accepted")
	}
	if err := Set("nope", "1"); err == nil {
		t.Error("unknown key accepted")
	}
	if v, err := Get("sync.retry_ceiling"); err != nil || v != "7" {
		t.Errorf("Get = %q, %v", v, err)
	}
}
