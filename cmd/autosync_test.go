package cmd

import (
	"context"
	"testing"

	"github.com/marcus/till/internal/db"
)

func TestIsMutatingCommand(t *testing.T) {
	// Commands that should trigger auto-sync
	mutating := [][]string{
		{"sale"}, {"sale", "return"}, {"sale", "resume"},
		{"product", "add"}, {"product", "stock"},
		{"contact", "delete"}, {"ledger", "add"}, {"fee", "add"}, {"outbox", "requeue"},
	}
	for _, path := range mutating {
		c, _, err := rootCmd.Find(path)
		if err != nil {
			t.Fatalf("find %v: %v", path, err)
		}
		if !isMutatingCommand(c) {
			t.Errorf("expected %q to be mutating", commandKey(c))
		}
	}

	// Commands that should NOT trigger auto-sync
	readOnly := [][]string{
		{"sale", "list"}, {"sale", "hold"}, {"product", "list"}, {"report"},
		{"status"}, {"sync"}, {"outbox", "list"}, {"config", "set"}, {"export"},
	}
	for _, path := range readOnly {
		c, _, err := rootCmd.Find(path)
		if err != nil {
			t.Fatalf("find %v: %v", path, err)
		}
		if isMutatingCommand(c) {
			t.Errorf("expected %q to NOT be mutating", commandKey(c))
		}
	}
}

func TestCommandKey(t *testing.T) {
	c, _, err := rootCmd.Find([]string{"contact", "reset-points"})
	if err != nil {
		t.Fatal(err)
	}
	if got := commandKey(c); got != "contact reset-points" {
		t.Errorf("commandKey = %q", got)
	}
	if got := commandKey(rootCmd); got != "" {
		t.Errorf("root key = %q, want empty", got)
	}
}

func TestAutoSyncEnabled_Default(t *testing.T) {
	// With no env var set, auto-sync should be enabled by default
	t.Setenv("TILL_AUTO_SYNC", "")
	saved := cfg
	cfg = nil
	t.Cleanup(func() { cfg = saved })
	if !AutoSyncEnabled() {
		t.Error("expected auto-sync enabled by default")
	}
}

func TestAutoSyncEnabled_Disabled(t *testing.T) {
	t.Setenv("TILL_AUTO_SYNC", "0")
	if AutoSyncEnabled() {
		t.Error("expected auto-sync disabled when TILL_AUTO_SYNC=0")
	}
}

func TestAutoSyncEnabled_Explicit(t *testing.T) {
	t.Setenv("TILL_AUTO_SYNC", "true")
	if !AutoSyncEnabled() {
		t.Error("expected auto-sync enabled when TILL_AUTO_SYNC=true")
	}

	t.Setenv("TILL_AUTO_SYNC", "1")
	if !AutoSyncEnabled() {
		t.Error("expected auto-sync enabled when TILL_AUTO_SYNC=1")
	}
}

func TestOfflineSyncLeavesOutboxQueued(t *testing.T) {
	path := useTempStore(t)
	t.Setenv("TILL_AUTO_SYNC", "1")
	t.Setenv("TILL_SYNC_URL", "http://127.0.0.1:1")
	t.Setenv("TILL_SYNC_RETRY_CEILING", "1")

	for _, name := range []string{"Drinks", "Snacks", "Soap"} {
		runCLI(t, "category", "add", name)
	}
	runCLI(t, "sync")
	runCLI(t, "sync")

	store, err := db.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	entries, err := store.PendingEntries(ctx)
	if err != nil || len(entries) != 3 {
		t.Fatalf("pending = %d, %v", len(entries), err)
	}
	for _, e := range entries {
		if e.Attempts != 0 {
			t.Errorf("seq %d charged %d attempts while offline", e.Sequence, e.Attempts)
		}
	}
	if dead, _ := store.DeadEntries(ctx); len(dead) != 0 {
		t.Errorf("dead-lettered while offline: %d", len(dead))
	}
}
