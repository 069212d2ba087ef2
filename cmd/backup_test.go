package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marcus/till/internal/crypto"
	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/pos"
)

func TestEncryptedBackupRoundTrip(t *testing.T) {
	path := useTempStore(t)
	backup := filepath.Join(t.TempDir(), "backup.till")

	runCLI(t, "category", "add", "Drinks")
	runCLI(t, "export", backup, "--passphrase", "s3cret")

	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatal(err)
	}
	if !crypto.IsSealed(data) || bytes.Contains(data, []byte("Drinks")) {
		t.Fatal("backup is not encrypted")
	}

	runCLI(t, "clear", "--yes")
	runCLI(t, "import", backup, "--passphrase", "s3cret", "--yes")

	store, err := db.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	cats, err := pos.New(store).Categories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 1 || cats[0].Name != "Drinks" {
		t.Errorf("categories after import = %+v", cats)
	}
}
