package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpen(t *testing.T) {
	plaintext := []byte(`{"version":1,"products":[{"name":"Green tea"}]}`)
	sealed, err := Seal("correct horse", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatal("sealed output not recognized")
	}
	if bytes.Contains(sealed, []byte("Green tea")) {
		t.Fatal("plaintext visible in sealed output")
	}

	got, err := Open("correct horse", sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round-trip mismatch: got %q", got)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, err := Seal("pw", []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal("pw", []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same input are identical")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := Seal("right", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open("wrong", sealed); !errors.Is(err, ErrBadPassphrase) {
		t.Fatalf("Open with wrong passphrase: err = %v, want ErrBadPassphrase", err)
	}
}

func TestOpenTampered(t *testing.T) {
	sealed, err := Seal("pw", []byte("secret ledger"))
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Open("pw", sealed); !errors.Is(err, ErrBadPassphrase) {
		t.Fatalf("Open tampered: err = %v, want ErrBadPassphrase", err)
	}
}

func TestOpenRejectsUnsealed(t *testing.T) {
	if _, err := Open("pw", []byte(`{"version":1}`)); err == nil {
		t.Fatal("plain JSON accepted")
	}
	if _, err := Open("pw", magic); err == nil {
		t.Fatal("truncated file accepted")
	}
}

func TestSealRejectsEmptyPassphrase(t *testing.T) {
	if _, err := Seal("", []byte("x")); err == nil {
		t.Fatal("empty passphrase accepted")
	}
}
