package credential

import (
	"testing"

	"github.com/99designs/keyring"
)

func withArrayKeyring(t *testing.T) {
	t.Helper()

	orig := open
	ring := keyring.NewArrayKeyring(nil)
	open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { open = orig })
}

func TestIMAPKey(t *testing.T) {
	if got := IMAPKey("user@example.com"); got != "imap:user@example.com" {
		t.Errorf("IMAPKey = %q", got)
	}
}

func TestSetGetDeleteRoundTrip(t *testing.T) {
	withArrayKeyring(t)

	key := IMAPKey("user@example.com")
	if err := Set(key, "hunter2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Get = %q, want %q", got, "hunter2")
	}

	if err := Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := Get(key); err == nil {
		t.Error("expected error for deleted credential")
	}
}

func TestGetMissingCredential(t *testing.T) {
	withArrayKeyring(t)

	if _, err := Get(IMAPKey("nobody@example.com")); err == nil {
		t.Error("expected error for unknown credential")
	}
}
