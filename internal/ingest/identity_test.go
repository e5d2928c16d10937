package ingest

import (
	"regexp"
	"testing"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("user@example.com", "INBOX", 42)
	b := Fingerprint("user@example.com", "INBOX", 42)
	if a != b {
		t.Errorf("identical inputs produced different ids: %s vs %s", a, b)
	}
}

func TestFingerprintShape(t *testing.T) {
	id := Fingerprint("user@example.com", "INBOX", 1)
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(id) {
		t.Errorf("id %q is not 64 lowercase hex chars", id)
	}
}

func TestFingerprintDistinguishesTriples(t *testing.T) {
	base := Fingerprint("user@example.com", "INBOX", 7)
	variants := []string{
		Fingerprint("user@example.com", "INBOX", 8),
		Fingerprint("user@example.com", "Archive", 7),
		Fingerprint("other@example.com", "INBOX", 7),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base id", i)
		}
	}
}
