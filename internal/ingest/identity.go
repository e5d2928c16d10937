package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint derives the deterministic document ID for a message as the
// hex-encoded SHA-256 of "account:folder:uid". Identical triples always
// produce the identical ID.
func Fingerprint(account, folder string, uid uint32) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", account, folder, uid)))
	return hex.EncodeToString(sum[:])
}
