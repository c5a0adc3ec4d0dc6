// Package agenttools implements the Agent Tools Router (§4.G): the
// per-chat HTTP surface an in-container agent calls to publish artifacts,
// resolve credentials, bind a freshly cloned project, and send its
// readiness ACK.
package agenttools

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns the hex-encoded SHA-256 digest of a raw token, the form
// persisted alongside a chat record (§3 "Chat... per-run artifact publish
// token hash").
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokensMatch compares a presented raw token against a stored hash in
// constant time, never reconstructing or logging the raw value (§9 "Trust
// boundary of the publish token").
func TokensMatch(presented, storedHash string) bool {
	if presented == "" || storedHash == "" {
		return false
	}
	got := HashToken(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
