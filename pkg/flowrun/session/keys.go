package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// BuildKey derives the cache key for a session and flow payload hash.
// The hash is the payload's canonical content hash, so the key changes
// whenever the flow structure changes. With an empty session id the key is
// the hash alone.
func BuildKey(sessionID, contentHash string) string {
	if sessionID == "" {
		return contentHash
	}
	return sessionID + ":" + contentHash
}

// GenerateSessionID returns a fresh random session id (16 hex characters).
// Callers that receive a generated id must treat it as single-use: reusing
// it for unrelated flows defeats session isolation.
func GenerateSessionID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
