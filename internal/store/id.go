package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns a time-sortable lexicographic identifier: a millisecond
// timestamp in hex followed by random hex bytes, so ORDER BY id agrees
// with ORDER BY created_at. Mirrors the teacher's newTaskID fallback
// chain (crypto/rand, falling back to a clock-derived value if the
// system RNG is unavailable).
func NewID() string {
	ts := time.Now().UTC().UnixMilli()
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return fmt.Sprintf("%013x%s", ts, hex.EncodeToString(b[:]))
	}
	return fmt.Sprintf("%013x%016x", ts, time.Now().UnixNano())
}
