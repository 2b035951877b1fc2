package session

import (
	"crypto/rand"
	"os"
)

var emptyPeerID [20]byte

// GetOrCreatePeerID reads a previously persisted 20-byte peer identity
// from path, or generates and persists a new random one. A stable peer
// ID across daemon restarts lets peers recognize this client as the same
// participant in the swarm.
func GetOrCreatePeerID(path string) ([20]byte, error) {
	if existing, err := os.ReadFile(path); err == nil && len(existing) >= 20 {
		var out [20]byte
		copy(out[:], existing)
		return out, nil
	} else if err != nil && !os.IsNotExist(err) {
		return emptyPeerID, err
	}

	var out [20]byte
	if _, err := rand.Read(out[:]); err != nil {
		return emptyPeerID, err
	}
	if err := os.WriteFile(path, out[:], 0o644); err != nil {
		return emptyPeerID, err
	}
	return out, nil
}
