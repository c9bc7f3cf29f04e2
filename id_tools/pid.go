package id_tools

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"

	"github.com/kutluhann/xordht/constants"
)

// Generate returns a random identifier. Identifiers are not bound to any key
// material, so the only requirement is a uniform fill of the full width.
func Generate() PeerID {
	var id PeerID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("id_tools: reading random bytes: %v", err))
	}
	return id
}

// Parse decodes a hex identifier with or without the 0x prefix.
func Parse(s string) (PeerID, error) {
	var id PeerID
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid node id: %w", err)
	}
	if len(raw) != constants.KeySizeBytes {
		return id, fmt.Errorf("invalid node id length: got %d bytes, want %d", len(raw), constants.KeySizeBytes)
	}
	copy(id[:], raw)
	return id, nil
}

// HashKey maps an application key of any length into the identifier space.
func HashKey(key []byte) PeerID {
	h, err := blake2b.New(constants.KeySizeBytes, nil)
	if err != nil {
		// Only reachable with an invalid digest size.
		panic(err)
	}
	h.Write(key)

	var id PeerID
	copy(id[:], h.Sum(nil))
	return id
}
