package id_tools

import (
	"encoding/hex"
	"math/bits"

	"github.com/kutluhann/xordht/constants"
)

// PeerID identifies a node or a lookup target.
type PeerID [constants.KeySizeBytes]byte

// Distance is the XOR of two PeerIDs. Distances compare as big-endian
// unsigned integers, most significant byte first.
type Distance [constants.KeySizeBytes]byte

func Xor(a, b PeerID) Distance {
	var result Distance
	for i := 0; i < len(a); i++ {
		result[i] = a[i] ^ b[i]
	}
	return result
}

func (id PeerID) DistanceTo(other PeerID) Distance {
	return Xor(id, other)
}

// CompareDistance returns 1 when a is farther than b, -1 when b is farther
// and 0 when both distances are equal.
func CompareDistance(a, b Distance) int {
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// CompareDistanceTo compares a and b by their distance to basis.
func CompareDistanceTo(a, b, basis PeerID) int {
	return CompareDistance(Xor(basis, a), Xor(basis, b))
}

// BucketIndex maps a distance to the position of its highest set bit,
// counted from the least significant end. The zero distance maps to 0 as
// well, so callers must never insert their own id.
func BucketIndex(d Distance) int {
	for i := 0; i < len(d); i++ {
		if d[i] != 0 {
			return 8*(len(d)-1-i) + bits.Len8(d[i]) - 1
		}
	}
	return 0
}

func (d Distance) IsZero() bool {
	return d == Distance{}
}

func (d Distance) String() string {
	return hex.EncodeToString(d[:])
}

func (id PeerID) Less(other PeerID) bool {
	for i := 0; i < len(id); i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// Short is the truncated form used in log lines.
func (id PeerID) Short() string {
	return hex.EncodeToString(id[:3])
}
