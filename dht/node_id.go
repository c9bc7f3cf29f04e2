package dht

import (
	"github.com/kutluhann/xordht/id_tools"
)

// NodeID is the identifier of a peer, and also the type of every key stored
// in or looked up through the table.
type NodeID = id_tools.PeerID

func bucketIndexBetween(self, other NodeID) int {
	return id_tools.BucketIndex(id_tools.Xor(self, other))
}
