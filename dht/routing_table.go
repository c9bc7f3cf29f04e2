package dht

import (
	"sort"

	"github.com/kutluhann/xordht/constants"
	"github.com/kutluhann/xordht/id_tools"
)

// RoutingTable holds one k-bucket per bucket index. Bucket i holds peers
// whose distance from the local node has its highest set bit at position i:
//   - Bucket 0:   distance 1        (longest shared prefix)
//   - Bucket 159: distance [2^159, 2^160)
//
// The table is mutated only by the state actor and carries no locks.
type RoutingTable struct {
	self    NodeID
	k       int
	buckets [constants.BucketCount]*KBucket
}

func NewRoutingTable(self NodeID, k int) *RoutingTable {
	if k <= 0 {
		k = constants.K
	}
	rt := &RoutingTable{
		self: self,
		k:    k,
	}
	for i := range rt.buckets {
		rt.buckets[i] = NewKBucket(k)
	}
	return rt
}

func (rt *RoutingTable) Self() NodeID {
	return rt.self
}

func (rt *RoutingTable) K() int {
	return rt.k
}

// BucketIndexFor returns the bucket a contact with the given id belongs in.
func (rt *RoutingTable) BucketIndexFor(id NodeID) int {
	return bucketIndexBetween(rt.self, id)
}

// Update refreshes contact in the bucket at bucketIndex. When the bucket is
// full and contact is new, the returned candidate must be verified by the
// caller before ApplyEviction is used. The local node is never stored.
func (rt *RoutingTable) Update(bucketIndex int, contact Contact) *EvictionCandidate {
	if contact.ID == rt.self {
		return nil
	}
	if bucketIndex < 0 || bucketIndex >= len(rt.buckets) {
		return nil
	}
	return rt.buckets[bucketIndex].Update(contact)
}

// ApplyEviction replaces ec.Old with ec.New if ec.Old is still the
// least-recently-seen entry of its bucket. A peer that was heard from after
// the candidate was created has moved away from the head and is kept.
func (rt *RoutingTable) ApplyEviction(ec EvictionCandidate) bool {
	bucket := rt.buckets[rt.BucketIndexFor(ec.Old.ID)]
	head, ok := bucket.Head()
	if !ok || head.ID != ec.Old.ID {
		return false
	}
	bucket.remove(ec.Old.ID)

	if ec.New.ID == rt.self {
		return true
	}
	newBucket := rt.buckets[rt.BucketIndexFor(ec.New.ID)]
	newBucket.Update(ec.New)
	return true
}

// FindKClosest returns up to k contacts ordered by ascending distance to
// target. The result is kept bounded while scanning, so the farthest entry
// is dropped whenever the list would grow past k.
func (rt *RoutingTable) FindKClosest(target NodeID) []ClosestContact {
	return rt.findKClosest(target, nil)
}

// FindKClosestExcept is FindKClosest without the contact whose id is
// exclude, used to keep a requester out of its own answer.
func (rt *RoutingTable) FindKClosestExcept(target, exclude NodeID) []ClosestContact {
	return rt.findKClosest(target, &exclude)
}

func (rt *RoutingTable) findKClosest(target NodeID, exclude *NodeID) []ClosestContact {
	closest := make([]ClosestContact, 0, rt.k+1)

	for _, bucket := range rt.buckets {
		for _, c := range bucket.contacts {
			if exclude != nil && c.ID == *exclude {
				continue
			}
			dist := id_tools.Xor(c.ID, target)

			pos := sort.Search(len(closest), func(i int) bool {
				return id_tools.CompareDistance(closest[i].Distance, dist) > 0
			})
			if pos >= rt.k {
				continue
			}

			closest = append(closest, ClosestContact{})
			copy(closest[pos+1:], closest[pos:])
			closest[pos] = ClosestContact{Distance: dist, Contact: c}

			if len(closest) > rt.k {
				closest = closest[:rt.k]
			}
		}
	}
	return closest
}

func (rt *RoutingTable) Contains(id NodeID) bool {
	for _, c := range rt.buckets[rt.BucketIndexFor(id)].contacts {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (rt *RoutingTable) TotalContacts() int {
	total := 0
	for _, b := range rt.buckets {
		total += b.Len()
	}
	return total
}

// BucketInfo describes one non-empty bucket.
type BucketInfo struct {
	Index    int
	Contacts []Contact
}

// Occupancy lists the non-empty buckets in index order.
func (rt *RoutingTable) Occupancy() []BucketInfo {
	var info []BucketInfo
	for i, b := range rt.buckets {
		if b.Len() == 0 {
			continue
		}
		info = append(info, BucketInfo{Index: i, Contacts: b.Contacts()})
	}
	return info
}
