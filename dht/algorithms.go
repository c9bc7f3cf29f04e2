package dht

import (
	"sort"

	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/kutluhann/xordht/id_tools"
)

// Color is the progress of one candidate within a lookup.
type Color uint8

const (
	White  Color = iota // known, not yet queried
	Grey                // request outstanding
	Black               // responded
	Yellow              // request timed out
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Grey:
		return "grey"
	case Black:
		return "black"
	case Yellow:
		return "yellow"
	}
	return "unknown"
}

// LookupEntry is a candidate of a lookup. Expires is only meaningful while
// the entry is Grey.
type LookupEntry struct {
	Contact Contact
	Color   Color
	Expires mclock.AbsTime
}

// LookupState is the shortlist of one lookup, ordered by ascending distance
// to Target.
type LookupState struct {
	Target  NodeID
	Entries []LookupEntry
	Intent  Intent
	Value   []byte

	Started    mclock.AbsTime
	ValueFound bool
}

func NewLookupState(target NodeID, started mclock.AbsTime) *LookupState {
	return &LookupState{
		Target:  target,
		Started: started,
	}
}

// Append merges contacts into the shortlist as White entries. Contacts
// already present and the local node are skipped. It reports how many
// entries were added.
func (ls *LookupState) Append(contacts []Contact, self NodeID) int {
	added := 0
	for _, c := range contacts {
		if c.ID == self || ls.index(c.ID) >= 0 {
			continue
		}
		pos := sort.Search(len(ls.Entries), func(i int) bool {
			return id_tools.CompareDistanceTo(ls.Entries[i].Contact.ID, c.ID, ls.Target) > 0
		})
		ls.Entries = append(ls.Entries, LookupEntry{})
		copy(ls.Entries[pos+1:], ls.Entries[pos:])
		ls.Entries[pos] = LookupEntry{Contact: c, Color: White}
		added++
	}
	return added
}

func (ls *LookupState) index(id NodeID) int {
	for i := range ls.Entries {
		if ls.Entries[i].Contact.ID == id {
			return i
		}
	}
	return -1
}

// Entry returns the entry for id, or nil.
func (ls *LookupState) Entry(id NodeID) *LookupEntry {
	if i := ls.index(id); i >= 0 {
		return &ls.Entries[i]
	}
	return nil
}

// PickNextBest returns the closest White entry, or nil when none is left.
func (ls *LookupState) PickNextBest() *LookupEntry {
	for i := range ls.Entries {
		if ls.Entries[i].Color == White {
			return &ls.Entries[i]
		}
	}
	return nil
}

// Finished reports whether the leading k entries, or all of them when
// fewer than k are known, have responded. A single non-Black entry among
// them blocks completion.
func (ls *LookupState) Finished(k int) bool {
	leading := 0
	for _, e := range ls.Entries {
		if e.Color != Black {
			break
		}
		leading++
	}
	return leading >= k || leading == len(ls.Entries)
}

// Exhausted reports that nothing is left to query or wait for.
func (ls *LookupState) Exhausted() bool {
	for _, e := range ls.Entries {
		if e.Color == White || e.Color == Grey {
			return false
		}
	}
	return true
}

// Responded returns up to k Black contacts in ascending distance order.
func (ls *LookupState) Responded(k int) []Contact {
	out := make([]Contact, 0, k)
	for _, e := range ls.Entries {
		if len(out) == k {
			break
		}
		if e.Color == Black {
			out = append(out, e.Contact)
		}
	}
	return out
}
