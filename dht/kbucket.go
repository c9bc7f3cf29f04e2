package dht

// KBucket holds up to k contacts ordered least-recently-seen first.
// It is owned by a single goroutine and is not safe for concurrent use.
type KBucket struct {
	contacts []Contact
	k        int
}

func NewKBucket(k int) *KBucket {
	return &KBucket{
		contacts: make([]Contact, 0, k),
		k:        k,
	}
}

// Update records that c was just seen.
// Logic:
// 1. Any entry with the same ID is removed.
// 2. If there is room, c is appended as the most recently seen entry.
// 3. If the bucket is full, the bucket is left untouched and the head is
// returned as the eviction candidate for c.
func (kb *KBucket) Update(c Contact) *EvictionCandidate {
	kb.remove(c.ID)

	if len(kb.contacts) < kb.k {
		kb.contacts = append(kb.contacts, c)
		return nil
	}

	return &EvictionCandidate{
		Old: kb.contacts[0],
		New: c,
	}
}

func (kb *KBucket) remove(id NodeID) bool {
	for i, existing := range kb.contacts {
		if existing.ID == id {
			kb.contacts = append(kb.contacts[:i], kb.contacts[i+1:]...)
			return true
		}
	}
	return false
}

// Head returns the least-recently-seen contact.
func (kb *KBucket) Head() (Contact, bool) {
	if len(kb.contacts) == 0 {
		return Contact{}, false
	}
	return kb.contacts[0], true
}

// Contacts returns a copy of the bucket in least-recently-seen order.
func (kb *KBucket) Contacts() []Contact {
	snapshot := make([]Contact, len(kb.contacts))
	copy(snapshot, kb.contacts)
	return snapshot
}

func (kb *KBucket) Len() int {
	return len(kb.contacts)
}
