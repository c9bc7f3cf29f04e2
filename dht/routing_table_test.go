package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kutluhann/xordht/id_tools"
)

func TestKBucketUpdate(t *testing.T) {
	kb := NewKBucket(2)
	a := testContact(t, idWithPrefix(0x80, 1), 4001)
	b := testContact(t, idWithPrefix(0x80, 2), 4002)
	c := testContact(t, idWithPrefix(0x80, 3), 4003)

	assert.Nil(t, kb.Update(a))
	assert.Nil(t, kb.Update(b))
	assert.Equal(t, []Contact{a, b}, kb.Contacts())

	t.Run("seen again moves to tail", func(t *testing.T) {
		assert.Nil(t, kb.Update(a))
		assert.Equal(t, []Contact{b, a}, kb.Contacts())
	})

	t.Run("full bucket yields candidate without mutation", func(t *testing.T) {
		ec := kb.Update(c)
		require.NotNil(t, ec)
		assert.Equal(t, b, ec.Old)
		assert.Equal(t, c, ec.New)
		assert.Equal(t, []Contact{b, a}, kb.Contacts())
	})

	t.Run("present contact in full bucket is refreshed", func(t *testing.T) {
		moved := a
		moved.Port = 5000
		assert.Nil(t, kb.Update(moved))
		assert.Equal(t, []Contact{b, moved}, kb.Contacts())
	})
}

func TestRoutingTableUpdateIgnoresSelf(t *testing.T) {
	self := idWithPrefix(0x42)
	rt := NewRoutingTable(self, 2)

	assert.Nil(t, rt.Update(0, testContact(t, self, 4000)))
	assert.Equal(t, 0, rt.TotalContacts())
	assert.Nil(t, rt.Update(-1, testContact(t, idWithPrefix(1), 4000)))
	assert.Nil(t, rt.Update(len(rt.buckets), testContact(t, idWithPrefix(1), 4000)))
	assert.Equal(t, 0, rt.TotalContacts())
}

func TestRoutingTableBucketPlacement(t *testing.T) {
	rt := NewRoutingTable(NodeID{}, 8)

	far := idWithPrefix(0x80)
	near := NodeID{}
	near[len(near)-1] = 1

	assert.Equal(t, 159, rt.BucketIndexFor(far))
	assert.Equal(t, 0, rt.BucketIndexFor(near))

	rt.Update(rt.BucketIndexFor(far), testContact(t, far, 4000))
	rt.Update(rt.BucketIndexFor(near), testContact(t, near, 4001))

	assert.True(t, rt.Contains(far))
	assert.True(t, rt.Contains(near))
	occupancy := rt.Occupancy()
	require.Len(t, occupancy, 2)
	assert.Equal(t, 0, occupancy[0].Index)
	assert.Equal(t, 159, occupancy[1].Index)
}

func TestFindKClosest(t *testing.T) {
	self := id_tools.Generate()
	rt := NewRoutingTable(self, 8)

	for i := 0; i < 100; i++ {
		id := id_tools.Generate()
		rt.Update(rt.BucketIndexFor(id), testContact(t, id, 4000+i))
	}

	for i := 0; i < 20; i++ {
		target := id_tools.Generate()
		closest := rt.FindKClosest(target)

		require.LessOrEqual(t, len(closest), 8)
		require.Equal(t, min(8, rt.TotalContacts()), len(closest))
		for j := 1; j < len(closest); j++ {
			assert.LessOrEqual(t, id_tools.CompareDistance(closest[j-1].Distance, closest[j].Distance), 0,
				"results must be non-decreasing in distance")
		}
		for _, cc := range closest {
			assert.Equal(t, id_tools.Xor(cc.Contact.ID, target), cc.Distance)
		}
	}
}

func TestFindKClosestIsExact(t *testing.T) {
	rt := NewRoutingTable(NodeID{}, 3)
	ids := []NodeID{
		idWithPrefix(0x01), idWithPrefix(0x02), idWithPrefix(0x04),
		idWithPrefix(0x08), idWithPrefix(0x10), idWithPrefix(0x20),
	}
	for i, id := range ids {
		rt.Update(rt.BucketIndexFor(id), testContact(t, id, 4000+i))
	}

	closest := contactsOf(rt.FindKClosest(idWithPrefix(0x03)))
	require.Len(t, closest, 3)
	assert.Equal(t, idWithPrefix(0x02), closest[0].ID)
	assert.Equal(t, idWithPrefix(0x01), closest[1].ID)
	assert.Equal(t, idWithPrefix(0x04), closest[2].ID)

	except := contactsOf(rt.FindKClosestExcept(idWithPrefix(0x03), idWithPrefix(0x02)))
	require.Len(t, except, 3)
	assert.Equal(t, idWithPrefix(0x01), except[0].ID)
	assert.Equal(t, idWithPrefix(0x04), except[1].ID)
	assert.Equal(t, idWithPrefix(0x08), except[2].ID)
}

func TestApplyEviction(t *testing.T) {
	rt := NewRoutingTable(NodeID{}, 2)
	a := testContact(t, idWithPrefix(0x80, 1), 4001)
	b := testContact(t, idWithPrefix(0x80, 2), 4002)
	c := testContact(t, idWithPrefix(0x80, 3), 4003)

	idx := rt.BucketIndexFor(a.ID)
	rt.Update(idx, a)
	rt.Update(idx, b)
	ec := rt.Update(idx, c)
	require.NotNil(t, ec)
	assert.Equal(t, a, ec.Old)

	t.Run("kept when old contact was seen again", func(t *testing.T) {
		rt.Update(idx, a)
		assert.False(t, rt.ApplyEviction(*ec))
		assert.True(t, rt.Contains(a.ID))
		assert.False(t, rt.Contains(c.ID))
	})

	t.Run("applied while old contact is still head", func(t *testing.T) {
		ec := rt.Update(idx, c)
		require.NotNil(t, ec)
		assert.Equal(t, b, ec.Old)

		assert.True(t, rt.ApplyEviction(*ec))
		assert.False(t, rt.Contains(b.ID))
		assert.True(t, rt.Contains(c.ID))
		assert.Equal(t, []Contact{a, c}, rt.buckets[idx].Contacts())
	})
}
