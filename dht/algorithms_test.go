package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupStateAppendOrdersByDistance(t *testing.T) {
	ls := NewLookupState(idWithPrefix(0x03), 0)
	added := ls.Append([]Contact{
		testContact(t, idWithPrefix(0x20), 4000),
		testContact(t, idWithPrefix(0x01), 4001),
		testContact(t, idWithPrefix(0x02), 4002),
	}, filledID(0xff))
	assert.Equal(t, 3, added)

	var got []NodeID
	for _, e := range ls.Entries {
		got = append(got, e.Contact.ID)
		assert.Equal(t, White, e.Color)
	}
	assert.Equal(t, []NodeID{idWithPrefix(0x02), idWithPrefix(0x01), idWithPrefix(0x20)}, got)
}

func TestLookupStateAppendIsIdempotent(t *testing.T) {
	ls := NewLookupState(idWithPrefix(0x03), 0)
	c := testContact(t, idWithPrefix(0x01), 4001)

	assert.Equal(t, 1, ls.Append([]Contact{c}, NodeID{}))
	ls.Entries[0].Color = Black

	moved := c
	moved.Port = 9999
	assert.Equal(t, 0, ls.Append([]Contact{c, moved}, NodeID{}))
	require.Len(t, ls.Entries, 1)
	assert.Equal(t, Black, ls.Entries[0].Color, "merging must not reset progress")
}

func TestLookupStateAppendSkipsSelf(t *testing.T) {
	self := idWithPrefix(0x07)
	ls := NewLookupState(idWithPrefix(0x03), 0)
	ls.Append([]Contact{testContact(t, self, 4000)}, self)
	assert.Empty(t, ls.Entries)
}

func TestLookupStateFinished(t *testing.T) {
	entries := func(colors ...Color) *LookupState {
		ls := NewLookupState(NodeID{}, 0)
		for i, c := range colors {
			ls.Entries = append(ls.Entries, LookupEntry{
				Contact: Contact{ID: idWithPrefix(byte(i + 1))},
				Color:   c,
			})
		}
		return ls
	}

	tests := []struct {
		name     string
		colors   []Color
		k        int
		finished bool
	}{
		{"no candidates", nil, 2, true},
		{"all black fewer than k", []Color{Black, Black}, 3, true},
		{"leading k black", []Color{Black, Black, White, Grey}, 2, true},
		{"white among leading k", []Color{Black, White, Black}, 2, false},
		{"grey among leading k", []Color{Grey, Black, Black}, 2, false},
		{"yellow among leading k", []Color{Black, Yellow, Black}, 2, false},
		{"black after non black does not count", []Color{White, Black, Black, Black}, 3, false},
		{"fewer than k with a yellow", []Color{Black, Yellow}, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.finished, entries(tt.colors...).Finished(tt.k))
		})
	}
}

func TestLookupStateExhaustedAndResponded(t *testing.T) {
	ls := NewLookupState(NodeID{}, 0)
	ls.Entries = []LookupEntry{
		{Contact: Contact{ID: idWithPrefix(1)}, Color: Yellow},
		{Contact: Contact{ID: idWithPrefix(2)}, Color: Black},
		{Contact: Contact{ID: idWithPrefix(3)}, Color: Grey},
		{Contact: Contact{ID: idWithPrefix(4)}, Color: Black},
	}
	assert.False(t, ls.Exhausted())

	ls.Entries[2].Color = Yellow
	assert.True(t, ls.Exhausted())

	responded := ls.Responded(1)
	require.Len(t, responded, 1)
	assert.Equal(t, idWithPrefix(2), responded[0].ID)
	assert.Len(t, ls.Responded(8), 2)
}
