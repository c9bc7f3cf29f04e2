package dht

import (
	"fmt"
	"net"

	"github.com/kutluhann/xordht/id_tools"
)

// Contact is a known peer. Two contacts are the same peer when their IDs
// match, whatever address they were learned with.
type Contact struct {
	ID   NodeID
	IP   [4]byte
	Port uint16
}

// NewContact builds a contact from a UDP source address. Only IPv4 peers
// are representable on the wire.
func NewContact(id NodeID, addr *net.UDPAddr) (Contact, bool) {
	if addr == nil {
		return Contact{}, false
	}
	ip4 := addr.IP.To4()
	if ip4 == nil || addr.Port <= 0 || addr.Port > 0xffff {
		return Contact{}, false
	}
	c := Contact{ID: id, Port: uint16(addr.Port)}
	copy(c.IP[:], ip4)
	return c, true
}

func (c Contact) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(c.IP[0], c.IP[1], c.IP[2], c.IP[3]),
		Port: int(c.Port),
	}
}

func (c Contact) Address() string {
	return c.UDPAddr().String()
}

func (c Contact) String() string {
	return fmt.Sprintf("%s@%s", c.ID.Short(), c.Address())
}

// EvictionCandidate pairs the least-recently-seen occupant of a full bucket
// with the contact waiting to replace it. Nothing is applied to the table
// until Old has failed a liveness check.
type EvictionCandidate struct {
	Old Contact
	New Contact
}

// ClosestContact is a contact annotated with its distance to a lookup target.
type ClosestContact struct {
	Distance id_tools.Distance
	Contact  Contact
}

func contactsOf(closest []ClosestContact) []Contact {
	out := make([]Contact, len(closest))
	for i, cc := range closest {
		out[i] = cc.Contact
	}
	return out
}
