package dht

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type sentDatagram struct {
	To     *net.UDPAddr
	Msg    Message
	Sender NodeID
}

// recordingSender decodes and keeps everything sent through it.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentDatagram
}

func (s *recordingSender) SendTo(b []byte, addr *net.UDPAddr) error {
	msg, sender, err := Decode(b)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentDatagram{To: addr, Msg: msg, Sender: sender})
	return nil
}

func (s *recordingSender) take() []sentDatagram {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

func (s *recordingSender) ofType(t MessageType) []sentDatagram {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentDatagram
	for _, d := range s.sent {
		if d.Msg.Type == t {
			out = append(out, d)
		}
	}
	return out
}

type lookupRecorder struct {
	events []LookupEvent
}

func (r *lookupRecorder) Post(ev LookupEvent) {
	r.events = append(r.events, ev)
}

type callbackRecorder struct {
	mu       sync.Mutex
	resolved map[NodeID][]byte
	notFound []NodeID
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{resolved: make(map[NodeID][]byte)}
}

func (c *callbackRecorder) Resolve(key NodeID, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved[key] = value
}

func (c *callbackRecorder) NotFound(key NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notFound = append(c.notFound, key)
}

func (c *callbackRecorder) value(key NodeID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.resolved[key]
	return v, ok
}

func (c *callbackRecorder) missing(key NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.notFound {
		if k == key {
			return true
		}
	}
	return false
}

// idWithPrefix returns an id whose first bytes are prefix and the rest zero.
func idWithPrefix(prefix ...byte) NodeID {
	var id NodeID
	copy(id[:], prefix)
	return id
}

func filledID(b byte) NodeID {
	var id NodeID
	for i := range id {
		id[i] = b
	}
	return id
}

func testContact(t *testing.T, id NodeID, port int) Contact {
	t.Helper()
	c, ok := NewContact(id, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.True(t, ok)
	return c
}
