package dht

import "fmt"

type MessageType byte

// Wire tags. The numeric values are part of the protocol.
const (
	PING MessageType = iota
	PING_RES
	STORE
	FIND_NODE
	FIND_VALUE
	FIND_NODE_RES
	FIND_VALUE_RES
)

func (t MessageType) String() string {
	switch t {
	case PING:
		return "ping"
	case PING_RES:
		return "ping_res"
	case STORE:
		return "store"
	case FIND_NODE:
		return "find_node"
	case FIND_VALUE:
		return "find_value"
	case FIND_NODE_RES:
		return "find_node_res"
	case FIND_VALUE_RES:
		return "find_value_res"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

func (t MessageType) valid() bool {
	return t <= FIND_VALUE_RES
}

// Message is a decoded peer message. Which fields are meaningful depends on
// Type:
//   - PING, PING_RES: none
//   - STORE, FIND_VALUE_RES: Key, Value
//   - FIND_NODE, FIND_VALUE: Key
//   - FIND_NODE_RES: Key, Contacts
type Message struct {
	Type     MessageType
	Key      NodeID
	Value    []byte
	Contacts []Contact
}

func (m Message) String() string {
	switch m.Type {
	case PING, PING_RES:
		return m.Type.String()
	case FIND_NODE_RES:
		return fmt.Sprintf("%s(%s, %d contacts)", m.Type, m.Key.Short(), len(m.Contacts))
	case STORE, FIND_VALUE_RES:
		return fmt.Sprintf("%s(%s, %d bytes)", m.Type, m.Key.Short(), len(m.Value))
	default:
		return fmt.Sprintf("%s(%s)", m.Type, m.Key.Short())
	}
}
