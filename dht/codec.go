package dht

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kutluhann/xordht/constants"
)

// Envelope: [1-byte type][20-byte sender][4-byte payload length][payload].
// A contact record is [20-byte id][4-byte IPv4][2-byte port]. All integers
// are big-endian.
const (
	headerSize        = constants.HeaderSize
	contactRecordSize = constants.KeySizeBytes + 4 + 2
)

var (
	ErrTruncated      = errors.New("dht: truncated message")
	ErrUnknownType    = errors.New("dht: unknown message type")
	ErrLengthMismatch = errors.New("dht: declared length does not match payload")
	ErrPayloadSize    = errors.New("dht: payload size invalid for message type")
)

// Encode serializes msg as sent by sender. Encoding is deterministic.
func Encode(sender NodeID, msg Message) []byte {
	payloadLen := 0
	switch msg.Type {
	case STORE, FIND_VALUE_RES:
		payloadLen = constants.KeySizeBytes + len(msg.Value)
	case FIND_NODE, FIND_VALUE:
		payloadLen = constants.KeySizeBytes
	case FIND_NODE_RES:
		payloadLen = constants.KeySizeBytes + contactRecordSize*len(msg.Contacts)
	}

	buf := make([]byte, headerSize+payloadLen)
	buf[0] = byte(msg.Type)
	copy(buf[1:], sender[:])
	binary.BigEndian.PutUint32(buf[1+constants.KeySizeBytes:headerSize], uint32(payloadLen))

	payload := buf[headerSize:]
	switch msg.Type {
	case STORE, FIND_VALUE_RES:
		copy(payload, msg.Key[:])
		copy(payload[constants.KeySizeBytes:], msg.Value)
	case FIND_NODE, FIND_VALUE:
		copy(payload, msg.Key[:])
	case FIND_NODE_RES:
		copy(payload, msg.Key[:])
		off := constants.KeySizeBytes
		for _, c := range msg.Contacts {
			putContact(payload[off:off+contactRecordSize], c)
			off += contactRecordSize
		}
	}
	return buf
}

// Decode parses one datagram. The returned message never aliases buf.
func Decode(buf []byte) (Message, NodeID, error) {
	var sender NodeID
	if len(buf) < headerSize {
		return Message{}, sender, ErrTruncated
	}

	msgType := MessageType(buf[0])
	if !msgType.valid() {
		return Message{}, sender, fmt.Errorf("%w: %d", ErrUnknownType, buf[0])
	}
	copy(sender[:], buf[1:1+constants.KeySizeBytes])

	declared := binary.BigEndian.Uint32(buf[1+constants.KeySizeBytes : headerSize])
	payload := buf[headerSize:]
	if uint64(declared) > uint64(len(payload)) {
		return Message{}, sender, ErrTruncated
	}
	if uint64(declared) != uint64(len(payload)) {
		return Message{}, sender, ErrLengthMismatch
	}

	msg := Message{Type: msgType}
	switch msgType {
	case PING, PING_RES:
		if len(payload) != 0 {
			return Message{}, sender, ErrPayloadSize
		}
	case FIND_NODE, FIND_VALUE:
		if len(payload) != constants.KeySizeBytes {
			return Message{}, sender, ErrPayloadSize
		}
		copy(msg.Key[:], payload)
	case STORE, FIND_VALUE_RES:
		if len(payload) < constants.KeySizeBytes {
			return Message{}, sender, ErrPayloadSize
		}
		copy(msg.Key[:], payload)
		msg.Value = append([]byte{}, payload[constants.KeySizeBytes:]...)
	case FIND_NODE_RES:
		if len(payload) < constants.KeySizeBytes || (len(payload)-constants.KeySizeBytes)%contactRecordSize != 0 {
			return Message{}, sender, ErrPayloadSize
		}
		copy(msg.Key[:], payload)
		records := payload[constants.KeySizeBytes:]
		msg.Contacts = make([]Contact, 0, len(records)/contactRecordSize)
		for off := 0; off < len(records); off += contactRecordSize {
			msg.Contacts = append(msg.Contacts, getContact(records[off:off+contactRecordSize]))
		}
	}
	return msg, sender, nil
}

func putContact(dst []byte, c Contact) {
	copy(dst, c.ID[:])
	copy(dst[constants.KeySizeBytes:], c.IP[:])
	binary.BigEndian.PutUint16(dst[constants.KeySizeBytes+4:], c.Port)
}

func getContact(src []byte) Contact {
	var c Contact
	copy(c.ID[:], src)
	copy(c.IP[:], src[constants.KeySizeBytes:])
	c.Port = binary.BigEndian.Uint16(src[constants.KeySizeBytes+4:])
	return c
}

// Encoder builds outbound datagrams on behalf of one node.
type Encoder struct {
	Sender NodeID
}

func (e Encoder) Ping() []byte {
	return Encode(e.Sender, Message{Type: PING})
}

func (e Encoder) PingResp() []byte {
	return Encode(e.Sender, Message{Type: PING_RES})
}

func (e Encoder) Store(key NodeID, value []byte) []byte {
	return Encode(e.Sender, Message{Type: STORE, Key: key, Value: value})
}

func (e Encoder) FindNode(key NodeID) []byte {
	return Encode(e.Sender, Message{Type: FIND_NODE, Key: key})
}

func (e Encoder) FindVal(key NodeID) []byte {
	return Encode(e.Sender, Message{Type: FIND_VALUE, Key: key})
}

func (e Encoder) FindNodeResp(key NodeID, contacts []Contact) []byte {
	return Encode(e.Sender, Message{Type: FIND_NODE_RES, Key: key, Contacts: contacts})
}

func (e Encoder) FindValResp(key NodeID, value []byte) []byte {
	return Encode(e.Sender, Message{Type: FIND_VALUE_RES, Key: key, Value: value})
}
