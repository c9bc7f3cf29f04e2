package api

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kutluhann/xordht/constants"
	"github.com/kutluhann/xordht/dht"
)

// Client request and response tags. Lengths are big-endian uint32.
//
//	get:       [0x00][keyLen][key]
//	set:       [0x01][keyLen][key][valueLen][value]
//	resolved:  [0x02][20-byte key][valueLen][value]
//	not found: [0x03][20-byte key]
const (
	OpGet      byte = 0x00
	OpSet      byte = 0x01
	OpResolved byte = 0x02
	OpNotFound byte = 0x03
)

var ErrBadRequest = errors.New("api: malformed client datagram")

// Request is a decoded client request. Key is the application key before
// hashing.
type Request struct {
	Op    byte
	Key   []byte
	Value []byte
}

// Response is a decoded node answer.
type Response struct {
	Op    byte
	Key   dht.NodeID
	Value []byte
}

func (r Response) Found() bool {
	return r.Op == OpResolved
}

func EncodeGet(key []byte) []byte {
	buf := make([]byte, 1+4+len(key))
	buf[0] = OpGet
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(key)))
	copy(buf[5:], key)
	return buf
}

func EncodeSet(key, value []byte) []byte {
	buf := make([]byte, 1+4+len(key)+4+len(value))
	buf[0] = OpSet
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(key)))
	off := 5 + copy(buf[5:], key)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(value)))
	copy(buf[off+4:], value)
	return buf
}

// DecodeRequest parses a client datagram. Trailing bytes are rejected.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) == 0 {
		return Request{}, ErrBadRequest
	}
	req := Request{Op: buf[0]}
	rest := buf[1:]

	key, rest, err := lengthPrefixed(rest)
	if err != nil {
		return Request{}, err
	}
	if len(key) == 0 {
		return Request{}, fmt.Errorf("%w: empty key", ErrBadRequest)
	}
	req.Key = key

	switch req.Op {
	case OpGet:
	case OpSet:
		value, r, err := lengthPrefixed(rest)
		if err != nil {
			return Request{}, err
		}
		req.Value = value
		rest = r
	default:
		return Request{}, fmt.Errorf("%w: unknown op %d", ErrBadRequest, req.Op)
	}

	if len(rest) != 0 {
		return Request{}, fmt.Errorf("%w: %d trailing bytes", ErrBadRequest, len(rest))
	}
	return req, nil
}

func lengthPrefixed(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated length", ErrBadRequest)
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if uint64(n) > uint64(len(buf)-4) {
		return nil, nil, fmt.Errorf("%w: truncated field", ErrBadRequest)
	}
	field := append([]byte{}, buf[4:4+n]...)
	return field, buf[4+n:], nil
}

func EncodeResolved(key dht.NodeID, value []byte) []byte {
	buf := make([]byte, 1+constants.KeySizeBytes+4+len(value))
	buf[0] = OpResolved
	copy(buf[1:], key[:])
	binary.BigEndian.PutUint32(buf[1+constants.KeySizeBytes:], uint32(len(value)))
	copy(buf[1+constants.KeySizeBytes+4:], value)
	return buf
}

func EncodeNotFound(key dht.NodeID) []byte {
	buf := make([]byte, 1+constants.KeySizeBytes)
	buf[0] = OpNotFound
	copy(buf[1:], key[:])
	return buf
}

func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < 1+constants.KeySizeBytes {
		return Response{}, ErrBadRequest
	}
	resp := Response{Op: buf[0]}
	copy(resp.Key[:], buf[1:1+constants.KeySizeBytes])
	rest := buf[1+constants.KeySizeBytes:]

	switch resp.Op {
	case OpNotFound:
		if len(rest) != 0 {
			return Response{}, ErrBadRequest
		}
	case OpResolved:
		value, r, err := lengthPrefixed(rest)
		if err != nil {
			return Response{}, err
		}
		if len(r) != 0 {
			return Response{}, ErrBadRequest
		}
		resp.Value = value
	default:
		return Response{}, fmt.Errorf("%w: unknown op %d", ErrBadRequest, resp.Op)
	}
	return resp, nil
}
