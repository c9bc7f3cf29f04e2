package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kutluhann/xordht/id_tools"
)

// Client talks to a node's client API.
type Client struct {
	addr *net.UDPAddr
}

func NewClient(nodeAddr string) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp4", nodeAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve node address: %w", err)
	}
	return &Client{addr: addr}, nil
}

// Set sends a set request. Sets are not acknowledged.
func (c *Client) Set(key, value []byte) error {
	conn, err := net.DialUDP("udp4", nil, c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(EncodeSet(key, value))
	return err
}

// Get asks for key and waits for the node's answer or ctx expiry.
func (c *Client) Get(ctx context.Context, key []byte) (Response, error) {
	conn, err := net.DialUDP("udp4", nil, c.addr)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if _, err := conn.Write(EncodeGet(key)); err != nil {
		return Response{}, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return Response{}, err
	}

	want := id_tools.HashKey(key)
	buffer := make([]byte, 65536)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			return Response{}, fmt.Errorf("waiting for answer: %w", err)
		}
		resp, err := DecodeResponse(buffer[:n])
		if err != nil || resp.Key != want {
			continue
		}
		return resp, nil
	}
}
