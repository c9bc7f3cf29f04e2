package dht

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/kutluhann/xordht/metrics"
)

// Sender is the outbound half of the datagram socket. Sends are
// fire-and-forget: callers log failures and never retry.
type Sender interface {
	SendTo(b []byte, addr *net.UDPAddr) error
}

// UDPNetwork wraps the node's single datagram socket. It is shared by the
// state and lookup actors for sending, while only the reader receives.
type UDPNetwork struct {
	conn    *net.UDPConn
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewUDPNetwork(conn *net.UDPConn, logger *zap.Logger, m *metrics.Metrics) *UDPNetwork {
	return &UDPNetwork{
		conn:    conn,
		logger:  logger,
		metrics: m,
	}
}

func (n *UDPNetwork) LocalAddr() *net.UDPAddr {
	return n.conn.LocalAddr().(*net.UDPAddr)
}

func (n *UDPNetwork) SendTo(b []byte, addr *net.UDPAddr) error {
	if len(b) > 0 {
		n.metrics.Sent(MessageType(b[0]).String())
	}
	if _, err := n.conn.WriteToUDP(b, addr); err != nil {
		n.metrics.SendError()
		n.logger.Debug("Failed to send datagram",
			zap.Stringer("to", addr),
			zap.Error(err))
		return err
	}
	return nil
}

// ReadLoop receives datagrams until ctx is cancelled or the socket is
// closed. Malformed datagrams are dropped and the loop keeps listening.
func (n *UDPNetwork) ReadLoop(ctx context.Context, deliver func(msg Message, sender NodeID, from *net.UDPAddr)) {
	buffer := make([]byte, 65536)

	for {
		size, addr, err := n.conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			n.logger.Warn("Failed to read UDP packet", zap.Error(err))
			continue
		}

		msg, sender, err := Decode(buffer[:size])
		if err != nil {
			n.metrics.Dropped(dropReason(err))
			n.logger.Debug("Dropping malformed datagram",
				zap.Stringer("from", addr),
				zap.Int("size", size),
				zap.Error(err))
			continue
		}

		n.metrics.Received(msg.Type.String())
		deliver(msg, sender, addr)
	}
}

func (n *UDPNetwork) Close() error {
	return n.conn.Close()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrPayloadSize):
		return "payload_size"
	default:
		return "other"
	}
}
