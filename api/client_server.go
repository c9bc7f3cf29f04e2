package api

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/kutluhann/xordht/dht"
	"github.com/kutluhann/xordht/id_tools"
	"github.com/kutluhann/xordht/metrics"
)

// Backend is the node the client API forwards to.
type Backend interface {
	Get(key dht.NodeID)
	Set(key dht.NodeID, value []byte) error
}

// ClientServer translates client datagrams into node gets and sets, and
// answers every source with a pending get once the key resolves. It is the
// node's dht.ClientCallbacks.
type ClientServer struct {
	conn    *net.UDPConn
	backend Backend
	limiter *sourceLimiter
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[dht.NodeID][]*net.UDPAddr
}

type ClientServerConfig struct {
	ListenAddr string
	RateLimit  float64
	Burst      int
}

// NewClientServer binds the client socket. Serve must be called to start
// answering.
func NewClientServer(cfg ClientServerConfig, backend Backend, logger *zap.Logger, m *metrics.Metrics) (*ClientServer, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}
	return &ClientServer{
		conn:    conn,
		backend: backend,
		limiter: newSourceLimiter(cfg.RateLimit, cfg.Burst),
		logger:  logger,
		metrics: m,
		pending: make(map[dht.NodeID][]*net.UDPAddr),
	}, nil
}

func (s *ClientServer) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Serve reads client requests until ctx is cancelled.
func (s *ClientServer) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	s.logger.Info("Client API listening", zap.Stringer("addr", s.Addr()))
	buffer := make([]byte, 65536)
	for {
		n, from, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to read client datagram", zap.Error(err))
			continue
		}
		s.handle(buffer[:n], from)
	}
}

func (s *ClientServer) handle(buf []byte, from *net.UDPAddr) {
	if !s.limiter.Allow(from) {
		s.metrics.ClientRequest("unknown", "rate_limited")
		return
	}

	req, err := DecodeRequest(buf)
	if err != nil {
		s.metrics.ClientRequest("unknown", "bad_request")
		s.logger.Debug("Dropping client datagram", zap.Stringer("from", from), zap.Error(err))
		return
	}

	key := id_tools.HashKey(req.Key)
	switch req.Op {
	case OpGet:
		s.addPending(key, from)
		s.metrics.ClientRequest("get", "accepted")
		s.backend.Get(key)
	case OpSet:
		if err := s.backend.Set(key, req.Value); err != nil {
			s.metrics.ClientRequest("set", "rejected")
			s.logger.Debug("Rejected client set", zap.String("key", key.Short()), zap.Error(err))
			return
		}
		s.metrics.ClientRequest("set", "accepted")
	}
}

func (s *ClientServer) addPending(key dht.NodeID, from *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.pending[key] {
		if a.String() == from.String() {
			return
		}
	}
	s.pending[key] = append(s.pending[key], from)
}

func (s *ClientServer) takePending(key dht.NodeID) []*net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := s.pending[key]
	delete(s.pending, key)
	return addrs
}

// Resolve answers every pending requester of key.
func (s *ClientServer) Resolve(key dht.NodeID, value []byte) {
	s.reply(key, EncodeResolved(key, value))
}

// NotFound tells every pending requester of key that no value was found.
func (s *ClientServer) NotFound(key dht.NodeID) {
	s.reply(key, EncodeNotFound(key))
}

func (s *ClientServer) reply(key dht.NodeID, b []byte) {
	for _, addr := range s.takePending(key) {
		if _, err := s.conn.WriteToUDP(b, addr); err != nil {
			s.logger.Debug("Failed to answer client", zap.Stringer("to", addr), zap.Error(err))
		}
	}
}

func (s *ClientServer) Close() error {
	return s.conn.Close()
}
