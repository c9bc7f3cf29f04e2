package dht

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"go.uber.org/zap"

	"github.com/kutluhann/xordht/constants"
	"github.com/kutluhann/xordht/id_tools"
	"github.com/kutluhann/xordht/metrics"
	"github.com/kutluhann/xordht/storage"
)

var ErrValueTooLarge = errors.New("value does not fit in a datagram")

type MachineConfig struct {
	ID         NodeID // zero means a random identifier
	ListenAddr string

	K              int
	Alpha          int
	WakeInterval   time.Duration
	RequestTimeout time.Duration
	EvictionTTL    time.Duration
	LookupTimeout  time.Duration
	ValueTTL       time.Duration

	Clock mclock.Clock
}

func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		ListenAddr:     "127.0.0.1:0",
		K:              constants.K,
		Alpha:          constants.Alpha,
		WakeInterval:   constants.WakeInterval,
		RequestTimeout: constants.RequestTimeout,
		EvictionTTL:    constants.EvictionTTL,
		LookupTimeout:  constants.LookupTimeout,
		ValueTTL:       constants.ValueTTL,
	}
}

func (c *MachineConfig) setDefaults() {
	d := DefaultMachineConfig()
	if c.K <= 0 {
		c.K = d.K
	}
	if c.Alpha <= 0 {
		c.Alpha = d.Alpha
	}
	if c.WakeInterval <= 0 {
		c.WakeInterval = d.WakeInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.EvictionTTL <= 0 {
		c.EvictionTTL = d.EvictionTTL
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = d.LookupTimeout
	}
	if c.ValueTTL <= 0 {
		c.ValueTTL = d.ValueTTL
	}
	if c.Clock == nil {
		c.Clock = mclock.System{}
	}
}

// Machine is a running DHT peer: a network reader, a state actor owning
// the routing table and store, a lookup actor owning the coordinator, and a
// timer waking the lookup actor. Actors talk only through their mailboxes.
type Machine struct {
	cfg     MachineConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	network *UDPNetwork
	store   storage.ValueStore
	node    *Node
	coord   *Coordinator

	state  *mailbox[StateEvent]
	lookup *mailbox[LookupEvent]

	// Mirrors of the coordinator counters, written by the lookup actor.
	active      atomic.Int64
	outstanding atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
}

// NewMachine binds the node's socket. A bind failure is returned and is
// the only fatal error of a peer.
func NewMachine(cfg MachineConfig, logger *zap.Logger, m *metrics.Metrics) (*Machine, error) {
	cfg.setDefaults()
	if cfg.ID == (NodeID{}) {
		cfg.ID = id_tools.Generate()
	}

	addr, err := net.ResolveUDPAddr("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store, err := storage.NewCacheStore(ctx, cfg.ValueTTL)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("create value store: %w", err)
	}

	logger = logger.With(zap.String("node", cfg.ID.Short()))
	network := NewUDPNetwork(conn, logger.Named("net"), m)

	mc := &Machine{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		network: network,
		store:   store,
		state:   newMailbox[StateEvent](),
		lookup:  newMailbox[LookupEvent](),
		ctx:     ctx,
		cancel:  cancel,
	}
	mc.node = NewNode(cfg.ID, cfg.K, store, network, mc.lookup, logger.Named("state"), m)
	mc.node.address = network.LocalAddr().String()
	mc.coord = NewCoordinator(CoordinatorConfig{
		Self:           cfg.ID,
		K:              cfg.K,
		Alpha:          cfg.Alpha,
		RequestTimeout: cfg.RequestTimeout,
		EvictionTTL:    cfg.EvictionTTL,
		LookupTimeout:  cfg.LookupTimeout,
	}, cfg.Clock, network, logger.Named("lookup"), m)

	return mc, nil
}

// SetClientCallbacks must be called before Start.
func (m *Machine) SetClientCallbacks(cb ClientCallbacks) {
	m.node.SetClientCallbacks(cb)
}

func (m *Machine) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.logger.Info("Node started",
		zap.Stringer("id", m.cfg.ID),
		zap.Stringer("addr", m.Addr()))

	m.wg.Add(4)
	go m.readLoop()
	go m.stateLoop()
	go m.lookupLoop()
	go m.wakeLoop()
}

func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.network.Close()
		m.wg.Wait()
		m.store.Close()
		m.logger.Info("Node stopped")
	})
}

func (m *Machine) readLoop() {
	defer m.wg.Done()
	m.network.ReadLoop(m.ctx, func(msg Message, sender NodeID, from *net.UDPAddr) {
		m.state.Post(Inbound{Msg: msg, From: from, Sender: sender})
	})
}

func (m *Machine) stateLoop() {
	defer m.wg.Done()
	for {
		ev, ok := m.state.Receive(m.ctx)
		if !ok {
			return
		}
		m.node.Handle(ev)
	}
}

func (m *Machine) lookupLoop() {
	defer m.wg.Done()
	for {
		ev, ok := m.lookup.Receive(m.ctx)
		if !ok {
			return
		}
		for _, out := range m.coord.Handle(ev) {
			m.state.Post(out)
		}
		m.active.Store(int64(m.coord.Active()))
		m.outstanding.Store(int64(m.coord.Outstanding()))
	}
}

func (m *Machine) wakeLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.cfg.Clock.After(m.cfg.WakeInterval):
			m.lookup.Post(Wake{})
		}
	}
}

// Bootstrap pings peers so that they enter the routing table, then runs a
// lookup for the node's own id after delay to fill the nearby buckets.
func (m *Machine) Bootstrap(peers []string, delay time.Duration) error {
	addrs := make([]*net.UDPAddr, 0, len(peers))
	for _, p := range peers {
		addr, err := net.ResolveUDPAddr("udp4", p)
		if err != nil {
			return fmt.Errorf("resolve bootstrap peer %q: %w", p, err)
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil
	}

	ping := Encoder{Sender: m.cfg.ID}.Ping()
	for _, addr := range addrs {
		_ = m.network.SendTo(ping, addr)
	}
	m.logger.Info("Bootstrapping", zap.Strings("peers", peers), zap.Duration("delay", delay))

	m.cfg.Clock.AfterFunc(delay, func() {
		m.Lookup(m.cfg.ID)
	})
	return nil
}

// Get resolves key through the client callbacks.
func (m *Machine) Get(key NodeID) {
	m.state.Post(ClientGet{Key: key})
}

func (m *Machine) Set(key NodeID, value []byte) error {
	if len(value) > constants.MaxValueSize {
		return ErrValueTooLarge
	}
	m.state.Post(ClientSet{Key: key, Value: append([]byte{}, value...)})
	return nil
}

// Lookup starts a node lookup for key.
func (m *Machine) Lookup(key NodeID) {
	m.state.Post(StartLookup{Key: key})
}

// Status asks the state actor for a snapshot.
func (m *Machine) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	m.state.Post(StatusQuery{Reply: reply})

	select {
	case st := <-reply:
		st.ActiveLookups = int(m.active.Load())
		st.Outstanding = int(m.outstanding.Load())
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-m.ctx.Done():
		return Status{}, errors.New("node stopped")
	}
}

func (m *Machine) ID() NodeID {
	return m.cfg.ID
}

func (m *Machine) Addr() *net.UDPAddr {
	return m.network.LocalAddr()
}
