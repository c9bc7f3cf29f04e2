package dht

import (
	"net"

	"go.uber.org/zap"

	"github.com/kutluhann/xordht/constants"
	"github.com/kutluhann/xordht/metrics"
	"github.com/kutluhann/xordht/storage"
)

// Node is the local node state: the routing table, the value store and the
// ability to answer peers. It belongs to the state actor and is never
// touched from another goroutine.
type Node struct {
	ID           NodeID
	RoutingTable *RoutingTable

	store     storage.ValueStore
	out       Sender
	enc       Encoder
	lookups   LookupSink
	callbacks ClientCallbacks
	address   string

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewNode(id NodeID, k int, store storage.ValueStore, out Sender, lookups LookupSink, logger *zap.Logger, m *metrics.Metrics) *Node {
	return &Node{
		ID:           id,
		RoutingTable: NewRoutingTable(id, k),
		store:        store,
		out:          out,
		enc:          Encoder{Sender: id},
		lookups:      lookups,
		callbacks:    noopCallbacks{},
		logger:       logger,
		metrics:      m,
	}
}

// SetClientCallbacks installs the receiver of client get outcomes.
func (n *Node) SetClientCallbacks(cb ClientCallbacks) {
	if cb == nil {
		cb = noopCallbacks{}
	}
	n.callbacks = cb
}

// Handle runs one state actor event.
func (n *Node) Handle(ev StateEvent) {
	switch e := ev.(type) {
	case Inbound:
		n.Receive(e.Msg, e.From, e.Sender)
	case ClientGet:
		n.Get(e.Key)
	case ClientSet:
		n.Set(e.Key, e.Value)
	case StartLookup:
		n.StartLookup(e.Key)
	case EvictionExpired:
		n.ApplyEviction(e.Candidate)
	case LookupCompleted:
		n.LookupCompleted(e.Result)
	case StatusQuery:
		e.Reply <- n.Status()
	}
}

// Receive processes a decoded datagram from sender at from. Every message
// first refreshes the sender in the routing table.
func (n *Node) Receive(msg Message, from *net.UDPAddr, sender NodeID) {
	if sender == n.ID {
		n.metrics.Dropped("self")
		return
	}
	contact, ok := NewContact(sender, from)
	if !ok {
		n.metrics.Dropped("not_ipv4")
		return
	}

	n.logger.Debug("Received message",
		zap.Stringer("msg", msg),
		zap.String("from", sender.Short()))

	if ec := n.RoutingTable.Update(n.RoutingTable.BucketIndexFor(sender), contact); ec != nil {
		n.logger.Debug("Bucket full, verifying least recently seen contact",
			zap.Stringer("old", ec.Old),
			zap.Stringer("new", ec.New))
		n.lookups.Post(EvictionScheduled{Candidate: *ec})
		n.send(n.enc.Ping(), ec.Old.UDPAddr())
	}
	n.metrics.SetRoutingContacts(n.RoutingTable.TotalContacts())

	switch msg.Type {
	case PING:
		n.send(n.enc.PingResp(), from)

	case FIND_NODE:
		n.sendClosest(msg.Key, sender, from)

	case FIND_VALUE:
		if value, ok := n.store.Get(msg.Key); ok {
			n.send(n.enc.FindValResp(msg.Key, value), from)
			return
		}
		n.sendClosest(msg.Key, sender, from)

	case STORE:
		if len(msg.Value) > constants.MaxValueSize {
			return
		}
		if err := n.store.Put(msg.Key, msg.Value); err != nil {
			n.logger.Warn("Failed to store value",
				zap.String("key", msg.Key.Short()),
				zap.Error(err))
			return
		}
		n.metrics.SetStoredValues(n.store.Len())

	case FIND_NODE_RES:
		responder := sender
		n.lookups.Post(LookupResults{Key: msg.Key, Contacts: msg.Contacts, From: &responder})

	case FIND_VALUE_RES:
		n.callbacks.Resolve(msg.Key, msg.Value)
		n.lookups.Post(ValueFound{Key: msg.Key, From: sender})

	case PING_RES:
		n.lookups.Post(LivenessConfirmed{ID: sender})
	}
}

func (n *Node) sendClosest(key, requester NodeID, to *net.UDPAddr) {
	closest := n.RoutingTable.FindKClosestExcept(key, requester)
	n.send(n.enc.FindNodeResp(key, contactsOf(closest)), to)
}

func (n *Node) send(b []byte, to *net.UDPAddr) {
	// Failures are already logged and counted by the network; nothing is
	// retried.
	_ = n.out.SendTo(b, to)
}

// Get resolves key locally when possible and otherwise starts a value lookup.
func (n *Node) Get(key NodeID) {
	if value, ok := n.store.Get(key); ok {
		n.callbacks.Resolve(key, value)
		return
	}
	n.startLookup(key, IntentValue, nil)
}

// Set stores value locally and replicates it to the closest peers once a
// lookup for key completes.
func (n *Node) Set(key NodeID, value []byte) {
	if err := n.store.Put(key, value); err != nil {
		n.logger.Warn("Failed to store value",
			zap.String("key", key.Short()),
			zap.Error(err))
	}
	n.metrics.SetStoredValues(n.store.Len())
	n.startLookup(key, IntentStore, value)
}

// StartLookup searches for the peers closest to key.
func (n *Node) StartLookup(key NodeID) {
	n.startLookup(key, IntentNodes, nil)
}

func (n *Node) startLookup(key NodeID, intent Intent, value []byte) {
	closest := n.RoutingTable.FindKClosest(key)
	n.lookups.Post(LookupResults{
		Key:      key,
		Contacts: contactsOf(closest),
		Intent:   intent,
		Value:    value,
	})
}

// ApplyEviction completes a verification whose old contact never answered.
func (n *Node) ApplyEviction(ec EvictionCandidate) {
	if n.RoutingTable.ApplyEviction(ec) {
		n.metrics.Eviction("evicted")
		n.logger.Info("Evicted unresponsive contact",
			zap.Stringer("old", ec.Old),
			zap.Stringer("new", ec.New))
	} else {
		n.metrics.Eviction("kept")
	}
	n.metrics.SetRoutingContacts(n.RoutingTable.TotalContacts())
}

func (n *Node) LookupCompleted(res LookupResult) {
	n.logger.Debug("Lookup completed",
		zap.String("key", res.Key.Short()),
		zap.Stringer("intent", res.Intent),
		zap.String("outcome", res.Outcome),
		zap.Int("closest", len(res.Closest)))

	if res.Intent&IntentValue != 0 && !res.ValueFound {
		n.callbacks.NotFound(res.Key)
	}
}

// Status is a point-in-time view of a node.
type Status struct {
	ID            string
	Address       string
	Contacts      int
	StoredKeys    int
	Buckets       []BucketInfo
	ActiveLookups int
	Outstanding   int
}

func (n *Node) Status() Status {
	return Status{
		ID:         n.ID.String(),
		Address:    n.address,
		Contacts:   n.RoutingTable.TotalContacts(),
		StoredKeys: n.store.Len(),
		Buckets:    n.RoutingTable.Occupancy(),
	}
}
