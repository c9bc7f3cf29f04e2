package dht

import (
	"net"
	"strings"
)

// Intent records why a lookup is running. Intents for the same key are
// merged into one lookup.
type Intent uint8

const (
	IntentNodes Intent = 0
	IntentValue Intent = 1 << 0 // resolve pending client gets
	IntentStore Intent = 1 << 1 // replicate a value to the closest peers
)

func (i Intent) String() string {
	if i == IntentNodes {
		return "nodes"
	}
	var parts []string
	if i&IntentValue != 0 {
		parts = append(parts, "value")
	}
	if i&IntentStore != 0 {
		parts = append(parts, "store")
	}
	return strings.Join(parts, "+")
}

// LookupEvent is consumed by the lookup actor.
type LookupEvent interface {
	lookupEvent()
}

// Wake drives time-based bookkeeping independent of message traffic.
type Wake struct{}

type EvictionScheduled struct {
	Candidate EvictionCandidate
}

// LookupResults carries contacts for key. From is nil when the contacts
// come from the local routing table, which is also how a lookup is started.
type LookupResults struct {
	Key      NodeID
	Contacts []Contact
	From     *NodeID
	Intent   Intent
	Value    []byte
}

type LivenessConfirmed struct {
	ID NodeID
}

type ValueFound struct {
	Key  NodeID
	From NodeID
}

func (Wake) lookupEvent()              {}
func (EvictionScheduled) lookupEvent() {}
func (LookupResults) lookupEvent()     {}
func (LivenessConfirmed) lookupEvent() {}
func (ValueFound) lookupEvent()        {}

// StateEvent is consumed by the state actor.
type StateEvent interface {
	stateEvent()
}

// Inbound is a decoded datagram from a peer.
type Inbound struct {
	Msg    Message
	From   *net.UDPAddr
	Sender NodeID
}

type ClientGet struct {
	Key NodeID
}

type ClientSet struct {
	Key   NodeID
	Value []byte
}

type StartLookup struct {
	Key NodeID
}

// EvictionExpired reports a candidate whose old contact never answered.
type EvictionExpired struct {
	Candidate EvictionCandidate
}

type LookupCompleted struct {
	Result LookupResult
}

type StatusQuery struct {
	Reply chan<- Status
}

func (Inbound) stateEvent()         {}
func (ClientGet) stateEvent()       {}
func (ClientSet) stateEvent()       {}
func (StartLookup) stateEvent()     {}
func (EvictionExpired) stateEvent() {}
func (LookupCompleted) stateEvent() {}
func (StatusQuery) stateEvent()     {}

// LookupSink accepts events for the lookup actor.
type LookupSink interface {
	Post(LookupEvent)
}

// ClientCallbacks receives the outcome of client gets. It is invoked from
// the state actor and must not block.
type ClientCallbacks interface {
	Resolve(key NodeID, value []byte)
	NotFound(key NodeID)
}

type noopCallbacks struct{}

func (noopCallbacks) Resolve(NodeID, []byte) {}
func (noopCallbacks) NotFound(NodeID)        {}
