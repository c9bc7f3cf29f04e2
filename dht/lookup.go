package dht

import (
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"go.uber.org/zap"

	"github.com/kutluhann/xordht/metrics"
)

// Lookup outcomes, also used as metric labels.
const (
	OutcomeFinished   = "finished"
	OutcomeExhausted  = "exhausted"
	OutcomeTimeout    = "timeout"
	OutcomeValueFound = "value_found"
)

type CoordinatorConfig struct {
	Self           NodeID
	K              int
	Alpha          int
	RequestTimeout time.Duration
	EvictionTTL    time.Duration
	LookupTimeout  time.Duration
}

// LookupResult is reported to the state actor when a lookup ends.
type LookupResult struct {
	Key        NodeID
	Closest    []Contact
	Intent     Intent
	ValueFound bool
	Outcome    string
}

// SweepResult is what a timeout sweep produced.
type SweepResult struct {
	Expired   []EvictionCandidate
	Completed []LookupResult
}

type pendingRequest struct {
	Key      NodeID
	ID       NodeID
	Deadline mclock.AbsTime
}

type pendingEviction struct {
	Candidate EvictionCandidate
	Deadline  mclock.AbsTime
}

// Coordinator runs every iterative lookup of a node. Lookups for different
// keys progress independently but share one budget of Alpha outstanding
// requests. It belongs to the lookup actor and is not safe for concurrent
// use.
type Coordinator struct {
	cfg     CoordinatorConfig
	clock   mclock.Clock
	out     Sender
	enc     Encoder
	logger  *zap.Logger
	metrics *metrics.Metrics

	lookups     map[NodeID]*LookupState
	order       []NodeID // creation order, used to share freed budget fairly
	outstanding []pendingRequest
	evictions   []pendingEviction
}

func NewCoordinator(cfg CoordinatorConfig, clock mclock.Clock, out Sender, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		clock:   clock,
		out:     out,
		enc:     Encoder{Sender: cfg.Self},
		logger:  logger,
		metrics: m,
		lookups: make(map[NodeID]*LookupState),
	}
}

// Handle runs one lookup actor event and returns the events owed to the
// state actor.
func (c *Coordinator) Handle(ev LookupEvent) []StateEvent {
	var out []StateEvent

	switch e := ev.(type) {
	case Wake:
		res := c.SweepTimeouts(c.clock.Now())
		for _, ec := range res.Expired {
			out = append(out, EvictionExpired{Candidate: ec})
		}
		for _, r := range res.Completed {
			out = append(out, LookupCompleted{Result: r})
		}

	case EvictionScheduled:
		c.ScheduleEviction(e.Candidate)

	case LivenessConfirmed:
		c.ConfirmLiveness(e.ID)

	case LookupResults:
		if !c.MergeResults(e.Key, e.Contacts, e.From, e.Intent, e.Value) {
			break
		}
		if outcome, done := c.settle(e.Key, c.clock.Now()); done {
			out = append(out, LookupCompleted{Result: c.Complete(e.Key, outcome)})
		} else {
			c.DispatchRound(e.Key)
		}
		c.pump()

	case ValueFound:
		if c.MarkValueFound(e.Key, e.From) {
			out = append(out, LookupCompleted{Result: c.Complete(e.Key, OutcomeValueFound)})
			c.pump()
		}
	}

	c.metrics.SetLookupState(len(c.lookups), len(c.outstanding))
	return out
}

// MergeResults folds contacts into the lookup for key. When from is set the
// contacts are a peer's answer: the peer's entry turns Black and its
// request no longer counts against the budget. Answers for keys without an
// active lookup are stale and ignored. With from unset a lookup is created
// when needed, and intent and value are merged into it.
func (c *Coordinator) MergeResults(key NodeID, contacts []Contact, from *NodeID, intent Intent, value []byte) bool {
	ls, ok := c.lookups[key]
	if !ok {
		if from != nil {
			c.logger.Debug("Dropping stale lookup response",
				zap.String("key", key.Short()),
				zap.String("from", from.Short()))
			return false
		}
		ls = NewLookupState(key, c.clock.Now())
		c.lookups[key] = ls
		c.order = append(c.order, key)
		c.metrics.LookupStarted(intent.String())
		c.logger.Debug("Lookup started",
			zap.String("key", key.Short()),
			zap.Stringer("intent", intent),
			zap.Int("seeds", len(contacts)))
	}

	if from == nil {
		ls.Intent |= intent
		if value != nil {
			ls.Value = value
		}
	} else {
		if e := ls.Entry(*from); e != nil && e.Color == Grey {
			e.Color = Black
		}
		c.clearRequest(key, *from)
	}

	ls.Append(contacts, c.cfg.Self)
	return true
}

// DispatchRound queries the closest White entries of key until Alpha
// requests are outstanding across all lookups.
func (c *Coordinator) DispatchRound(key NodeID) int {
	ls, ok := c.lookups[key]
	if !ok {
		return 0
	}

	sent := 0
	now := c.clock.Now()
	for len(c.outstanding) < c.cfg.Alpha {
		e := ls.PickNextBest()
		if e == nil {
			break
		}
		e.Color = Grey
		e.Expires = now.Add(c.cfg.RequestTimeout)
		c.outstanding = append(c.outstanding, pendingRequest{
			Key:      key,
			ID:       e.Contact.ID,
			Deadline: e.Expires,
		})

		var b []byte
		if ls.Intent&IntentValue != 0 {
			b = c.enc.FindVal(key)
		} else {
			b = c.enc.FindNode(key)
		}
		_ = c.out.SendTo(b, e.Contact.UDPAddr())
		sent++
	}
	return sent
}

// IsFinished reports false for keys without an active lookup.
func (c *Coordinator) IsFinished(key NodeID) bool {
	ls, ok := c.lookups[key]
	return ok && ls.Finished(c.cfg.K)
}

// SweepTimeouts expires eviction checks and requests whose deadline is at
// or before now. Expired requests turn Yellow and release their budget,
// which is then shared out across all lookups. Lookups that can no longer
// progress, or ran past the lookup timeout, are completed.
func (c *Coordinator) SweepTimeouts(now mclock.AbsTime) SweepResult {
	var res SweepResult

	pending := c.evictions[:0]
	for _, pe := range c.evictions {
		if pe.Deadline <= now {
			res.Expired = append(res.Expired, pe.Candidate)
			continue
		}
		pending = append(pending, pe)
	}
	c.evictions = pending

	outstanding := c.outstanding[:0]
	for _, r := range c.outstanding {
		if r.Deadline > now {
			outstanding = append(outstanding, r)
			continue
		}
		c.metrics.RequestTimedOut()
		if ls, ok := c.lookups[r.Key]; ok {
			if e := ls.Entry(r.ID); e != nil && e.Color == Grey {
				e.Color = Yellow
			}
		}
	}
	c.outstanding = outstanding

	for _, key := range append([]NodeID(nil), c.order...) {
		if outcome, done := c.settle(key, now); done {
			res.Completed = append(res.Completed, c.Complete(key, outcome))
		}
	}
	c.pump()
	return res
}

// ScheduleEviction starts the liveness window of ec.Old. A second candidate
// for an old contact that is already being checked is ignored.
func (c *Coordinator) ScheduleEviction(ec EvictionCandidate) bool {
	for _, pe := range c.evictions {
		if pe.Candidate.Old.ID == ec.Old.ID {
			return false
		}
	}
	c.evictions = append(c.evictions, pendingEviction{
		Candidate: ec,
		Deadline:  c.clock.Now().Add(c.cfg.EvictionTTL),
	})
	return true
}

// ConfirmLiveness cancels the pending eviction of id, if any.
func (c *Coordinator) ConfirmLiveness(id NodeID) bool {
	for i, pe := range c.evictions {
		if pe.Candidate.Old.ID == id {
			c.evictions = append(c.evictions[:i], c.evictions[i+1:]...)
			c.metrics.Eviction("cancelled")
			return true
		}
	}
	return false
}

// MarkValueFound records that from answered the lookup for key with its
// value.
func (c *Coordinator) MarkValueFound(key, from NodeID) bool {
	ls, ok := c.lookups[key]
	if !ok {
		return false
	}
	if e := ls.Entry(from); e != nil && e.Color == Grey {
		e.Color = Black
	}
	c.clearRequest(key, from)
	ls.ValueFound = true
	return true
}

// Complete removes the lookup for key and releases its requests. Store
// intents replicate the value to the closest peers that responded.
func (c *Coordinator) Complete(key NodeID, outcome string) LookupResult {
	ls, ok := c.lookups[key]
	if !ok {
		return LookupResult{Key: key, Outcome: outcome}
	}

	delete(c.lookups, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	outstanding := c.outstanding[:0]
	for _, r := range c.outstanding {
		if r.Key != key {
			outstanding = append(outstanding, r)
		}
	}
	c.outstanding = outstanding

	closest := ls.Responded(c.cfg.K)
	if ls.Intent&IntentStore != 0 && ls.Value != nil {
		b := c.enc.Store(key, ls.Value)
		for _, contact := range closest {
			_ = c.out.SendTo(b, contact.UDPAddr())
		}
	}

	c.metrics.LookupCompleted(outcome)
	c.logger.Debug("Lookup finished",
		zap.String("key", key.Short()),
		zap.String("outcome", outcome),
		zap.Int("responded", len(closest)),
		zap.Int("candidates", len(ls.Entries)))

	return LookupResult{
		Key:        key,
		Closest:    closest,
		Intent:     ls.Intent,
		ValueFound: ls.ValueFound,
		Outcome:    outcome,
	}
}

// Active is the number of running lookups.
func (c *Coordinator) Active() int {
	return len(c.lookups)
}

// Outstanding is the number of requests counted against the budget.
func (c *Coordinator) Outstanding() int {
	return len(c.outstanding)
}

// Lookup exposes the state of the lookup for key, or nil.
func (c *Coordinator) Lookup(key NodeID) *LookupState {
	return c.lookups[key]
}

func (c *Coordinator) settle(key NodeID, now mclock.AbsTime) (string, bool) {
	ls, ok := c.lookups[key]
	if !ok {
		return "", false
	}
	switch {
	case ls.ValueFound:
		return OutcomeValueFound, true
	case ls.Finished(c.cfg.K):
		return OutcomeFinished, true
	case ls.Exhausted():
		return OutcomeExhausted, true
	case c.cfg.LookupTimeout > 0 && now.Sub(ls.Started) >= c.cfg.LookupTimeout:
		return OutcomeTimeout, true
	}
	return "", false
}

// pump hands out free budget to lookups in creation order.
func (c *Coordinator) pump() {
	for _, key := range c.order {
		if len(c.outstanding) >= c.cfg.Alpha {
			return
		}
		c.DispatchRound(key)
	}
}

func (c *Coordinator) clearRequest(key, id NodeID) {
	for i, r := range c.outstanding {
		if r.Key == key && r.ID == id {
			c.outstanding = append(c.outstanding[:i], c.outstanding[i+1:]...)
			return
		}
	}
}
