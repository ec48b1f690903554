// Package ring holds a node's view of the Chord ring: its predecessor,
// its successor, and its M-entry finger table. All three are protected by
// a single mutex and mutated with copy-on-write semantics for the finger
// slice, so readers never observe a torn table.
package ring

import (
	"sync"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// State is one node's routing state: predecessor, successor, fingers, and
// the transient loop-prevention set used by the Accept protocol.
type State struct {
	logger logger.Logger
	space  domain.Space
	self   domain.Node

	mu          sync.RWMutex
	predecessor *domain.Node
	successor   *domain.Node
	fingers     []*domain.Node // length space.Bits; copy-on-write
	loners      map[string]struct{}
}

// New creates a routing state for self, initialized as a single-node ring
// (every pointer refers to self).
func New(self domain.Node, space domain.Space, opts ...Option) *State {
	s := &State{
		self:   self,
		space:  space,
		logger: &logger.NopLogger{},
		loners: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.InitSingleNode()
	s.logger.Debug("ring state initialized", logger.F("bits", space.Bits))
	return s
}

// InitSingleNode resets predecessor, successor, and every finger to self,
// the state of a node that has just left every other node or that has not
// yet joined anything (§4.7 Leave).
func (s *State) InitSingleNode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	self := s.self
	s.predecessor = &self
	s.successor = &self
	fingers := make([]*domain.Node, s.space.Bits)
	for i := range fingers {
		fingers[i] = &self
	}
	s.fingers = fingers
	s.loners = make(map[string]struct{})
	s.logger.Debug("ring reset to single-node")
}

// Self returns the local node that owns this routing state.
func (s *State) Self() domain.Node { return s.self }

// Space returns the identifier space this ring operates in.
func (s *State) Space() domain.Space { return s.space }

// Predecessor returns the current predecessor, or nil if unknown (e.g.
// right after a remove_node that severed it, pending re-election).
func (s *State) Predecessor() *domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predecessor
}

// SetPredecessor overwrites the predecessor pointer.
func (s *State) SetPredecessor(n *domain.Node) {
	s.mu.Lock()
	s.predecessor = n
	s.mu.Unlock()
	s.logger.Debug("predecessor updated", logger.FNode("predecessor", derefOrSelf(n)))
}

// Successor returns the current successor.
func (s *State) Successor() *domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.successor
}

// SetSuccessor overwrites the successor pointer.
func (s *State) SetSuccessor(n *domain.Node) {
	s.mu.Lock()
	s.successor = n
	s.mu.Unlock()
	s.logger.Debug("successor updated", logger.FNode("successor", derefOrSelf(n)))
}

// Finger returns the i-th finger table entry.
func (s *State) Finger(i int) *domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.fingers) {
		return nil
	}
	return s.fingers[i]
}

// SetFinger overwrites the i-th finger via copy-on-write: a fresh slice is
// swapped in under the write lock so concurrent readers of Fingers() never
// see a partially updated table.
func (s *State) SetFinger(i int, n *domain.Node) {
	s.mu.Lock()
	if i < 0 || i >= len(s.fingers) {
		s.mu.Unlock()
		return
	}
	next := make([]*domain.Node, len(s.fingers))
	copy(next, s.fingers)
	next[i] = n
	s.fingers = next
	s.mu.Unlock()
}

// Fingers returns a snapshot slice of the finger table. Safe to range over
// without holding any lock.
func (s *State) Fingers() []*domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Node, len(s.fingers))
	copy(out, s.fingers)
	return out
}

// FingerStart returns the start identifier of finger i: (id(self) + 2^i) mod 2^M.
func (s *State) FingerStart(i int) domain.ID {
	inc := s.space.PowerOfTwoMod(i)
	start, _ := s.space.AddMod(s.self.ID, inc)
	return start
}

// Others returns the deduplicated set {predecessor, successor} ∪ fingers,
// excluding self. Used both by the Accept fan-out (§4.5) and by the
// /node-info wire response (§6).
func (s *State) Others() []domain.Node {
	s.mu.RLock()
	pred, succ, fingers := s.predecessor, s.successor, s.fingers
	s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []domain.Node
	add := func(n *domain.Node) {
		if n == nil || n.Addr == s.self.Addr {
			return
		}
		if _, ok := seen[n.Addr]; ok {
			return
		}
		seen[n.Addr] = struct{}{}
		out = append(out, *n)
	}
	add(pred)
	add(succ)
	for _, f := range fingers {
		add(f)
	}
	return out
}

// MarkLoner records that candidate was Accept-processed without causing a
// routing-state change, so a repeated Accept for it short-circuits (§4.5
// step 2's loop prevention).
func (s *State) MarkLoner(addr string) {
	s.mu.Lock()
	s.loners[addr] = struct{}{}
	s.mu.Unlock()
}

// IsLoner reports whether addr was already recorded by MarkLoner since the
// last ClearLoners.
func (s *State) IsLoner(addr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loners[addr]
	return ok
}

// ClearLoners empties the loop-prevention set. Called periodically (every
// ~30s) by the stabilization loop.
func (s *State) ClearLoners() {
	s.mu.Lock()
	s.loners = make(map[string]struct{})
	s.mu.Unlock()
}

// AddNode integrates candidate into the routing state per §4.6 add_node:
// it may become the new predecessor, the new successor, and/or any number
// of finger entries. Returns true iff any pointer actually changed, which
// the caller uses to decide whether the node is still a "loner" candidate.
func (s *State) AddNode(candidate domain.Node) bool {
	if candidate.Addr == s.self.Addr {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	h := candidate.ID

	if s.predecessor == nil || h.BetweenOpen(s.predecessor.ID, s.self.ID) {
		s.predecessor = &candidate
		changed = true
	}
	if s.successor == nil || h.BetweenOpen(s.self.ID, s.successor.ID) {
		s.successor = &candidate
		changed = true
	}

	next := s.fingers
	copied := false
	for i := 0; i < len(next); i++ {
		start := func() domain.ID {
			inc := s.space.PowerOfTwoMod(i)
			v, _ := s.space.AddMod(s.self.ID, inc)
			return v
		}()
		cur := next[i]
		if h.BetweenOpen(start, cur.ID) {
			if !copied {
				fresh := make([]*domain.Node, len(next))
				copy(fresh, next)
				next = fresh
				copied = true
			}
			next[i] = &candidate
			changed = true
		}
	}
	if copied {
		s.fingers = next
	}

	if changed {
		s.logger.Debug("add_node: routing state updated", logger.FNode("candidate", candidate))
	}
	return changed
}

// FingerRepair records that finger index Index was substituted with
// Replacement by RemoveNode's immediate local patch, before any
// network-assisted tightening.
type FingerRepair struct {
	Index       int
	Replacement domain.Node
}

// RemoveNode patches dead out of every routing slot that currently points
// to it (§4.8 repair). Finger entries are substituted with the next finger
// in the table as an immediate, local best-effort fix, and the indices so
// patched are returned so the stabilization worker can perform the
// network-assisted tightening (walking the replacement's predecessor
// chain) described in §4.8, since that step requires RPCs this package
// does not make. Predecessor re-election is likewise left to the caller.
func (s *State) RemoveNode(dead domain.Node) []FingerRepair {
	s.mu.Lock()
	defer s.mu.Unlock()

	M := len(s.fingers)
	next := make([]*domain.Node, M)
	copy(next, s.fingers)
	var repairs []FingerRepair
	patch := func(i, src int) {
		if next[i] != nil && next[i].Addr == dead.Addr {
			repl := next[src]
			next[i] = repl
			if repl != nil {
				repairs = append(repairs, FingerRepair{Index: i, Replacement: *repl})
			}
		}
	}
	// Each slot i takes the value of slot (i+1) mod M. Indices M-2..0 are
	// visited in descending order, so slot i+1 has already been patched
	// when slot i reads it. The wraparound slot M-1 is patched first when
	// index 0 does not point at dead, and last (once index 0 is settled)
	// when it does. When indices 0 and M-1 both point at dead (for instance
	// when every finger does), slots below M-1 can be patched from the
	// still-dead slot M-1 and keep pointing at dead.
	wrapFirst := M > 0 && (next[0] == nil || next[0].Addr != dead.Addr)
	if wrapFirst {
		patch(M-1, 0)
	}
	for i := M - 2; i >= 0; i-- {
		patch(i, i+1)
	}
	if M > 0 && !wrapFirst {
		patch(M-1, 0)
	}
	s.fingers = next

	if s.successor != nil && s.successor.Addr == dead.Addr {
		s.successor = next[0]
	}
	if s.predecessor != nil && s.predecessor.Addr == dead.Addr {
		s.predecessor = nil
	}
	delete(s.loners, dead.Addr)
	s.logger.Debug("remove_node: pruned dead peer", logger.FNode("dead", dead))
	return repairs
}

// NetworkView is the wire shape of GET /network.
type NetworkView struct {
	Successor   *domain.Node   `json:"successor"`
	Predecessor *domain.Node   `json:"predecessor"`
	FingerTable []*domain.Node `json:"finger_table"`
}

// Snapshot returns the current routing state as a NetworkView, for the
// /network endpoint.
func (s *State) Snapshot() NetworkView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fingers := make([]*domain.Node, len(s.fingers))
	copy(fingers, s.fingers)
	return NetworkView{
		Successor:   s.successor,
		Predecessor: s.predecessor,
		FingerTable: fingers,
	}
}

// NodeInfoView is the wire shape of GET /node-info.
type NodeInfoView struct {
	NodeHash  string        `json:"node_hash"`
	Successor *domain.Node  `json:"successor"`
	Others    []domain.Node `json:"others"`
}

// NodeInfo builds the /node-info response: this node's own hash, its
// successor, and the deduplicated set of other known peers (§6).
func (s *State) NodeInfo() NodeInfoView {
	return NodeInfoView{
		NodeHash:  s.self.ID.String(),
		Successor: s.Successor(),
		Others:    s.Others(),
	}
}

// DebugLog emits a single structured snapshot of the routing table.
func (s *State) DebugLog() {
	s.mu.RLock()
	pred, succ, fingers := s.predecessor, s.successor, s.fingers
	s.mu.RUnlock()

	fingerInfo := make([]map[string]any, 0, len(fingers))
	for i, f := range fingers {
		if f == nil {
			fingerInfo = append(fingerInfo, map[string]any{"index": i, "node": nil})
			continue
		}
		fingerInfo = append(fingerInfo, map[string]any{"index": i, "id": f.ID.String(), "addr": f.Addr})
	}
	s.logger.Debug("ring snapshot",
		logger.FNode("self", s.self),
		logger.FNode("predecessor", derefOrSelf(pred)),
		logger.FNode("successor", derefOrSelf(succ)),
		logger.F("fingers", fingerInfo),
	)
}

func derefOrSelf(n *domain.Node) domain.Node {
	if n == nil {
		return domain.Node{}
	}
	return *n
}
