package node

import (
	"context"
	"errors"
	"fmt"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// ErrCrashed is returned by every operation except SimRecover while the
// crash simulation flag is set (§4.9).
var ErrCrashed = errors.New("node has crashed")

// IsResponsible implements §4.2's responsibility test: is the given
// identifier owned by this node?
func (n *Node) IsResponsible(id domain.ID) bool {
	if id.Equal(n.self.ID) {
		return true
	}
	pred := n.ring.Predecessor()
	if pred == nil {
		// No known predecessor (single-node ring, or mid-repair pending
		// re-election): tentatively own the whole space.
		return true
	}
	if pred.ID.Equal(n.self.ID) {
		return true
	}
	return id.Between(pred.ID, n.self.ID)
}

// NextHop implements §4.3's finger selection: the highest finger whose
// identifier does not overshoot target, scanning i = 0..M-1 and returning
// the previous finger at the first overshoot. Fingers still pointing at
// self are treated as unpopulated and skipped, not as an overshoot.
func (n *Node) NextHop(target domain.ID) domain.Node {
	fingers := n.ring.Fingers()
	prev := n.self
	if len(fingers) > 0 && fingers[0] != nil {
		prev = *fingers[0]
	}
	for i := 1; i < len(fingers); i++ {
		f := fingers[i]
		if f == nil || f.ID.Equal(n.self.ID) {
			continue
		}
		if !f.ID.Between(n.self.ID, target) {
			break
		}
		prev = *f
	}
	return prev
}

// Get implements §4.4: serve locally if responsible, else forward to the
// selected finger and return its response verbatim.
func (n *Node) Get(ctx context.Context, key string) (string, error) {
	if n.Crashed() {
		return "", ErrCrashed
	}
	id := n.space.NewIdFromString(key)
	if n.IsResponsible(id) {
		res, err := n.store.Get(id)
		if err != nil {
			return "", err
		}
		return res.Value, nil
	}
	target := n.NextHop(id)
	n.lgr.Debug("get: forwarding", logger.F("key", key), logger.FNode("target", target))
	return n.peer.Get(ctx, target.Addr, key)
}

// Put implements §4.4: store locally if responsible, else forward.
func (n *Node) Put(ctx context.Context, key, value string) error {
	if n.Crashed() {
		return ErrCrashed
	}
	id := n.space.NewIdFromString(key)
	if n.IsResponsible(id) {
		n.store.Put(domain.Resource{Key: id, RawKey: key, Value: value})
		return nil
	}
	target := n.NextHop(id)
	n.lgr.Debug("put: forwarding", logger.F("key", key), logger.FNode("target", target))
	return n.peer.Put(ctx, target.Addr, key, value)
}

// Accept implements §4.5's Accept protocol on the receiving side. loner is
// the joining node; nprime is the seed address the joiner originally
// contacted (used to bound the recursive fan-out region). It returns the
// accumulated membership address list, or nil if loner was already known
// (loop prevention).
func (n *Node) Accept(ctx context.Context, loner, nprime domain.Node) []string {
	full := append([]domain.Node{n.self}, n.ring.Others()...)
	for _, p := range full {
		if p.Addr == loner.Addr {
			n.lgr.Debug("accept: loner already known, short-circuiting", logger.FNode("loner", loner))
			return nil
		}
	}
	if n.ring.IsLoner(loner.Addr) {
		n.lgr.Debug("accept: loner already recorded as a no-op, short-circuiting", logger.FNode("loner", loner))
		return nil
	}

	changed := n.ring.AddNode(loner)
	if !changed {
		n.ring.MarkLoner(loner.Addr)
	}

	others := n.ring.Others()
	collected := []string{n.self.Addr}
	for _, p := range others {
		if !p.ID.BetweenOpen(n.self.ID, nprime.ID) {
			continue
		}
		sub, err := n.peer.Accept(ctx, p.Addr, loner, nprime)
		if err != nil {
			n.lgr.Warn("accept: fan-out failed", logger.F("peer", p.Addr), logger.F("err", err.Error()))
			continue
		}
		collected = append(collected, sub...)
	}
	return collected
}

// Join integrates this node into the ring reachable from nprimeAddr: it
// sends itself as the Accept loner, then folds add_node (§4.6) over every
// address in the returned membership list, re-deriving predecessor,
// successor, and the finger table from that bootstrap set.
func (n *Node) Join(ctx context.Context, nprimeAddr string) error {
	nprime := domain.Node{Addr: nprimeAddr, ID: n.space.NewIdFromString(nprimeAddr)}

	members, err := n.peer.Accept(ctx, nprimeAddr, n.self, nprime)
	if err != nil {
		return fmt.Errorf("join via %s: %w", nprimeAddr, err)
	}

	seen := map[string]struct{}{n.self.Addr: {}}
	for _, addr := range members {
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		candidate := domain.Node{Addr: addr, ID: n.space.NewIdFromString(addr)}
		n.ring.AddNode(candidate)
	}
	n.lgr.Info("joined ring", logger.F("seed", nprimeAddr), logger.F("members_seen", len(seen)))
	return nil
}

// Leave implements §4.7: reset to a single-node ring. No peer is notified;
// they discover the departure during stabilization.
func (n *Node) Leave() {
	n.ring.InitSingleNode()
	n.lgr.Info("left ring, reset to single-node")
}

// SimCrash implements §4.9: set the crash flag.
func (n *Node) SimCrash() {
	n.crashed.Store(true)
	n.lgr.Warn("crash simulation engaged")
}

// SimRecover implements §4.9: clear the crash flag and re-join via any
// peer still present in local routing state, trying each in turn and
// stopping at the first success. If no peer is known (a pure single-node
// ring), this is already a no-op success per §10 Open Question 3 — the
// empty-peer-list guard below is explicit, not a loop fall-through.
func (n *Node) SimRecover(ctx context.Context) error {
	n.crashed.Store(false)
	n.ring.ClearLoners()

	peers := n.ring.Others()
	if len(peers) == 0 {
		n.lgr.Info("sim-recover: no peers known, already recovered")
		return nil
	}
	var lastErr error
	for _, p := range peers {
		if err := n.Join(ctx, p.Addr); err == nil {
			n.lgr.Info("sim-recover: rejoined ring", logger.F("via", p.Addr))
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("sim-recover: no known peer reachable: %w", lastErr)
}
