package node

import (
	"context"
	"time"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// StartStabilizers launches the background maintenance goroutines described
// in §4.8: a periodic probe-and-repair pass over every address in routing
// state, and a periodic clear of the Accept loop-prevention set. Both stop
// when ctx is canceled; this keeps the teacher's ticker-goroutine-per-concern
// shape (internal/node/worker.go's StartStabilizers) while replacing the
// classic-Chord notify/stabilize/fix-fingers bodies with the node-info
// probe + remove_node repair algorithm from original_source/server.py.
func (n *Node) StartStabilizers(ctx context.Context, stabilizationInterval, loopPreventionClearInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(stabilizationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				n.lgr.Info("stabilization loop stopped")
				return
			case <-ticker.C:
				n.stabilizeOnce(ctx)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(loopPreventionClearInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.ring.ClearLoners()
				n.lgr.Debug("loop-prevention set cleared")
			}
		}
	}()
}

// stabilizeOnce runs a single probe-and-repair pass: every address in
// {predecessor, successor} ∪ fingers is probed via /node-info; an
// unreachable or partitioned (loner) peer triggers remove_node. If the
// predecessor slot is empty (cleared by a previous repair), it is
// re-elected by querying fingers' /network for one reporting this node,
// or the dead peer, as its successor.
func (n *Node) stabilizeOnce(ctx context.Context) {
	if n.Crashed() {
		return
	}

	var dead []domain.Node
	for _, p := range n.ring.Others() {
		info, err := n.peer.NodeInfo(ctx, p.Addr)
		switch {
		case err != nil:
			n.lgr.Warn("stabilization: peer unreachable, repairing", logger.F("peer", p.Addr), logger.F("err", err.Error()))
			n.repairDeadPeer(ctx, p)
			dead = append(dead, p)
		case info.Successor != nil && info.Successor.Addr == p.Addr:
			n.lgr.Warn("stabilization: peer is a loner, repairing", logger.F("peer", p.Addr))
			n.repairDeadPeer(ctx, p)
			dead = append(dead, p)
		default:
			// Live and well-formed; nothing to do for this peer this tick.
		}
	}

	if n.ring.Predecessor() == nil {
		n.electPredecessor(ctx, dead)
	}
}

// repairDeadPeer runs remove_node's local patch for dead, then tightens
// every finger it substituted by walking the replacement's predecessor
// chain over the network (§4.8): as long as the queried predecessor lies
// in the arc (id(dead), id(current-replacement)) and differs from dead,
// it is adopted as the new finger and the walk continues from there,
// converging on dead's true successor.
func (n *Node) repairDeadPeer(ctx context.Context, dead domain.Node) {
	repairs := n.ring.RemoveNode(dead)
	for _, r := range repairs {
		cur := r.Replacement
		for {
			view, err := n.peer.Network(ctx, cur.Addr)
			if err != nil || view.Predecessor == nil {
				break
			}
			pred := *view.Predecessor
			if pred.Addr == dead.Addr || pred.Addr == cur.Addr {
				break
			}
			if !pred.ID.BetweenOpen(dead.ID, cur.ID) {
				break
			}
			cur = pred
		}
		if cur.Addr != r.Replacement.Addr {
			n.ring.SetFinger(r.Index, &cur)
			n.lgr.Debug("stabilization: finger tightened", logger.F("index", r.Index), logger.FNode("finger", cur))
		}
	}
}

// electPredecessor implements the predecessor re-election step of §4.8:
// query each finger's /network and adopt the first one reporting a
// successor equal to dead (the just-removed node it hasn't yet noticed is
// gone) or equal to this node (it already thinks we are its successor) as
// our new predecessor.
func (n *Node) electPredecessor(ctx context.Context, dead []domain.Node) {
	isDead := func(addr string) bool {
		for _, d := range dead {
			if d.Addr == addr {
				return true
			}
		}
		return false
	}
	for _, f := range n.ring.Fingers() {
		if f == nil || f.Addr == n.self.Addr {
			continue
		}
		view, err := n.peer.Network(ctx, f.Addr)
		if err != nil {
			continue
		}
		if view.Successor != nil && (view.Successor.Addr == n.self.Addr || isDead(view.Successor.Addr)) {
			cand := *f
			n.ring.SetPredecessor(&cand)
			n.lgr.Info("stabilization: predecessor re-elected", logger.FNode("predecessor", cand))
			return
		}
	}
}

// resourceRepair transfers any locally stored resource that this node no
// longer owns (e.g. after a predecessor re-election shrank its arc) to the
// resource's true owner, found via a fresh lookup. Grounded on the
// teacher's worker.go resourceRepair pass, adapted from gRPC StoreRemote to
// the HTTP peer client's Put.
func (n *Node) resourceRepair(ctx context.Context) {
	pred := n.ring.Predecessor()
	if pred == nil {
		return
	}
	all := n.store.All()
	for _, res := range all {
		if res.Key.Between(pred.ID, n.self.ID) {
			continue // still ours
		}
		target := n.NextHop(res.Key)
		if target.Addr == n.self.Addr {
			continue
		}
		if err := n.peer.Put(ctx, target.Addr, res.RawKey, res.Value); err != nil {
			n.lgr.Warn("resource repair: transfer failed", logger.F("key", res.RawKey), logger.F("target", target.Addr), logger.F("err", err.Error()))
			continue
		}
		_ = n.store.Delete(res.Key)
		n.lgr.Debug("resource repair: transferred key no longer owned", logger.F("key", res.RawKey), logger.FNode("target", target))
	}
}

// StartResourceRepair launches the periodic local-ownership sweep described
// above as its own ticker, independent from ring stabilization since it
// reasons about the KV store rather than routing pointers.
func (n *Node) StartResourceRepair(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.resourceRepair(ctx)
			}
		}
	}()
}
