// Package node implements the ring protocol operations described in
// SPEC_FULL.md §4: responsibility testing and routing, the Get/Put data
// path, the Join/Accept handshake, leave, crash/recover simulation, and
// the background stabilization loop. The HTTP surface (internal/server)
// is a thin adapter on top of this package.
package node

import (
	"sync/atomic"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/peer"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/storage"
)

// Node is a single ring participant: its identity, its routing state, its
// local key-value store, and the client used to reach other nodes.
type Node struct {
	self  domain.Node
	space domain.Space

	ring  *ring.State
	store storage.Store
	peer  *peer.Client

	crashed atomic.Bool

	lgr logger.Logger
}

// New constructs a Node. The ring starts out as a single-node ring
// (§4.7's InitSingleNode state); callers call Join or CreateNewDHT next.
func New(self domain.Node, space domain.Space, rt *ring.State, store storage.Store, pc *peer.Client, opts ...Option) *Node {
	n := &Node{
		self:  self,
		space: space,
		ring:  rt,
		store: store,
		peer:  pc,
		lgr:   &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Self returns this node's address and identifier.
func (n *Node) Self() domain.Node { return n.self }

// Space returns the identifier space this node operates in.
func (n *Node) Space() domain.Space { return n.space }

// Ring exposes the routing state, for the HTTP layer's /network and
// /node-info handlers.
func (n *Node) Ring() *ring.State { return n.ring }

// Store exposes the local key-value store, for the /node introspection
// handler.
func (n *Node) Store() storage.Store { return n.store }

// Crashed reports whether the crash simulation flag is set (§4.9).
func (n *Node) Crashed() bool { return n.crashed.Load() }

// CreateNewDHT makes this node the sole member of a fresh ring.
func (n *Node) CreateNewDHT() {
	n.ring.InitSingleNode()
	n.lgr.Info("created new ring as sole member")
}
