package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/peer"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/storage"
)

func mustID(t *testing.T, sp domain.Space, hex string) domain.ID {
	t.Helper()
	id, err := sp.FromHexString(hex)
	if err != nil {
		t.Fatalf("FromHexString(%q): %v", hex, err)
	}
	return id
}

func newTestNode(t *testing.T, selfHex string) (*Node, domain.Space, domain.Node) {
	t.Helper()
	sp, err := domain.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := domain.Node{ID: mustID(t, sp, selfHex), Addr: "self:0"}
	rt := ring.New(self, sp)
	store := storage.NewMemoryStorage(&logger.NopLogger{})
	pc := peer.New(time.Second)
	n := New(self, sp, rt, store, pc)
	return n, sp, self
}

func TestIsResponsibleSingleNodeOwnsWholeSpace(t *testing.T) {
	n, sp, _ := newTestNode(t, "0x10")
	id := mustID(t, sp, "0xaa")
	if !n.IsResponsible(id) {
		t.Fatal("a lone node should be responsible for every identifier")
	}
}

func TestIsResponsibleRespectsPredecessorArc(t *testing.T) {
	n, sp, self := newTestNode(t, "0x80")
	pred := domain.Node{ID: mustID(t, sp, "0x40"), Addr: "pred:0"}
	n.ring.SetPredecessor(&pred)

	inArc := mustID(t, sp, "0x50")
	outOfArc := mustID(t, sp, "0x20")

	if !n.IsResponsible(inArc) {
		t.Error("identifier inside (predecessor, self] should be owned")
	}
	if n.IsResponsible(outOfArc) {
		t.Error("identifier outside (predecessor, self] should not be owned")
	}
	if !n.IsResponsible(self.ID) {
		t.Error("self's own identifier is always owned")
	}
}

func TestGetPutRoundTripWhenResponsible(t *testing.T) {
	n, _, _ := newTestNode(t, "0x10")
	ctx := context.Background()

	if err := n.Put(ctx, "hello", "world"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, err := n.Get(ctx, "hello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "world" {
		t.Errorf("Get = %q, want %q", val, "world")
	}
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	n, _, _ := newTestNode(t, "0x10")
	if _, err := n.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Errorf("Get(missing) = %v, want ErrResourceNotFound", err)
	}
}

func TestCrashedNodeRejectsOperations(t *testing.T) {
	n, _, _ := newTestNode(t, "0x10")
	n.SimCrash()

	if _, err := n.Get(context.Background(), "hello"); !errors.Is(err, ErrCrashed) {
		t.Errorf("Get while crashed = %v, want ErrCrashed", err)
	}
	if err := n.Put(context.Background(), "hello", "world"); !errors.Is(err, ErrCrashed) {
		t.Errorf("Put while crashed = %v, want ErrCrashed", err)
	}
}

func TestSimRecoverWithNoKnownPeersSucceedsImmediately(t *testing.T) {
	n, _, _ := newTestNode(t, "0x10")
	n.SimCrash()

	if err := n.SimRecover(context.Background()); err != nil {
		t.Fatalf("SimRecover with no known peers should succeed immediately, got %v", err)
	}
	if n.Crashed() {
		t.Error("node should no longer be crashed after SimRecover")
	}
}

func TestLeaveResetsToSingleNode(t *testing.T) {
	n, sp, self := newTestNode(t, "0x10")
	peerNode := domain.Node{ID: mustID(t, sp, "0x50"), Addr: "peer:1"}
	n.ring.AddNode(peerNode)

	n.Leave()

	if !n.ring.Successor().ID.Equal(self.ID) {
		t.Error("successor should be self again after Leave")
	}
	if !n.ring.Predecessor().ID.Equal(self.ID) {
		t.Error("predecessor should be self again after Leave")
	}
}

func TestAcceptShortCircuitsForAlreadyRecordedLoner(t *testing.T) {
	n, sp, self := newTestNode(t, "0x10")
	loner := domain.Node{ID: mustID(t, sp, "0x20"), Addr: "loner:1"}
	n.ring.MarkLoner(loner.Addr)

	nprime := domain.Node{ID: self.ID, Addr: self.Addr}
	if got := n.Accept(context.Background(), loner, nprime); got != nil {
		t.Errorf("Accept for a recorded loner = %v, want nil (loop-prevention short-circuit)", got)
	}
}

func TestNextHopSkipsUnpopulatedFingersPointingAtSelf(t *testing.T) {
	n, sp, self := newTestNode(t, "0x00")
	target := mustID(t, sp, "0x7f")

	// All fingers still point at self (single-node ring): NextHop must
	// fall back to self rather than overshoot.
	hop := n.NextHop(target)
	if !hop.ID.Equal(self.ID) {
		t.Errorf("NextHop on a single-node ring = %v, want self", hop)
	}
}
