package ring

import (
	"testing"

	"KoordeDHT/internal/domain"
)

func mustID(t *testing.T, sp domain.Space, hex string) domain.ID {
	t.Helper()
	id, err := sp.FromHexString(hex)
	if err != nil {
		t.Fatalf("FromHexString(%q): %v", hex, err)
	}
	return id
}

func newTestRing(t *testing.T, selfHex string) (*State, domain.Space, domain.Node) {
	t.Helper()
	sp, err := domain.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := domain.Node{ID: mustID(t, sp, selfHex), Addr: "self:0"}
	return New(self, sp), sp, self
}

func TestInitSingleNodeAllPointersAreSelf(t *testing.T) {
	s, sp, self := newTestRing(t, "0x10")

	if !s.Predecessor().ID.Equal(self.ID) {
		t.Error("predecessor should be self on a fresh single-node ring")
	}
	if !s.Successor().ID.Equal(self.ID) {
		t.Error("successor should be self on a fresh single-node ring")
	}
	for i, f := range s.Fingers() {
		if f == nil || !f.ID.Equal(self.ID) {
			t.Fatalf("finger[%d] = %v, want self", i, f)
		}
	}
	_ = sp
}

func TestAddNodeBecomesSuccessorAndPredecessor(t *testing.T) {
	s, sp, _ := newTestRing(t, "0x80")
	candidate := domain.Node{ID: mustID(t, sp, "0x90"), Addr: "peer:1"}

	changed := s.AddNode(candidate)
	if !changed {
		t.Fatal("AddNode should report a change for the first real peer")
	}
	if s.Successor().Addr != "peer:1" {
		t.Errorf("successor = %s, want peer:1 (only other node on the ring)", s.Successor().Addr)
	}
	if s.Predecessor().Addr != "peer:1" {
		t.Errorf("predecessor = %s, want peer:1 (only other node on the ring)", s.Predecessor().Addr)
	}
}

func TestAddNodeSkipsSelf(t *testing.T) {
	s, _, self := newTestRing(t, "0x80")
	if s.AddNode(self) {
		t.Fatal("AddNode(self) should never report a change")
	}
}

func TestAddNodeUpdatesFingerWithinItsArc(t *testing.T) {
	s, sp, _ := newTestRing(t, "0x00")
	// finger 0 starts at self+1 = 0x01; a candidate at 0x02 falls strictly
	// between that start and the current (self) finger value, so it should
	// be adopted.
	candidate := domain.Node{ID: mustID(t, sp, "0x02"), Addr: "peer:1"}
	s.AddNode(candidate)

	f0 := s.Finger(0)
	if f0 == nil || f0.Addr != "peer:1" {
		t.Errorf("finger[0] = %v, want peer:1", f0)
	}
}

func TestOthersDedupsAndExcludesSelf(t *testing.T) {
	s, sp, _ := newTestRing(t, "0x00")
	peer := domain.Node{ID: mustID(t, sp, "0x40"), Addr: "peer:1"}
	s.AddNode(peer)

	others := s.Others()
	count := 0
	for _, o := range others {
		if o.Addr == "peer:1" {
			count++
		}
		if o.Addr == "self:0" {
			t.Error("Others() should never include self")
		}
	}
	if count != 1 {
		t.Errorf("peer appears %d times in Others(), want exactly 1 (dedup across pred/succ/fingers)", count)
	}
}

func TestRemoveNodeClearsPredecessorAndPatchesSuccessor(t *testing.T) {
	s, sp, _ := newTestRing(t, "0x00")
	peer := domain.Node{ID: mustID(t, sp, "0x40"), Addr: "peer:1"}
	s.AddNode(peer)

	s.RemoveNode(peer)

	if s.Predecessor() != nil {
		t.Error("predecessor should be nil (pending re-election) after removing the only predecessor")
	}
	if succ := s.Successor(); succ != nil && succ.Addr == "peer:1" {
		t.Error("successor should no longer point at the removed peer")
	}
	for i, f := range s.Fingers() {
		if f != nil && f.Addr == "peer:1" {
			t.Errorf("finger[%d] still points at removed peer", i)
		}
	}
}

func TestRemoveNodeReportsFingerRepairs(t *testing.T) {
	s, sp, self := newTestRing(t, "0x00")
	peer := domain.Node{ID: mustID(t, sp, "0x02"), Addr: "peer:1"}
	s.AddNode(peer)

	if f0 := s.Finger(0); f0 == nil || f0.Addr != "peer:1" {
		t.Fatalf("finger[0] = %v, want peer:1 as test precondition", f0)
	}

	repairs := s.RemoveNode(peer)
	if len(repairs) != 1 {
		t.Fatalf("got %d finger repairs, want 1", len(repairs))
	}
	if repairs[0].Index != 0 {
		t.Errorf("repaired index = %d, want 0", repairs[0].Index)
	}
	if repairs[0].Replacement.Addr != self.Addr {
		t.Errorf("replacement = %v, want self (finger[1] still pointed at self)", repairs[0].Replacement)
	}
}

func TestLonerTracking(t *testing.T) {
	s, _, _ := newTestRing(t, "0x00")
	if s.IsLoner("peer:1") {
		t.Fatal("peer:1 should not be a loner before MarkLoner")
	}
	s.MarkLoner("peer:1")
	if !s.IsLoner("peer:1") {
		t.Fatal("peer:1 should be a loner after MarkLoner")
	}
	s.ClearLoners()
	if s.IsLoner("peer:1") {
		t.Fatal("ClearLoners should empty the loop-prevention set")
	}
}

func TestFingerStartIsSelfPlusPowerOfTwo(t *testing.T) {
	s, sp, self := newTestRing(t, "0x00")
	start := s.FingerStart(3)
	want, _ := sp.AddMod(self.ID, sp.PowerOfTwoMod(3))
	if !start.Equal(want) {
		t.Errorf("FingerStart(3) = %s, want %s", start, want)
	}
}
