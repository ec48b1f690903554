package domain

import "testing"

func TestIsZero(t *testing.T) {
	var zero Node
	if !zero.IsZero() {
		t.Error("zero-value Node should report IsZero() == true")
	}

	sp, _ := NewSpace(8)
	n := Node{ID: sp.NewIdFromString("n"), Addr: "n:1"}
	if n.IsZero() {
		t.Error("a populated Node should report IsZero() == false")
	}
}
