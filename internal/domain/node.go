package domain

// Node identifies a single ring participant: its address and its
// identifier in the ring's identifier space.
type Node struct {
	ID   ID
	Addr string
}

// IsZero reports whether n is the zero-value Node (no address, no ID).
func (n Node) IsZero() bool {
	return n.Addr == "" && len(n.ID) == 0
}
