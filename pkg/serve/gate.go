// Package serve implements the perpetual reconciliation loop: one
// background goroutine that wakes on a timer or an early signal, checks
// host reachability, refreshes the daemon cache, looks for strays, and
// advances any in-progress upgrade. Grounded on the teacher's
// cluster.Manager.Start polling-with-deadline idiom and pkg/monitoring's
// periodic-tick manager, generalized from a one-shot startup poll into a
// perpetual tick.
package serve

// Gate is the event gate mutators kick to wake the loop early instead of
// waiting out the full sleep interval. It satisfies inventory.Waker
// without pkg/inventory importing pkg/serve.
type Gate struct {
	ch chan struct{}
}

// NewGate returns a ready-to-use Gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{}, 1)}
}

// Wake signals the gate. Non-blocking: a pending signal is coalesced with
// any already queued, since the loop only ever needs to know "wake up",
// not how many times it was asked to.
func (g *Gate) Wake() {
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

// C returns the channel Run selects on.
func (g *Gate) C() <-chan struct{} {
	return g.ch
}
