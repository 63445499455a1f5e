package serve

import "testing"

func TestGate_WakeCoalescesPendingSignals(t *testing.T) {
	g := NewGate()
	g.Wake()
	g.Wake()
	g.Wake()

	select {
	case <-g.C():
	default:
		t.Fatal("expected a pending signal")
	}

	select {
	case <-g.C():
		t.Fatal("expected the extra wakes to be coalesced, not queued")
	default:
	}
}

func TestGate_CBlocksUntilWoken(t *testing.T) {
	g := NewGate()
	select {
	case <-g.C():
		t.Fatal("gate fired before Wake was called")
	default:
	}
}
