package originpool

import (
	"net"
	"testing"
)

type fakeConnPair struct{ a, b net.Conn }

func newFakeConns(t *testing.T, n int) []Conn {
	t.Helper()
	conns := make([]Conn, n)
	for i := 0; i < n; i++ {
		a, b := net.Pipe()
		t.Cleanup(func() { a.Close(); b.Close() })
		conns[i] = newPooledConn(string(rune('a'+i)), a)
	}
	return conns
}

func TestRoundRobinSkipsInUseAndUnhealthy(t *testing.T) {
	conns := newFakeConns(t, 3)
	conns[0].SetInUse(true)
	conns[1].SetHealthy(false)

	sel := NewRoundRobinSelector()
	got, err := sel.Select(conns)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.ID() != conns[2].ID() {
		t.Fatalf("expected the only idle healthy conn, got %s", got.ID())
	}
}

func TestRoundRobinNoneAvailable(t *testing.T) {
	conns := newFakeConns(t, 2)
	for _, c := range conns {
		c.SetInUse(true)
	}
	sel := NewRoundRobinSelector()
	if _, err := sel.Select(conns); err == nil {
		t.Fatal("expected an error when no connection is idle")
	}
}

func TestLeastConnectionsPrefersFewestUses(t *testing.T) {
	conns := newFakeConns(t, 3)
	conns[0].IncrementUseCount()
	conns[0].IncrementUseCount()
	conns[1].IncrementUseCount()

	sel := NewLeastConnectionsSelector()
	got, err := sel.Select(conns)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.ID() != conns[2].ID() {
		t.Fatalf("expected the never-used connection, got %s", got.ID())
	}
}

func TestWeightedRoundRobinFavorsHigherWeight(t *testing.T) {
	conns := newFakeConns(t, 2)
	conns[0].SetWeight(1)
	conns[1].SetWeight(4)

	sel := NewWeightedRoundRobinSelector()
	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		c, err := sel.Select(conns)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[c.ID()]++
	}

	if counts[conns[1].ID()] <= counts[conns[0].ID()] {
		t.Fatalf("expected the weight-4 connection to be selected more often, got %v", counts)
	}
}

func TestFactoryUnsupportedAlgorithm(t *testing.T) {
	if _, err := NewSelector("made-up"); err == nil {
		t.Fatal("expected an error for an unsupported algorithm")
	}
}

func TestFactoryDefaultsToRoundRobin(t *testing.T) {
	sel, err := NewSelector("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sel.(*RoundRobinSelector); !ok {
		t.Fatalf("expected round robin default, got %T", sel)
	}
}
