package originpool

import "errors"

// RoundRobinSelector distributes reuse evenly across a host's idle
// connections via a cursor-and-wraparound scan, skipping slots that are
// either unhealthy or currently in use.
type RoundRobinSelector struct {
	current int
}

// NewRoundRobinSelector creates a round-robin connection selector.
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

// Select scans conns starting from the cursor, returning the first idle,
// healthy connection found and advancing the cursor past it.
func (rr *RoundRobinSelector) Select(conns []Conn) (Conn, error) {
	if len(conns) == 0 {
		return nil, errors.New("originpool: no connections available")
	}

	if rr.current >= len(conns) {
		rr.current = 0
	}

	start := rr.current
	for {
		c := conns[rr.current]
		rr.current = (rr.current + 1) % len(conns)

		if c.IsHealthy() && !c.InUse() {
			return c, nil
		}

		if rr.current == start {
			return nil, errors.New("originpool: no idle healthy connection")
		}
	}
}

// UpdateHealth flips the health flag of the connection with the given ID.
func (rr *RoundRobinSelector) UpdateHealth(conns []Conn, id string, healthy bool) {
	updateHealth(conns, id, healthy)
}

func updateHealth(conns []Conn, id string, healthy bool) {
	for _, c := range conns {
		if c.ID() == id {
			c.SetHealthy(healthy)
			return
		}
	}
}
