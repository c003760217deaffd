package originpool

import "errors"

// WeightedRoundRobinSelector implements the smooth weighted round-robin
// algorithm over a host's idle connection slots. A slot's weight can be
// raised to bias reuse towards connections known to be warmer (e.g. TLS
// session resumption would make this meaningful; plain HTTP connections
// all default to weight 1, which degenerates to plain round robin).
type WeightedRoundRobinSelector struct {
	currentWeights map[string]int
}

// NewWeightedRoundRobinSelector creates a weighted round-robin selector.
func NewWeightedRoundRobinSelector() *WeightedRoundRobinSelector {
	return &WeightedRoundRobinSelector{currentWeights: make(map[string]int)}
}

// Select runs one step of the smooth weighted round-robin algorithm over
// the idle, healthy connections in conns.
func (wrr *WeightedRoundRobinSelector) Select(conns []Conn) (Conn, error) {
	if len(conns) == 0 {
		return nil, errors.New("originpool: no connections available")
	}

	var selected Conn
	maxCurrent := -1
	totalWeight := 0

	for _, c := range conns {
		if !c.IsHealthy() || c.InUse() {
			continue
		}
		w := c.GetWeight()
		totalWeight += w

		cur := wrr.currentWeights[c.ID()] + w
		wrr.currentWeights[c.ID()] = cur

		if cur > maxCurrent {
			selected = c
			maxCurrent = cur
		}
	}

	if selected == nil {
		return nil, errors.New("originpool: no idle healthy connection")
	}

	wrr.currentWeights[selected.ID()] -= totalWeight
	return selected, nil
}

// UpdateHealth flips the health flag of the connection with the given ID.
func (wrr *WeightedRoundRobinSelector) UpdateHealth(conns []Conn, id string, healthy bool) {
	updateHealth(conns, id, healthy)
}
