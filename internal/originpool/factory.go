package originpool

import (
	"fmt"
	"strings"
)

// Algorithm names the supported connection-reuse selection strategies.
type Algorithm string

const (
	RoundRobin         Algorithm = "round-robin"
	LeastConnections   Algorithm = "least-connections"
	WeightedRoundRobin Algorithm = "weighted-round-robin"
)

// NewSelector creates a Selector instance using the factory pattern,
// dispatching on the configured algorithm name. Unlike a backend-set
// load balancer, this pool's connections are dialed lazily rather than
// configured up front, so there is no backend list to validate here.
func NewSelector(algorithm string) (Selector, error) {
	switch Algorithm(strings.ToLower(algorithm)) {
	case RoundRobin, "":
		return NewRoundRobinSelector(), nil
	case LeastConnections:
		return NewLeastConnectionsSelector(), nil
	case WeightedRoundRobin:
		return NewWeightedRoundRobinSelector(), nil
	default:
		return nil, fmt.Errorf("unsupported connection selection algorithm: %s", algorithm)
	}
}

// GetSupportedAlgorithms returns the list of recognised algorithm names.
func GetSupportedAlgorithms() []string {
	return []string{
		string(RoundRobin),
		string(LeastConnections),
		string(WeightedRoundRobin),
	}
}
