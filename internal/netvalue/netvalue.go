// Package netvalue is the single source of truth for network-value math.
// Every layer that displays or stores a network value goes through the
// Aggregator so the constant and the rounding rule can never drift.
package netvalue

import "math"

// DefaultValuePerConnection is the score each accepted connection contributes.
const DefaultValuePerConnection = 3.14

// Aggregator derives a member's network value from their accepted-connection
// count.
type Aggregator struct {
	valuePerConnection float64
}

// NewAggregator builds an aggregator with the injected per-connection value.
// Non-positive values fall back to the default.
func NewAggregator(valuePerConnection float64) *Aggregator {
	if valuePerConnection <= 0 {
		valuePerConnection = DefaultValuePerConnection
	}
	return &Aggregator{valuePerConnection: valuePerConnection}
}

// NetworkValue returns acceptedCount * valuePerConnection rounded to two
// decimal places. Zero accepted connections yield exactly 0.
func (a *Aggregator) NetworkValue(acceptedCount int) float64 {
	if acceptedCount <= 0 {
		return 0
	}
	return Round2(float64(acceptedCount) * a.valuePerConnection)
}

// ValuePerConnection exposes the constant for display layers.
func (a *Aggregator) ValuePerConnection() float64 {
	return a.valuePerConnection
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
