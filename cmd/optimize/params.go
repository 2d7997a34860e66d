package main

import (
	"math/rand"

	"github.com/pthm-cable/flap/neural"
)

// WeightSpace maps CMA-ES search vectors to policy network weights.
// The optimizer searches in [0,1] per dimension; weights live in
// [-Limit, Limit].
type WeightSpace struct {
	Hidden int
	Limit  float64
}

// NewWeightSpace creates the search space for a network with the given
// hidden width.
func NewWeightSpace(hidden int, limit float64) *WeightSpace {
	return &WeightSpace{Hidden: max(hidden, 1), Limit: limit}
}

// Dim returns the number of parameters.
func (ws *WeightSpace) Dim() int {
	return neural.NumWeights(ws.Hidden)
}

// InitialVector returns the normalized weights of a freshly initialized network.
func (ws *WeightSpace) InitialVector(rng *rand.Rand) []float64 {
	return ws.Normalize(neural.NewFFNN(rng, ws.Hidden).Flat())
}

// Normalize converts raw weights to the [0,1] search range.
func (ws *WeightSpace) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(raw))
	for i, w := range raw {
		normalized[i] = (w + ws.Limit) / (2 * ws.Limit)
	}
	return normalized
}

// Denormalize converts search values back to raw weights.
func (ws *WeightSpace) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(normalized))
	for i, x := range normalized {
		raw[i] = -ws.Limit + x*2*ws.Limit
	}
	return raw
}

// Clamp ensures all weights are within [-Limit, Limit].
func (ws *WeightSpace) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(v))
	for i, w := range v {
		clamped[i] = min(max(w, -ws.Limit), ws.Limit)
	}
	return clamped
}

// Decode builds the network for a search vector, clamping out-of-range weights.
func (ws *WeightSpace) Decode(x []float64) (*neural.FFNN, error) {
	return neural.FromFlat(ws.Hidden, ws.Clamp(ws.Denormalize(x)))
}
