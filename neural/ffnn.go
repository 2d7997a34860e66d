// Package neural provides the feedforward network used as an agent policy.
package neural

import (
	"fmt"
	"math"
	"math/rand"
)

// Network dimensions fixed by the policy interface.
const (
	NumInputs  = 3 // y, distance to gap top, distance to gap bottom
	NumOutputs = 1 // jump
)

// InputScale maps pixel-valued inputs into the tanh-friendly range.
const InputScale = 0.01

// FFNN is a two-layer feedforward network: NumInputs -> Hidden -> 1, tanh
// activations throughout. It implements components.Policy and is safe for
// concurrent Decide calls.
type FFNN struct {
	Hidden int
	W1     [][NumInputs]float64 // input -> hidden weights
	B1     []float64            // hidden biases
	W2     []float64            // hidden -> output weights
	B2     float64              // output bias
}

// NumWeights returns the parameter count of a network with the given hidden size.
func NumWeights(hidden int) int {
	return hidden*NumInputs + hidden + hidden + 1
}

func newEmpty(hidden int) *FFNN {
	return &FFNN{
		Hidden: hidden,
		W1:     make([][NumInputs]float64, hidden),
		B1:     make([]float64, hidden),
		W2:     make([]float64, hidden),
	}
}

// NewFFNN creates a randomly initialized network with Xavier-scaled weights.
func NewFFNN(rng *rand.Rand, hidden int) *FFNN {
	if hidden < 1 {
		hidden = 1
	}
	nn := newEmpty(hidden)

	scale1 := math.Sqrt(2.0 / float64(NumInputs))
	scale2 := math.Sqrt(2.0 / float64(hidden))

	for i := range nn.W1 {
		for j := range nn.W1[i] {
			nn.W1[i][j] = rng.NormFloat64() * scale1
		}
	}
	for i := range nn.W2 {
		nn.W2[i] = rng.NormFloat64() * scale2
	}

	return nn
}

// Forward computes the network output in [-1, 1].
func (nn *FFNN) Forward(inputs [NumInputs]float64) float64 {
	out := nn.B2
	for i := 0; i < nn.Hidden; i++ {
		sum := nn.B1[i]
		for j := 0; j < NumInputs; j++ {
			sum += nn.W1[i][j] * inputs[j] * InputScale
		}
		out += nn.W2[i] * math.Tanh(sum)
	}
	return math.Tanh(out)
}

// Decide implements components.Policy.
func (nn *FFNN) Decide(y, topDist, bottomDist float64) float64 {
	return nn.Forward([NumInputs]float64{y, topDist, bottomDist})
}

// MutateSparse applies sparse per-weight mutation for stable lineages.
// rate: probability each weight mutates (e.g., 0.2)
// sigma: standard deviation of normal perturbation (e.g., 0.3)
// bigRate: probability of a large mutation (e.g., 0.05)
// bigSigma: sigma for large mutations (e.g., 1.5)
// Returns avgAbsDelta: the average absolute delta of all applied mutations.
func (nn *FFNN) MutateSparse(rng *rand.Rand, rate, sigma, bigRate, bigSigma float64) float64 {
	biasRate := rate * 0.5 // biases mutate at half the rate

	var totalDelta float64
	var count int

	perturb := func(w *float64, p float64) {
		if rng.Float64() >= p {
			return
		}
		s := sigma
		if rng.Float64() < bigRate {
			s = bigSigma
		}
		delta := rng.NormFloat64() * s
		*w += delta
		totalDelta += math.Abs(delta)
		count++
	}

	for i := range nn.W1 {
		for j := range nn.W1[i] {
			perturb(&nn.W1[i][j], rate)
		}
		perturb(&nn.B1[i], biasRate)
		perturb(&nn.W2[i], rate)
	}
	perturb(&nn.B2, biasRate)

	if count == 0 {
		return 0
	}
	return totalDelta / float64(count)
}

// Clone creates a deep copy of the network.
func (nn *FFNN) Clone() *FFNN {
	clone := newEmpty(nn.Hidden)
	copy(clone.W1, nn.W1)
	copy(clone.B1, nn.B1)
	copy(clone.W2, nn.W2)
	clone.B2 = nn.B2
	return clone
}

// Flat returns all parameters in a fixed order: W1 row-major, B1, W2, B2.
func (nn *FFNN) Flat() []float64 {
	out := make([]float64, 0, NumWeights(nn.Hidden))
	for i := range nn.W1 {
		out = append(out, nn.W1[i][:]...)
	}
	out = append(out, nn.B1...)
	out = append(out, nn.W2...)
	return append(out, nn.B2)
}

// FromFlat builds a network from parameters laid out as by Flat.
func FromFlat(hidden int, w []float64) (*FFNN, error) {
	if hidden < 1 {
		return nil, fmt.Errorf("hidden size must be at least 1, got %d", hidden)
	}
	if want := NumWeights(hidden); len(w) != want {
		return nil, fmt.Errorf("got %d weights, want %d for %d hidden units", len(w), want, hidden)
	}

	nn := newEmpty(hidden)
	k := 0
	for i := range nn.W1 {
		for j := range nn.W1[i] {
			nn.W1[i][j] = w[k]
			k++
		}
	}
	k += copy(nn.B1, w[k:k+hidden])
	k += copy(nn.W2, w[k:k+hidden])
	nn.B2 = w[k]
	return nn, nil
}

// BrainWeights holds a network's parameters for JSON serialization.
type BrainWeights struct {
	Hidden  int       `json:"hidden"`
	Weights []float64 `json:"weights"`
}

// MarshalWeights flattens the network for JSON serialization.
func (nn *FFNN) MarshalWeights() BrainWeights {
	return BrainWeights{Hidden: nn.Hidden, Weights: nn.Flat()}
}

// UnmarshalWeights restores a network from its serialized form.
func UnmarshalWeights(bw BrainWeights) (*FFNN, error) {
	return FromFlat(bw.Hidden, bw.Weights)
}
