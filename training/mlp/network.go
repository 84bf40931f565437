package mlp

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const (
	ActivationReLU   = "relu"
	ActivationLinear = "linear"
)

// Layer is a fully connected layer. Weights are stored row-major with one row
// per input and one column per unit, so a batch forward pass is X·W + b.
type Layer struct {
	Inputs     int       `json:"inputs"`
	Units      int       `json:"units"`
	Activation string    `json:"activation"`
	Weights    []float64 `json:"weights"`
	Bias       []float64 `json:"bias"`
}

// LayerInfo describes a layer for API consumers
type LayerInfo struct {
	Type       string `json:"type"`
	Units      int    `json:"units"`
	Activation string `json:"activation"`
}

// Network is a feed-forward regression network with a single linear output
type Network struct {
	Inputs int     `json:"inputs"`
	Layers []Layer `json:"layers"`
}

// NewNetwork builds a network with relu hidden layers and a linear output unit.
// Weights use Glorot-uniform initialisation and biases start at zero.
func NewNetwork(inputs int, hidden []int, rng *rand.Rand) *Network {
	n := &Network{Inputs: inputs}
	in := inputs
	for _, units := range hidden {
		n.Layers = append(n.Layers, newLayer(in, units, ActivationReLU, rng))
		in = units
	}
	n.Layers = append(n.Layers, newLayer(in, 1, ActivationLinear, rng))
	return n
}

func newLayer(in, units int, activation string, rng *rand.Rand) Layer {
	limit := math.Sqrt(6.0 / float64(in+units))
	weights := make([]float64, in*units)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * limit
	}
	return Layer{
		Inputs:     in,
		Units:      units,
		Activation: activation,
		Weights:    weights,
		Bias:       make([]float64, units),
	}
}

// Validate checks that layer shapes chain together
func (n *Network) Validate() error {
	if n == nil || len(n.Layers) == 0 {
		return fmt.Errorf("network has no layers")
	}
	in := n.Inputs
	for i, l := range n.Layers {
		if l.Inputs != in {
			return fmt.Errorf("layer %d expects %d inputs, previous layer yields %d", i, l.Inputs, in)
		}
		if len(l.Weights) != l.Inputs*l.Units || len(l.Bias) != l.Units {
			return fmt.Errorf("layer %d has inconsistent parameter sizes", i)
		}
		if l.Activation != ActivationReLU && l.Activation != ActivationLinear {
			return fmt.Errorf("layer %d has unknown activation %q", i, l.Activation)
		}
		in = l.Units
	}
	if in != 1 {
		return fmt.Errorf("output layer has %d units, want 1", in)
	}
	return nil
}

// Architecture summarises the layers
func (n *Network) Architecture() []LayerInfo {
	out := make([]LayerInfo, 0, len(n.Layers))
	for _, l := range n.Layers {
		out = append(out, LayerInfo{Type: "Dense", Units: l.Units, Activation: l.Activation})
	}
	return out
}

// DefaultArchitecture describes the network NewNetwork builds for hidden
func DefaultArchitecture(hidden []int) []LayerInfo {
	out := make([]LayerInfo, 0, len(hidden)+1)
	for _, units := range hidden {
		out = append(out, LayerInfo{Type: "Dense", Units: units, Activation: ActivationReLU})
	}
	return append(out, LayerInfo{Type: "Dense", Units: 1, Activation: ActivationLinear})
}

// Clone returns a deep copy
func (n *Network) Clone() *Network {
	c := &Network{Inputs: n.Inputs, Layers: make([]Layer, len(n.Layers))}
	for i, l := range n.Layers {
		c.Layers[i] = Layer{
			Inputs:     l.Inputs,
			Units:      l.Units,
			Activation: l.Activation,
			Weights:    append([]float64(nil), l.Weights...),
			Bias:       append([]float64(nil), l.Bias...),
		}
	}
	return c
}

// copyFrom overwrites the parameters in place, keeping the backing slices
func (n *Network) copyFrom(src *Network) {
	for i := range n.Layers {
		copy(n.Layers[i].Weights, src.Layers[i].Weights)
		copy(n.Layers[i].Bias, src.Layers[i].Bias)
	}
}

// forwardPass holds the pre-activations and activations of one batch.
// activations[0] is the input batch.
type forwardPass struct {
	pre         []*mat.Dense
	activations []*mat.Dense
}

func (n *Network) forward(x *mat.Dense) forwardPass {
	rows, _ := x.Dims()
	fp := forwardPass{activations: []*mat.Dense{x}}
	a := x
	for _, l := range n.Layers {
		w := mat.NewDense(l.Inputs, l.Units, l.Weights)
		z := mat.NewDense(rows, l.Units, nil)
		z.Mul(a, w)
		for r := 0; r < rows; r++ {
			row := z.RawRowView(r)
			for c := range row {
				row[c] += l.Bias[c]
			}
		}
		fp.pre = append(fp.pre, z)

		out := z
		if l.Activation == ActivationReLU {
			out = mat.DenseCopyOf(z)
			out.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, out)
		}
		fp.activations = append(fp.activations, out)
		a = out
	}
	return fp
}

// PredictBatch runs the forward pass on every row of x
func (n *Network) PredictBatch(x *mat.Dense) []float64 {
	fp := n.forward(x)
	out := fp.activations[len(fp.activations)-1]
	return mat.Col(nil, 0, out)
}

// Predict runs the forward pass on one feature vector
func (n *Network) Predict(features []float64) (float64, error) {
	if len(features) != n.Inputs {
		return 0, fmt.Errorf("expected %d features, got %d", n.Inputs, len(features))
	}
	x := mat.NewDense(1, n.Inputs, append([]float64(nil), features...))
	return n.PredictBatch(x)[0], nil
}

// gradients holds one gradient slice per parameter slice, in layer order
type gradients struct {
	weights [][]float64
	bias    [][]float64
}

// backward computes mean-squared-error gradients for the batch and returns the batch loss and MAE
func (n *Network) backward(x *mat.Dense, y []float64) (gradients, float64, float64) {
	fp := n.forward(x)
	rows, _ := x.Dims()
	output := fp.activations[len(fp.activations)-1]

	delta := mat.NewDense(rows, 1, nil)
	var loss, mae float64
	for r := 0; r < rows; r++ {
		diff := output.At(r, 0) - y[r]
		loss += diff * diff
		mae += math.Abs(diff)
		delta.Set(r, 0, 2*diff/float64(rows))
	}
	loss /= float64(rows)
	mae /= float64(rows)

	g := gradients{
		weights: make([][]float64, len(n.Layers)),
		bias:    make([][]float64, len(n.Layers)),
	}
	for li := len(n.Layers) - 1; li >= 0; li-- {
		l := n.Layers[li]
		prev := fp.activations[li]

		gw := mat.NewDense(l.Inputs, l.Units, nil)
		gw.Mul(prev.T(), delta)
		g.weights[li] = gw.RawMatrix().Data

		gb := make([]float64, l.Units)
		for r := 0; r < rows; r++ {
			row := delta.RawRowView(r)
			for c := range row {
				gb[c] += row[c]
			}
		}
		g.bias[li] = gb

		if li == 0 {
			break
		}
		w := mat.NewDense(l.Inputs, l.Units, l.Weights)
		next := mat.NewDense(rows, l.Inputs, nil)
		next.Mul(delta, w.T())
		pre := fp.pre[li-1]
		next.Apply(func(r, c int, v float64) float64 {
			if pre.At(r, c) <= 0 {
				return 0
			}
			return v
		}, next)
		delta = next
	}
	return g, loss, mae
}
