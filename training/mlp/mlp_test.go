package mlp

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"oil-forecaster/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type recordingSink struct {
	events []models.ProgressEvent
}

func (s *recordingSink) Append(event models.ProgressEvent) error {
	s.events = append(s.events, event)
	return nil
}

// linearData returns n standardised rows with y = 2a - b + 3
func linearData(n int, seed uint64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y[i] = 2*a - b + 3
	}
	return x, y
}

func TestNewNetwork(t *testing.T) {
	net := NewNetwork(6, []int{64, 32}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, net.Validate())
	assert.Equal(t, 6, net.Inputs)
	require.Len(t, net.Layers, 3)
	assert.Equal(t, DefaultArchitecture([]int{64, 32}), net.Architecture())
	assert.Equal(t, ActivationLinear, net.Layers[2].Activation)
	assert.Equal(t, 1, net.Layers[2].Units)
}

func TestNetwork_Validate(t *testing.T) {
	net := NewNetwork(2, []int{3}, rand.New(rand.NewPCG(1, 2)))

	broken := net.Clone()
	broken.Layers[1].Inputs = 4
	assert.Error(t, broken.Validate())

	broken = net.Clone()
	broken.Layers[0].Bias = nil
	assert.Error(t, broken.Validate())

	broken = net.Clone()
	broken.Layers[0].Activation = "tanh"
	assert.Error(t, broken.Validate())

	var empty *Network
	assert.Error(t, empty.Validate())
}

func TestNetwork_CloneIsDeep(t *testing.T) {
	net := NewNetwork(2, []int{3}, rand.New(rand.NewPCG(1, 2)))
	clone := net.Clone()
	clone.Layers[0].Weights[0] += 1
	assert.NotEqual(t, net.Layers[0].Weights[0], clone.Layers[0].Weights[0])
}

func TestNetwork_Predict(t *testing.T) {
	net := NewNetwork(3, []int{4}, rand.New(rand.NewPCG(3, 4)))
	x := mat.NewDense(2, 3, []float64{1, 2, 3, -1, 0, 1})

	batch := net.PredictBatch(x)
	require.Len(t, batch, 2)

	single, err := net.Predict([]float64{-1, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, batch[1], single, 1e-12)

	_, err = net.Predict([]float64{1})
	assert.Error(t, err)
}

func TestNetwork_GradientsMatchNumeric(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	net := NewNetwork(3, []int{4}, rng)
	x := mat.NewDense(5, 3, nil)
	y := make([]float64, 5)
	for i := 0; i < 5; i++ {
		for j := 0; j < 3; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
		y[i] = rng.NormFloat64()
	}

	grads, _, _ := net.backward(x, y)
	loss := func() float64 {
		pred := net.PredictBatch(x)
		var s float64
		for i, p := range pred {
			s += (p - y[i]) * (p - y[i])
		}
		return s / float64(len(pred))
	}

	const eps = 1e-6
	for li := range net.Layers {
		for j := range net.Layers[li].Weights {
			orig := net.Layers[li].Weights[j]
			net.Layers[li].Weights[j] = orig + eps
			up := loss()
			net.Layers[li].Weights[j] = orig - eps
			down := loss()
			net.Layers[li].Weights[j] = orig
			assert.InDelta(t, (up-down)/(2*eps), grads.weights[li][j], 1e-5, "layer %d weight %d", li, j)
		}
		for j := range net.Layers[li].Bias {
			orig := net.Layers[li].Bias[j]
			net.Layers[li].Bias[j] = orig + eps
			up := loss()
			net.Layers[li].Bias[j] = orig - eps
			down := loss()
			net.Layers[li].Bias[j] = orig
			assert.InDelta(t, (up-down)/(2*eps), grads.bias[li][j], 1e-5, "layer %d bias %d", li, j)
		}
	}
}

func TestTrainer_FitLearnsLinearTarget(t *testing.T) {
	x, y := linearData(300, 11)
	trainer := NewTrainer(Params{
		Epochs:       60,
		BatchSize:    16,
		LearningRate: 0.01,
		Patience:     60,
		HiddenLayers: []int{8},
		Seed:         7,
	})
	sink := &recordingSink{}

	net, history, err := trainer.Fit(context.Background(), x, y, sink)
	require.NoError(t, err)
	require.NoError(t, net.Validate())

	require.Len(t, history.Epochs, 60)
	require.Len(t, sink.events, 60)
	for i, ev := range sink.events {
		assert.Equal(t, i+1, ev.Iteration)
		assert.Equal(t, models.JobStatusTraining, ev.Status)
	}
	assert.Less(t, history.Epochs[59].ValLoss, history.Epochs[0].ValLoss)
	assert.Less(t, history.Epochs[history.BestEpoch-1].ValLoss, 1.0)
	assert.Equal(t, history.Epochs[59], history.Last())
}

func TestTrainer_EarlyStopping(t *testing.T) {
	x, y := linearData(60, 3)
	trainer := NewTrainer(Params{
		Epochs:       500,
		BatchSize:    8,
		LearningRate: 0.05,
		Patience:     2,
		HiddenLayers: []int{4},
		Seed:         1,
	})

	_, history, err := trainer.Fit(context.Background(), x, y, nil)
	require.NoError(t, err)
	assert.True(t, history.Stopped)
	assert.Less(t, len(history.Epochs), 500)
	assert.Equal(t, len(history.Epochs)-2, history.BestEpoch)
}

func TestTrainer_Deterministic(t *testing.T) {
	x, y := linearData(80, 9)
	params := Params{Epochs: 5, BatchSize: 16, LearningRate: 0.01, Patience: 5, HiddenLayers: []int{4}, Seed: 3}

	a, _, err := NewTrainer(params).Fit(context.Background(), x, y, nil)
	require.NoError(t, err)
	b, _, err := NewTrainer(params).Fit(context.Background(), x, y, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Layers, b.Layers)
}

func TestTrainer_FitErrors(t *testing.T) {
	trainer := NewTrainer(Params{Epochs: 3})

	x, y := linearData(10, 1)
	_, _, err := trainer.Fit(context.Background(), x, y[:5], nil)
	assert.Error(t, err)

	x, y = linearData(1, 1)
	_, _, err = trainer.Fit(context.Background(), x, y, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x, y = linearData(10, 1)
	_, _, err = trainer.Fit(ctx, x, y, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTrainer_Defaults(t *testing.T) {
	params := NewTrainer(Params{}).Params()
	def := DefaultParams()
	assert.Equal(t, def.Epochs, params.Epochs)
	assert.Equal(t, def.BatchSize, params.BatchSize)
	assert.Equal(t, def.HiddenLayers, params.HiddenLayers)
	assert.Equal(t, def.ValidationFraction, params.ValidationFraction)
}

func TestStandardScaler(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	s := FitScaler(x)

	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")

	out, err := s.Transform(x)
	require.NoError(t, err)
	assert.InDelta(t, (1-2.5)/math.Sqrt(1.25), out.At(0, 0), 1e-12)
	assert.InDelta(t, 0, out.At(2, 1), 1e-12)

	row, err := s.TransformRow([]float64{4, 6})
	require.NoError(t, err)
	assert.InDelta(t, out.At(3, 0), row[0], 1e-12)
	assert.InDelta(t, 1, row[1], 1e-12)

	_, err = s.TransformRow([]float64{1})
	assert.Error(t, err)
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}
