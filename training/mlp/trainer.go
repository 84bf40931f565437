package mlp

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"oil-forecaster/core/models"

	"gonum.org/v1/gonum/mat"
)

// Params configures a training run
type Params struct {
	Epochs             int
	BatchSize          int
	LearningRate       float64
	Patience           int
	HiddenLayers       []int
	ValidationFraction float64
	Seed               uint64
}

// DefaultParams mirrors the reference Keras setup: dense 64-32-1, Adam(1e-3),
// batch 32, 200 epochs, early stopping with patience 20, 20% validation split.
func DefaultParams() Params {
	return Params{
		Epochs:             200,
		BatchSize:          32,
		LearningRate:       0.001,
		Patience:           20,
		HiddenLayers:       []int{64, 32},
		ValidationFraction: 0.2,
		Seed:               42,
	}
}

// EpochLog is the outcome of one epoch
type EpochLog struct {
	Epoch   int
	Loss    float64
	ValLoss float64
	MAE     float64
	ValMAE  float64
}

// History is the per-epoch record of a training run
type History struct {
	Epochs    []EpochLog
	BestEpoch int
	Stopped   bool // true when early stopping halted the run
}

// Last returns the final epoch log
func (h *History) Last() EpochLog {
	if h == nil || len(h.Epochs) == 0 {
		return EpochLog{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Trainer fits a Network with Adam on mean squared error
type Trainer struct {
	params Params
}

// NewTrainer creates a trainer; zero fields in params fall back to DefaultParams
func NewTrainer(params Params) *Trainer {
	def := DefaultParams()
	if params.Epochs <= 0 {
		params.Epochs = def.Epochs
	}
	if params.BatchSize <= 0 {
		params.BatchSize = def.BatchSize
	}
	if params.LearningRate <= 0 {
		params.LearningRate = def.LearningRate
	}
	if params.Patience <= 0 {
		params.Patience = def.Patience
	}
	if len(params.HiddenLayers) == 0 {
		params.HiddenLayers = def.HiddenLayers
	}
	if params.ValidationFraction <= 0 || params.ValidationFraction >= 1 {
		params.ValidationFraction = def.ValidationFraction
	}
	return &Trainer{params: params}
}

// Params returns the effective parameters
func (t *Trainer) Params() Params {
	return t.params
}

// Fit trains a new network on the already-normalised x and targets y.
//
// The last ValidationFraction of the rows is held out for validation, one
// progress event is appended to sink per epoch, and training halts once the
// validation loss has not improved for Patience epochs. The returned network
// carries the weights of the best validation epoch.
func (t *Trainer) Fit(ctx context.Context, x *mat.Dense, y []float64, sink models.ProgressSink) (*Network, *History, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, nil, fmt.Errorf("feature rows (%d) and targets (%d) differ", rows, len(y))
	}
	split := int(float64(rows) * (1 - t.params.ValidationFraction))
	if split < 1 || split >= rows {
		return nil, nil, fmt.Errorf("need at least one training and one validation row, got %d rows", rows)
	}

	trainX := mat.DenseCopyOf(x.Slice(0, split, 0, cols))
	trainY := y[:split]
	valX := mat.DenseCopyOf(x.Slice(split, rows, 0, cols))
	valY := y[split:]

	rng := rand.New(rand.NewPCG(t.params.Seed, t.params.Seed^0x9e3779b97f4a7c15))
	net := NewNetwork(cols, t.params.HiddenLayers, rng)
	opt := newAdam(net, t.params.LearningRate)

	history := &History{}
	best := net.Clone()
	bestLoss := math.Inf(1)
	wait := 0

	order := make([]int, split)
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= t.params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, history, err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum, maeSum float64
		for start := 0; start < split; start += t.params.BatchSize {
			end := min(start+t.params.BatchSize, split)
			bx, by := gatherBatch(trainX, trainY, order[start:end])
			grads, loss, mae := net.backward(bx, by)
			opt.step(net, grads)
			n := float64(end - start)
			lossSum += loss * n
			maeSum += mae * n
		}

		valLoss, valMAE := evaluate(net, valX, valY)
		epochLog := EpochLog{
			Epoch:   epoch,
			Loss:    lossSum / float64(split),
			ValLoss: valLoss,
			MAE:     maeSum / float64(split),
			ValMAE:  valMAE,
		}
		history.Epochs = append(history.Epochs, epochLog)

		if sink != nil {
			if err := sink.Append(models.ProgressEvent{
				Iteration: epochLog.Epoch,
				Loss:      epochLog.Loss,
				ValLoss:   epochLog.ValLoss,
				MAE:       epochLog.MAE,
				ValMAE:    epochLog.ValMAE,
				Status:    models.JobStatusTraining,
			}); err != nil {
				return nil, history, fmt.Errorf("report epoch %d: %w", epoch, err)
			}
		}

		if math.IsNaN(valLoss) || math.IsInf(valLoss, 0) {
			return nil, history, fmt.Errorf("training diverged at epoch %d", epoch)
		}
		if valLoss < bestLoss {
			bestLoss = valLoss
			best.copyFrom(net)
			history.BestEpoch = epoch
			wait = 0
			continue
		}
		wait++
		if wait >= t.params.Patience {
			history.Stopped = true
			break
		}
	}

	net.copyFrom(best)
	return net, history, nil
}

func gatherBatch(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	bx := mat.NewDense(len(idx), cols, nil)
	by := make([]float64, len(idx))
	for i, r := range idx {
		bx.SetRow(i, x.RawRowView(r))
		by[i] = y[r]
	}
	return bx, by
}

func evaluate(net *Network, x *mat.Dense, y []float64) (float64, float64) {
	pred := net.PredictBatch(x)
	var mse, mae float64
	for i, p := range pred {
		d := p - y[i]
		mse += d * d
		mae += math.Abs(d)
	}
	n := float64(len(pred))
	return mse / n, mae / n
}

// adam implements the Adam optimiser with Keras defaults
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mw, vw, mb, vb        [][]float64
}

func newAdam(net *Network, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, l := range net.Layers {
		a.mw = append(a.mw, make([]float64, len(l.Weights)))
		a.vw = append(a.vw, make([]float64, len(l.Weights)))
		a.mb = append(a.mb, make([]float64, len(l.Bias)))
		a.vb = append(a.vb, make([]float64, len(l.Bias)))
	}
	return a
}

func (a *adam) step(net *Network, g gradients) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	lr := a.lr * math.Sqrt(c2) / c1
	for i := range net.Layers {
		a.update(net.Layers[i].Weights, g.weights[i], a.mw[i], a.vw[i], lr)
		a.update(net.Layers[i].Bias, g.bias[i], a.mb[i], a.vb[i], lr)
	}
}

func (a *adam) update(params, grads, m, v []float64, lr float64) {
	for j, gj := range grads {
		m[j] = a.beta1*m[j] + (1-a.beta1)*gj
		v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
		params[j] -= lr * m[j] / (math.Sqrt(v[j]) + a.eps)
	}
}
