package kalman

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/tingiskhan/kaxman/estimate"
	"github.com/tingiskhan/kaxman/rnd"
	"github.com/tingiskhan/kaxman/ssm"
)

var (
	// 2 state (position, velocity), 1 output model
	okModel *ssm.SSM
	// scalar random walk model: F=1, Q=0.01, H=1, R=0.1, x0 ~ N(0, 1)
	rwModel *ssm.SSM
)

func setup() {
	initMean := mat.NewVecDense(2, []float64{1.0, 3.0})
	initCov := mat.NewSymDense(2, []float64{0.25, 0.0, 0.0, 0.25})

	okModel, _ = ssm.New(initMean, initCov, ssm.Config{
		Transition:     ssm.Static(mat.NewDense(2, 2, []float64{1.0, 1.0, 0.0, 1.0})),
		TransitionCov:  ssm.Static(mat.NewDense(2, 2, []float64{0.01, 0.0, 0.0, 0.01})),
		Observation:    ssm.Static(mat.NewDense(1, 2, []float64{1.0, 0.0})),
		ObservationCov: ssm.Static(mat.NewDense(1, 1, []float64{0.25})),
	})

	rwModel, _ = ssm.New(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}), ssm.Config{
		Transition:     ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		TransitionCov:  ssm.Static(mat.NewDense(1, 1, []float64{0.01})),
		Observation:    ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		ObservationCov: ssm.Static(mat.NewDense(1, 1, []float64{0.1})),
	})
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func initEstimate(t *testing.T, m *ssm.SSM) *estimate.Base {
	ic := m.InitCond()
	est, err := estimate.NewBaseWithCov(ic.State(), ic.Cov())
	assert.NoError(t, err)

	return est
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel)
	assert.NoError(err)
	assert.NotNil(f)

	f, err = New(nil)
	assert.Error(err)
	assert.Nil(f)

	f, err = New(okModel, WithInflation(1e6))
	assert.NoError(err)
	assert.NotNil(f)

	f, err = New(okModel, WithInflation(-1.0))
	assert.Error(err)
	assert.Nil(f)
}

func TestPredict(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel)
	assert.NoError(err)

	pred, err := f.Predict(initEstimate(t, okModel), 0)
	assert.NoError(err)
	assert.NotNil(pred)

	// x' = F*x: [1+3, 3]
	assert.InDelta(4.0, pred.Val().AtVec(0), 1e-12)
	assert.InDelta(3.0, pred.Val().AtVec(1), 1e-12)

	// P' = F*P*F' + Q
	assert.InDelta(0.51, pred.Cov().At(0, 0), 1e-12)
	assert.InDelta(0.25, pred.Cov().At(0, 1), 1e-12)
	assert.InDelta(0.26, pred.Cov().At(1, 1), 1e-12)
}

func TestPredictOffset(t *testing.T) {
	assert := assert.New(t)

	cfg := ssm.Config{
		Transition:       ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		TransitionCov:    ssm.Static(mat.NewDense(1, 1, []float64{0.01})),
		Observation:      ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		ObservationCov:   ssm.Static(mat.NewDense(1, 1, []float64{0.1})),
		TransitionOffset: ssm.StaticVec(mat.NewVecDense(1, []float64{2.5})),
	}
	m, err := ssm.New(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}), cfg)
	assert.NoError(err)

	f, err := New(m)
	assert.NoError(err)

	pred, err := f.Predict(initEstimate(t, m), 0)
	assert.NoError(err)
	assert.InDelta(2.5, pred.Val().AtVec(0), 1e-12)
}

func TestPredictNoiseTransform(t *testing.T) {
	assert := assert.New(t)

	// scalar noise driving a two dimensional state through G
	cfg := ssm.Config{
		Transition:     ssm.Static(mat.NewDense(2, 2, []float64{1.0, 1.0, 0.0, 1.0})),
		TransitionCov:  ssm.Static(mat.NewDense(1, 1, []float64{0.04})),
		Observation:    ssm.Static(mat.NewDense(1, 2, []float64{1.0, 0.0})),
		ObservationCov: ssm.Static(mat.NewDense(1, 1, []float64{0.25})),
		NoiseTransform: ssm.Static(mat.NewDense(2, 1, []float64{0.5, 1.0})),
	}
	m, err := ssm.New(mat.NewVecDense(2, []float64{1.0, 3.0}), mat.NewSymDense(2, []float64{0.25, 0.0, 0.0, 0.25}), cfg)
	assert.NoError(err)

	f, err := New(m)
	assert.NoError(err)

	pred, err := f.Predict(initEstimate(t, m), 0)
	assert.NoError(err)

	assert.InDelta(4.0, pred.Val().AtVec(0), 1e-12)
	assert.InDelta(3.0, pred.Val().AtVec(1), 1e-12)

	// P' = F*P*F' + G*Q*G'
	assert.InDelta(0.51, pred.Cov().At(0, 0), 1e-12)
	assert.InDelta(0.27, pred.Cov().At(0, 1), 1e-12)
	assert.InDelta(0.29, pred.Cov().At(1, 1), 1e-12)

	// the full pass must run end to end with the non square transform
	sampled, err := f.Sample(rnd.NewStream(7), 10)
	assert.NoError(err)

	fr, err := f.Filter(sampled.Outputs)
	assert.NoError(err)
	assert.False(math.IsNaN(fr.LogLikelihood))

	sr, err := f.Smooth(sampled.Outputs)
	assert.NoError(err)
	assert.Equal(10, len(sr.Smoothed))
}

func TestUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel)
	assert.NoError(err)

	pred, err := f.Predict(initEstimate(t, okModel), 0)
	assert.NoError(err)

	up, err := f.Update(pred, mat.NewVecDense(1, []float64{4.2}), 0)
	assert.NoError(err)
	assert.NotNil(up)

	// the correction moves the mean towards the measurement and shrinks the variance
	assert.Greater(up.Val().AtVec(0), pred.Val().AtVec(0))
	assert.Less(up.Cov().At(0, 0), pred.Cov().At(0, 0))

	// invalid measurement
	up, err = f.Update(pred, mat.NewVecDense(3, nil), 0)
	assert.Error(err)
	assert.Nil(up)

	up, err = f.Update(pred, nil, 0)
	assert.Error(err)
	assert.Nil(up)
}

func TestUpdateAllMissing(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel)
	assert.NoError(err)

	pred, err := f.Predict(initEstimate(t, okModel), 0)
	assert.NoError(err)

	// an all missing measurement makes the update a no-op, exactly
	up, err := f.Update(pred, mat.NewVecDense(1, []float64{math.NaN()}), 0)
	assert.NoError(err)
	assert.True(mat.Equal(pred.Val(), up.Val()))
	assert.True(mat.Equal(pred.Cov(), up.Cov()))
}

func TestFilter(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel)
	assert.NoError(err)

	sampled, err := f.Sample(rnd.NewStream(11), 10)
	assert.NoError(err)

	res, err := f.Filter(sampled.Outputs)
	assert.NoError(err)
	assert.NotNil(res)

	assert.Equal(10, len(res.Predicted))
	assert.Equal(10, len(res.Filtered))
	assert.Equal(10, len(res.StepLogLikelihoods))

	// the total log-likelihood is the sum of the per step terms
	var sum float64
	for _, ll := range res.StepLogLikelihoods {
		sum += ll
	}
	assert.InDelta(sum, res.LogLikelihood, 1e-9)
	assert.False(math.IsNaN(res.LogLikelihood))
	assert.False(math.IsInf(res.LogLikelihood, 0))

	// empty measurement sequence
	res, err = f.Filter(nil)
	assert.Error(err)
	assert.Nil(res)

	// nil measurement
	res, err = f.Filter([]mat.Vector{nil})
	assert.Error(err)
	assert.Nil(res)
}

func TestFilterMissingScenario(t *testing.T) {
	assert := assert.New(t)

	f, err := New(rwModel)
	assert.NoError(err)

	ys := []mat.Vector{
		mat.NewVecDense(1, []float64{0.1}),
		mat.NewVecDense(1, []float64{0.3}),
		mat.NewVecDense(1, []float64{math.NaN()}),
		mat.NewVecDense(1, []float64{0.7}),
		mat.NewVecDense(1, []float64{0.9}),
	}

	res, err := f.Filter(ys)
	assert.NoError(err)

	// the fully missing step carries no information
	assert.InDelta(res.Predicted[2].Cov().At(0, 0), res.Filtered[2].Cov().At(0, 0), 1e-9)
	assert.InDelta(res.Predicted[2].Val().AtVec(0), res.Filtered[2].Val().AtVec(0), 1e-9)

	// and leaves more uncertainty than its observed neighbours
	assert.Greater(res.Filtered[2].Cov().At(0, 0), res.Filtered[1].Cov().At(0, 0))
	assert.Greater(res.Filtered[2].Cov().At(0, 0), res.Filtered[3].Cov().At(0, 0))

	assert.False(math.IsNaN(res.LogLikelihood))
	assert.False(math.IsInf(res.LogLikelihood, 0))
}

func TestFilterMultiOutput(t *testing.T) {
	assert := assert.New(t)

	// more outputs than states
	m, err := ssm.New(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}), ssm.Config{
		Transition:     ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		TransitionCov:  ssm.Static(mat.NewDense(1, 1, []float64{0.01})),
		Observation:    ssm.Static(mat.NewDense(2, 1, []float64{1.0, 1.0})),
		ObservationCov: ssm.Static(mat.NewDense(2, 2, []float64{0.1, 0.0, 0.0, 0.2})),
	})
	assert.NoError(err)

	f, err := New(m)
	assert.NoError(err)

	ys := []mat.Vector{
		mat.NewVecDense(2, []float64{0.1, 0.2}),
		mat.NewVecDense(2, []float64{0.3, 0.2}),
		mat.NewVecDense(2, []float64{0.2, 0.4}),
	}

	res, err := f.Filter(ys)
	assert.NoError(err)
	assert.Equal(3, len(res.Filtered))
	assert.False(math.IsNaN(res.LogLikelihood))
	assert.False(math.IsInf(res.LogLikelihood, 0))

	sr, err := f.Smooth(ys)
	assert.NoError(err)
	assert.Equal(3, len(sr.Smoothed))
	assert.InDelta(res.LogLikelihood, sr.LogLikelihood, 1e-12)
}

func TestFilterPartialMissing(t *testing.T) {
	assert := assert.New(t)

	// one state observed through two outputs
	m, err := ssm.New(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}), ssm.Config{
		Transition:     ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		TransitionCov:  ssm.Static(mat.NewDense(1, 1, []float64{0.01})),
		Observation:    ssm.Static(mat.NewDense(2, 1, []float64{1.0, 1.0})),
		ObservationCov: ssm.Static(mat.NewDense(2, 2, []float64{0.1, 0.0, 0.0, 0.2})),
	})
	assert.NoError(err)

	f, err := New(m)
	assert.NoError(err)

	full, err := f.Filter([]mat.Vector{mat.NewVecDense(2, []float64{0.1, 0.2})})
	assert.NoError(err)

	masked, err := f.Filter([]mat.Vector{mat.NewVecDense(2, []float64{0.1, math.NaN()})})
	assert.NoError(err)

	// masking a dimension can only weakly decrease the information gained
	assert.GreaterOrEqual(masked.Filtered[0].Cov().At(0, 0), full.Filtered[0].Cov().At(0, 0))
}

func TestFilterDivergence(t *testing.T) {
	assert := assert.New(t)

	// transition cov turning NaN mid sequence must surface as an error,
	// not propagate silently
	m, err := ssm.New(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}), ssm.Config{
		Transition: ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		TransitionCov: ssm.TimeVarying(func(t int) mat.Matrix {
			if t > 0 {
				return mat.NewDense(1, 1, []float64{math.NaN()})
			}
			return mat.NewDense(1, 1, []float64{0.01})
		}),
		Observation:    ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		ObservationCov: ssm.Static(mat.NewDense(1, 1, []float64{0.1})),
	})
	assert.NoError(err)

	f, err := New(m)
	assert.NoError(err)

	ys := []mat.Vector{
		mat.NewVecDense(1, []float64{0.1}),
		mat.NewVecDense(1, []float64{0.2}),
	}
	res, err := f.Filter(ys)
	assert.Error(err)
	assert.Nil(res)
}

func TestFilterShapeMismatch(t *testing.T) {
	assert := assert.New(t)

	m, err := ssm.New(mat.NewVecDense(1, nil), mat.NewSymDense(1, []float64{1.0}), ssm.Config{
		Transition: ssm.TimeVarying(func(t int) mat.Matrix {
			if t > 1 {
				return mat.NewDense(2, 2, nil)
			}
			return mat.NewDense(1, 1, []float64{1.0})
		}),
		TransitionCov:  ssm.Static(mat.NewDense(1, 1, []float64{0.01})),
		Observation:    ssm.Static(mat.NewDense(1, 1, []float64{1.0})),
		ObservationCov: ssm.Static(mat.NewDense(1, 1, []float64{0.1})),
	})
	assert.NoError(err)

	f, err := New(m)
	assert.NoError(err)

	ys := []mat.Vector{
		mat.NewVecDense(1, []float64{0.1}),
		mat.NewVecDense(1, []float64{0.2}),
		mat.NewVecDense(1, []float64{0.3}),
	}
	res, err := f.Filter(ys)
	assert.Error(err)
	assert.Nil(res)
}
