// Package kalman implements a Kalman filter over a linear Gaussian state
// space model: forward filtering with integrated marginal log-likelihood,
// Rauch-Tung-Striebel smoothing and trajectory sampling. Partially missing
// observations are masked out via covariance inflation, so the recursion
// always runs on a full dimensional problem, and degenerate covariances are
// handled with the Moore-Penrose pseudo-inverse rather than raised as errors.
package kalman

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	kaxman "github.com/tingiskhan/kaxman"
	"github.com/tingiskhan/kaxman/estimate"
	"github.com/tingiskhan/kaxman/matrix"
	"github.com/tingiskhan/kaxman/ssm"
)

// DefaultInflation is the default variance inflation added to the diagonal
// of the output noise covariance at missing observation dimensions.
const DefaultInflation = 1e12

// KF is a Kalman filter
type KF struct {
	// m is KF system model
	m *ssm.SSM
	// inflation is the missing dimension variance inflation
	inflation float64
}

// Option configures a KF
type Option func(*KF)

// WithInflation sets the variance inflation used for missing observation dimensions.
func WithInflation(v float64) Option {
	return func(k *KF) {
		k.inflation = v
	}
}

// New creates new KF for the given model and returns it.
// It returns error if m is nil or the configured inflation is not positive.
func New(m *ssm.SSM, opts ...Option) (*KF, error) {
	if m == nil {
		return nil, fmt.Errorf("invalid model: %v", m)
	}

	k := &KF{
		m:         m,
		inflation: DefaultInflation,
	}

	for _, opt := range opts {
		opt(k)
	}

	if k.inflation <= 0 {
		return nil, fmt.Errorf("invalid inflation: %v", k.inflation)
	}

	return k, nil
}

// Model returns the KF system model
func (k *KF) Model() *ssm.SSM {
	return k.m
}

// Predict propagates estimate est one timestep forward through the
// transition model and returns the predicted estimate:
//
//	x' = F*x + b
//	P' = F*P*F' + G*Q*G'
//
// It returns error if any role fails to resolve at timestep t.
func (k *KF) Predict(est kaxman.Estimate, t int) (kaxman.Estimate, error) {
	x := est.Val()

	f, err := k.m.StateMatrix(t, x)
	if err != nil {
		return nil, err
	}
	q, err := k.m.StateNoiseCov(t)
	if err != nil {
		return nil, err
	}
	b, err := k.m.StateOffset(t)
	if err != nil {
		return nil, err
	}
	g, err := k.m.NoiseTransform(t)
	if err != nil {
		return nil, err
	}

	xNext := new(mat.VecDense)
	xNext.MulVec(f, x)
	xNext.AddVec(xNext, b)

	// F*P*F'
	cov := new(mat.Dense)
	cov.Mul(f, est.Cov())
	cov.Mul(cov, f.T())

	// G*Q*G'
	gq := new(mat.Dense)
	gq.Mul(g, q)
	gqg := new(mat.Dense)
	gqg.Mul(gq, g.T())
	cov.Add(cov, gqg)

	pNext, err := matrix.ToSym(cov)
	if err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(xNext, pNext)
}

// Update corrects predicted estimate est using the measurement y taken at
// timestep t and returns the corrected estimate. Missing dimensions of y
// carry the NaN sentinel and are masked out, so they contribute no
// information: when every dimension is missing the update is a no-op and
// the predicted estimate is returned unchanged. The Kalman gain is computed
// through the pseudo-inverse of the innovation covariance, so a singular
// innovation covariance is not an error.
func (k *KF) Update(est kaxman.Estimate, y mat.Vector, t int) (kaxman.Estimate, error) {
	_, ny, _ := k.m.SystemDims()
	if y == nil || y.Len() != ny {
		return nil, fmt.Errorf("invalid measurement supplied: %v", y)
	}

	h, err := k.m.OutputMatrix(t)
	if err != nil {
		return nil, err
	}
	r, err := k.m.OutputNoiseCov(t)
	if err != nil {
		return nil, err
	}

	ym, hm, rm := inflateMissing(missingMask(y), y, h, r, k.inflation)

	x := est.Val()
	p := est.Cov()

	// P*H'
	pht := new(mat.Dense)
	pht.Mul(p, hm.T())

	// S = H*P*H' + R
	s := new(mat.Dense)
	s.Mul(hm, pht)
	s.Add(s, rm)

	sPinv, err := matrix.Pinv(s)
	if err != nil {
		return nil, fmt.Errorf("failed to compute innovation cov pseudo-inverse: %v", err)
	}

	// K = P*H'*S^+
	gain := new(mat.Dense)
	gain.Mul(pht, sPinv)

	// innovation
	inn := new(mat.VecDense)
	inn.MulVec(hm, x)
	inn.SubVec(ym, inn)

	// x + K*inn
	xUp := new(mat.VecDense)
	xUp.MulVec(gain, inn)
	xUp.AddVec(x, xUp)

	// P - K*H*P
	khp := new(mat.Dense)
	khp.Mul(gain, hm)
	khp.Mul(khp, p)
	pUp := new(mat.Dense)
	pUp.Sub(p, khp)

	pSym, err := matrix.ToSym(pUp)
	if err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(xUp, pSym)
}

// FilterResult holds the outputs of a forward filtering pass. The predicted
// and filtered sequences are index aligned with the measurement sequence,
// and the total log-likelihood is the exact sum of the per step terms.
type FilterResult struct {
	// Predicted are the one step ahead predicted estimates
	Predicted []kaxman.Estimate
	// Filtered are the measurement corrected estimates
	Filtered []kaxman.Estimate
	// StepLogLikelihoods are the per timestep marginal log density terms
	StepLogLikelihoods []float64
	// LogLikelihood is the total marginal log-likelihood of the measurement sequence
	LogLikelihood float64
}

// Filter runs the forward filtering pass over the measurement sequence ys,
// starting from the model initial condition. At every timestep it predicts,
// accumulates the marginal log density of the (masked) measurement under
// the predictive output distribution, and updates. Missing measurement
// dimensions are flagged with NaN entries; partial missingness is supported.
// It returns error if ys is empty, if a measurement has the wrong size, or
// if the recursion produces a non-finite mean or covariance (divergence).
func (k *KF) Filter(ys []mat.Vector) (*FilterResult, error) {
	if len(ys) == 0 {
		return nil, fmt.Errorf("empty measurement sequence")
	}

	_, ny, _ := k.m.SystemDims()

	res := &FilterResult{
		Predicted:          make([]kaxman.Estimate, len(ys)),
		Filtered:           make([]kaxman.Estimate, len(ys)),
		StepLogLikelihoods: make([]float64, len(ys)),
	}

	ic := k.m.InitCond()
	cur, err := estimate.NewBaseWithCov(ic.State(), ic.Cov())
	if err != nil {
		return nil, err
	}

	var est kaxman.Estimate = cur
	for t, y := range ys {
		if y == nil || y.Len() != ny {
			return nil, fmt.Errorf("invalid measurement at timestep %d: %v", t, y)
		}

		pred, err := k.Predict(est, t)
		if err != nil {
			return nil, err
		}

		ll, err := k.stepLogProb(pred, y, t)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate measurement density at timestep %d: %v", t, err)
		}

		up, err := k.Update(pred, y, t)
		if err != nil {
			return nil, err
		}

		if matrix.HasNaN(up.Val()) || matrix.HasInf(up.Val()) ||
			matrix.HasNaN(up.Cov()) || matrix.HasInf(up.Cov()) {
			return nil, fmt.Errorf("numerical divergence at timestep %d", t)
		}

		res.Predicted[t] = pred
		res.Filtered[t] = up
		res.StepLogLikelihoods[t] = ll
		res.LogLikelihood += ll

		est = up
	}

	return res, nil
}

// stepLogProb evaluates the marginal log density of the masked measurement
// y under the predictive output distribution at timestep t. The output
// offset is zeroed at missing dimensions together with the masked H rows,
// so the inflated dimensions contribute a fixed, data independent term.
func (k *KF) stepLogProb(pred kaxman.Estimate, y mat.Vector, t int) (float64, error) {
	h, err := k.m.OutputMatrix(t)
	if err != nil {
		return 0, err
	}
	r, err := k.m.OutputNoiseCov(t)
	if err != nil {
		return 0, err
	}
	d, err := k.m.OutputOffset(t)
	if err != nil {
		return 0, err
	}

	miss := missingMask(y)
	ym, hm, rm := inflateMissing(miss, y, h, r, k.inflation)

	yMean := new(mat.VecDense)
	yMean.MulVec(hm, pred.Val())
	for i := range miss {
		if !miss[i] {
			yMean.SetVec(i, yMean.AtVec(i)+d.AtVec(i))
		}
	}

	// H*P*H' + R
	hp := new(mat.Dense)
	hp.Mul(hm, pred.Cov())
	yCov := new(mat.Dense)
	yCov.Mul(hp, hm.T())
	yCov.Add(yCov, rm)

	return logProb(ym, yMean, yCov)
}
