package kalman

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tingiskhan/kaxman/matrix"
	"github.com/tingiskhan/kaxman/noise"
	"github.com/tingiskhan/kaxman/rnd"
)

// SampleResult holds a simulated state trajectory and the matching noisy
// output trajectory, both of length equal to the requested horizon.
type SampleResult struct {
	// States is the latent state trajectory
	States []mat.Vector
	// Outputs is the observed output trajectory
	Outputs []mat.Vector
}

// Sample forward simulates horizon timesteps of the model:
//
//	x[t] = F[t]*x[t-1] + b[t] + G[t]*w[t]
//	y[t] = H[t]*x[t]   + d[t] + v[t]
//
// The initial state and every timestep's process and output noise are drawn
// from independent substreams of s, so trajectories are reproducible from
// the stream seed while the per step draws stay mutually independent.
// It returns error if s is nil or horizon is negative.
func (k *KF) Sample(s *rnd.Stream, horizon int) (*SampleResult, error) {
	if s == nil {
		return nil, fmt.Errorf("invalid random stream: %v", s)
	}
	if horizon < 0 {
		return nil, fmt.Errorf("invalid horizon: %d", horizon)
	}

	res := &SampleResult{
		States:  make([]mat.Vector, horizon),
		Outputs: make([]mat.Vector, horizon),
	}
	if horizon == 0 {
		return res, nil
	}

	_, ny, nz := k.m.SystemDims()

	ic := k.m.InitCond()
	init, err := noise.NewGaussian(vecData(ic.State()), ic.Cov(), s.At(0, rnd.Init))
	if err != nil {
		return nil, fmt.Errorf("failed to create initial state noise: %v", err)
	}
	x := init.Sample()

	for t := 0; t < horizon; t++ {
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
		h, err := k.m.OutputMatrix(t)
		if err != nil {
			return nil, err
		}
		r, err := k.m.OutputNoiseCov(t)
		if err != nil {
			return nil, err
		}
		d, err := k.m.OutputOffset(t)
		if err != nil {
			return nil, err
		}

		qSym, err := matrix.ToSym(q)
		if err != nil {
			return nil, err
		}
		w, err := noise.NewGaussian(make([]float64, nz), qSym, s.At(t, rnd.Process))
		if err != nil {
			return nil, fmt.Errorf("failed to create state noise at timestep %d: %v", t, err)
		}

		rSym, err := matrix.ToSym(r)
		if err != nil {
			return nil, err
		}
		v, err := noise.NewGaussian(make([]float64, ny), rSym, s.At(t, rnd.Observation))
		if err != nil {
			return nil, fmt.Errorf("failed to create output noise at timestep %d: %v", t, err)
		}

		// x = F*x + b + G*w
		xNext := new(mat.VecDense)
		xNext.MulVec(f, x)
		xNext.AddVec(xNext, b)
		gw := new(mat.VecDense)
		gw.MulVec(g, w.Sample())
		xNext.AddVec(xNext, gw)

		// y = H*x + d + v
		y := new(mat.VecDense)
		y.MulVec(h, xNext)
		y.AddVec(y, d)
		y.AddVec(y, v.Sample())

		res.States[t] = xNext
		res.Outputs[t] = y

		x = xNext
	}

	return res, nil
}
