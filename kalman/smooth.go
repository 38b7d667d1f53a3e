package kalman

import (
	"gonum.org/v1/gonum/mat"

	kaxman "github.com/tingiskhan/kaxman"
	"github.com/tingiskhan/kaxman/estimate"
	"github.com/tingiskhan/kaxman/matrix"
)

// SmoothResult holds the outputs of a smoothing pass. The smoothed sequence
// is index aligned with the measurement sequence; the log-likelihood is
// carried over unchanged from the forward pass.
type SmoothResult struct {
	// Smoothed are the estimates incorporating all measurements
	Smoothed []kaxman.Estimate
	// LogLikelihood is the total marginal log-likelihood of the measurement sequence
	LogLikelihood float64
}

// Smooth implements the Rauch-Tung-Striebel smoothing algorithm. It first
// runs the forward filtering pass over ys, then recurses backwards from the
// last filtered estimate (which has no future information to incorporate):
//
//	A = Pf[t]*F[t+1]'*pinv(Pp[t+1])
//	xs[t] = xf[t] + A*(xs[t+1] - xp[t+1])
//	Ps[t] = Pf[t] + A*(Ps[t+1] - Pp[t+1])*A'
//
// A state dependent transition matrix is resolved with the filtered mean.
// Same input contract as Filter.
func (k *KF) Smooth(ys []mat.Vector) (*SmoothResult, error) {
	fr, err := k.Filter(ys)
	if err != nil {
		return nil, err
	}

	sx := make([]kaxman.Estimate, len(ys))
	sx[len(ys)-1] = fr.Filtered[len(ys)-1]

	for t := len(ys) - 2; t >= 0; t-- {
		xf := fr.Filtered[t].Val()
		pf := fr.Filtered[t].Cov()
		xp := fr.Predicted[t+1].Val()
		pp := fr.Predicted[t+1].Cov()

		f, err := k.m.StateMatrix(t+1, xf)
		if err != nil {
			return nil, err
		}

		ppInv, err := matrix.Pinv(pp)
		if err != nil {
			return nil, err
		}

		// A = Pf*F'*Pp^+
		a := new(mat.Dense)
		a.Mul(pf, f.T())
		a.Mul(a, ppInv)

		// xf + A*(xs - xp)
		dx := new(mat.VecDense)
		dx.SubVec(sx[t+1].Val(), xp)
		x := new(mat.VecDense)
		x.MulVec(a, dx)
		x.AddVec(xf, x)

		// Pf + A*(Ps - Pp)*A'
		dp := new(mat.Dense)
		dp.Sub(sx[t+1].Cov(), pp)
		apa := new(mat.Dense)
		apa.Mul(a, dp)
		apa.Mul(apa, a.T())
		p := new(mat.Dense)
		p.Add(pf, apa)

		pSym, err := matrix.ToSym(p)
		if err != nil {
			return nil, err
		}

		e, err := estimate.NewBaseWithCov(x, pSym)
		if err != nil {
			return nil, err
		}
		sx[t] = e
	}

	return &SmoothResult{
		Smoothed:      sx,
		LogLikelihood: fr.LogLikelihood,
	}, nil
}
