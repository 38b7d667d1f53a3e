package kalman

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/tingiskhan/kaxman/matrix"
)

const log2Pi = 1.8378770664093453

// logProb evaluates the log density of y under N(mean, cov). It uses the
// Cholesky backed distmv.Normal and falls back to a pseudo-inverse density
// restricted to the support of cov when cov has no Cholesky factor.
func logProb(y, mean *mat.VecDense, cov *mat.Dense) (float64, error) {
	sym, err := matrix.ToSym(cov)
	if err != nil {
		return 0, err
	}

	if dist, ok := distmv.NewNormal(vecData(mean), sym, nil); ok {
		return dist.LogProb(vecData(y)), nil
	}

	pinv, logdet, rank, err := matrix.PinvDet(sym)
	if err != nil {
		return 0, err
	}

	r := new(mat.VecDense)
	r.SubVec(y, mean)

	tmp := new(mat.VecDense)
	tmp.MulVec(pinv, r)
	quad := mat.Dot(r, tmp)

	return -0.5 * (float64(rank)*log2Pi + logdet + quad), nil
}

func vecData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}

	return data
}
