package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// missingMask flags the missing dimensions of measurement y. Missing
// entries carry the NaN sentinel; the mask is derived once per measurement
// and passed alongside the raw values.
func missingMask(y mat.Vector) []bool {
	miss := make([]bool, y.Len())
	for i := range miss {
		miss[i] = math.IsNaN(y.AtVec(i))
	}

	return miss
}

// inflateMissing masks the missing dimensions of the measurement problem:
// missing entries of y are replaced by zero, the matching rows of h are
// zeroed so they contribute nothing to the innovation, and the matching
// diagonal entries of r are inflated so the Kalman gain for those
// dimensions collapses to zero. The recursion then runs unbranched on the
// full dimensional masked problem whatever the missingness pattern.
func inflateMissing(miss []bool, y mat.Vector, h, r mat.Matrix, inflation float64) (ym *mat.VecDense, hm, rm *mat.Dense) {
	ny, nx := h.Dims()

	ym = mat.NewVecDense(ny, nil)
	hm = mat.NewDense(ny, nx, nil)
	rm = mat.NewDense(ny, ny, nil)
	rm.Copy(r)

	for i := 0; i < ny; i++ {
		if miss[i] {
			rm.Set(i, i, rm.At(i, i)+inflation)
			continue
		}

		ym.SetVec(i, y.AtVec(i))
		for j := 0; j < nx; j++ {
			hm.Set(i, j, h.At(i, j))
		}
	}

	return ym, hm, rm
}
