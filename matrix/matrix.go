package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const epsilon = 2.220446049250313e-16

// Pinv computes the Moore-Penrose pseudo-inverse of a and returns it.
// Unlike a direct inverse it is well defined for singular and non-square
// matrices. It fails with error if the SVD factorization of a fails.
func Pinv(a mat.Matrix) (*mat.Dense, error) {
	pinv, _, _, err := PinvDet(a)
	return pinv, err
}

// PinvDet computes the pseudo-inverse of a together with the log
// pseudo-determinant (sum of logs of the non-zero singular values) and the
// numerical rank of a. Singular values below epsilon * max(rows, cols) * sigma_max
// are treated as zero.
func PinvDet(a mat.Matrix) (pinv *mat.Dense, logdet float64, rank int, err error) {
	r, c := a.Dims()

	var svd mat.SVD
	ok := svd.Factorize(a, mat.SVDThin)
	if !ok {
		return nil, 0, 0, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	v := new(mat.Dense)
	svd.UTo(u)
	svd.VTo(v)

	vals := svd.Values(nil)
	if len(vals) == 0 {
		return mat.NewDense(c, r, nil), 0, 0, nil
	}

	tol := epsilon * float64(max(r, c)) * vals[0]
	for i := range vals {
		if vals[i] > tol {
			logdet += math.Log(vals[i])
			rank++
			vals[i] = 1.0 / vals[i]
			continue
		}
		vals[i] = 0.0
	}

	d := mat.NewDiagDense(len(vals), vals)

	vd := new(mat.Dense)
	vd.Mul(v, d)
	pinv = new(mat.Dense)
	pinv.Mul(vd, u.T())

	return pinv, logdet, rank, nil
}

// ToSym symmetrizes square matrix m into a SymDense by averaging each
// off-diagonal pair. It returns error if m is not square.
func ToSym(m mat.Matrix) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("matrix must be square: [%d x %d]", r, c)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s, nil
}

// HasNaN returns true if any element of m is NaN.
// It panics if m is nil.
func HasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}

	return false
}

// HasInf returns true if any element of m is infinite.
// It panics if m is nil.
func HasInf(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsInf(m.At(i, j), 0) {
				return true
			}
		}
	}

	return false
}
