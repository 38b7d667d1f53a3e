package noise

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// sqrtCov is the SVD square root of cov, used when cov has no Cholesky factor
	sqrtCov *mat.Dense
	// rnd generates the standard normal draws pushed through sqrtCov
	rnd *rand.Rand
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
	// src is the source all samples are drawn from
	src rand.Source
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// All samples are drawn from src, so two Gaussians built on equally seeded
// sources produce identical draws. A singular covariance is not an error:
// sampling falls back to the SVD square root of cov when the Cholesky
// factorization fails. It returns error if the dimensions of mean and cov
// disagree or if cov cannot be factorized at all.
func NewGaussian(mean []float64, cov mat.Symmetric, src rand.Source) (*Gaussian, error) {
	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid dimensions, mean: %d, cov: %d x %d", len(mean), cov.SymmetricDim(), cov.SymmetricDim())
	}

	g := &Gaussian{
		mean: mean,
		cov:  cov,
		src:  src,
	}

	if err := g.Reset(); err != nil {
		return nil, err
	}

	return g, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	if g.dist != nil {
		r := g.dist.Rand(nil)
		return mat.NewVecDense(len(r), r)
	}

	n := len(g.mean)
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, g.rnd.NormFloat64())
	}

	out := mat.NewVecDense(n, nil)
	out.MulVec(g.sqrtCov, z)
	out.AddVec(out, mat.NewVecDense(n, g.mean))

	return out
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)

	return mean
}

// Reset re-creates the noise distribution from its mean, covariance and source.
// It returns error if it fails to factorize the covariance.
func (g *Gaussian) Reset() error {
	if dist, ok := distmv.NewNormal(g.mean, g.cov, g.src); ok {
		g.dist = dist
		g.sqrtCov = nil
		g.rnd = nil

		return nil
	}

	sqrtCov, err := covSqrt(g.cov)
	if err != nil {
		return fmt.Errorf("failed to create Gaussian noise: %v", err)
	}

	g.dist = nil
	g.sqrtCov = sqrtCov
	g.rnd = rand.New(g.src)

	return nil
}

// covSqrt returns an SVD square root of cov.
// Cholesky can not factorize a singular covariance; SVD can.
func covSqrt(cov mat.Symmetric) (*mat.Dense, error) {
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	u.Mul(u, diag)

	return u, nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
