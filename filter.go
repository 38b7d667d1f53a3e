package kaxman

import "gonum.org/v1/gonum/mat"

// Estimate is a state estimate of a dynamical system
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// InitCond is initial state condition of a filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Filter is a dynamical system filter
type Filter interface {
	// Predict propagates the estimate one timestep forward
	Predict(est Estimate, t int) (Estimate, error)
	// Update corrects the predicted estimate using the measurement taken at timestep t
	Update(est Estimate, y mat.Vector, t int) (Estimate, error)
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}
