// Package ssm implements a time varying linear Gaussian state space model:
//
//	x[t] = F[t]*x[t-1] + b[t] + G[t]*w[t],  w[t] ~ N(0, Q[t])
//	y[t] = H[t]*x[t]   + d[t] + v[t],       v[t] ~ N(0, R[t])
//
// with x drawn initially from N(initial mean, initial covariance). Every
// system matrix role may be static or time varying; the transition matrix
// F may additionally depend on the previous state mean.
package ssm

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// InitCond is the initial state condition of a model.
// It implements kaxman.InitCond.
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CloneFromVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

// Config declares the system matrix roles of a state space model.
type Config struct {
	// Transition is the state transition matrix F [nx x nx]. Required.
	// This is the only role which accepts a state dependent Param.
	Transition Param
	// TransitionCov is the state noise covariance Q [nz x nz]. Required.
	TransitionCov Param
	// Observation is the observation matrix H [ny x nx]. Required.
	Observation Param
	// ObservationCov is the output noise covariance R [ny x ny]. Required.
	ObservationCov Param
	// TransitionOffset is the state offset b [nx]. Defaults to zero.
	TransitionOffset VecParam
	// ObservationOffset is the output offset d [ny]. Defaults to zero.
	ObservationOffset VecParam
	// NoiseTransform is the state noise transform G [nx x nz].
	// Defaults to identity, which requires nz == nx.
	NoiseTransform Param
}

// SSM is a linear Gaussian state space model. It is immutable once
// constructed: resolving roles has no side effects, so one SSM may back
// any number of concurrent filter, smooth and sample calls.
type SSM struct {
	ic *InitCond

	f Param
	q Param
	h Param
	r Param
	g Param
	b VecParam
	d VecParam

	nx int
	ny int
	nz int
}

// New creates a new SSM from the initial state mean and covariance and the
// roles declared in cfg, and returns it. The model dimensions are fixed up
// front: nx from the initial mean, ny and nz by resolving the observation
// matrix and the state noise covariance at timestep 0. Every role is then
// resolved once at timestep 0 (the transition matrix with the initial mean)
// to validate its shape; later resolutions are validated per call.
// It returns error if a required role is missing, if any resolved shape
// disagrees with the fixed dimensions, or if a state dependent Param is
// declared for a role other than the transition matrix.
func New(initMean mat.Vector, initCov mat.Symmetric, cfg Config) (*SSM, error) {
	nx := initMean.Len()
	if nx <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", nx)
	}

	if initCov.SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid initial covariance dimensions: [%d x %d]", initCov.SymmetricDim(), initCov.SymmetricDim())
	}

	if !cfg.Transition.declared() || !cfg.TransitionCov.declared() ||
		!cfg.Observation.declared() || !cfg.ObservationCov.declared() {
		return nil, fmt.Errorf("transition, transition cov, observation and observation cov roles must be declared")
	}

	if cfg.TransitionCov.stateFn != nil || cfg.Observation.stateFn != nil ||
		cfg.ObservationCov.stateFn != nil || cfg.NoiseTransform.stateFn != nil {
		return nil, fmt.Errorf("state dependent param is only legal for the transition matrix role")
	}

	h := cfg.Observation.resolve(0, nil)
	if h == nil {
		return nil, fmt.Errorf("observation matrix resolved to nil at timestep 0")
	}
	ny, hc := h.Dims()
	if ny <= 0 || hc != nx {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", ny, hc)
	}

	q := cfg.TransitionCov.resolve(0, nil)
	if q == nil {
		return nil, fmt.Errorf("transition cov resolved to nil at timestep 0")
	}
	nz, qc := q.Dims()
	if nz <= 0 || nz != qc {
		return nil, fmt.Errorf("invalid transition cov dimensions: [%d x %d]", nz, qc)
	}

	m := &SSM{
		ic: NewInitCond(initMean, initCov),
		f:  cfg.Transition,
		q:  cfg.TransitionCov,
		h:  cfg.Observation,
		r:  cfg.ObservationCov,
		g:  cfg.NoiseTransform,
		b:  cfg.TransitionOffset,
		d:  cfg.ObservationOffset,
		nx: nx,
		ny: ny,
		nz: nz,
	}

	if !m.g.declared() {
		if nz != nx {
			return nil, fmt.Errorf("noise transform must be declared when noise dimension %d != state dimension %d", nz, nx)
		}
		eye, err := matrix.NewDenseValIdentity(nx, 1.0)
		if err != nil {
			return nil, err
		}
		m.g = Static(eye)
	}

	// resolve every role once so that declared shapes fail fast
	if _, err := m.StateMatrix(0, initMean); err != nil {
		return nil, err
	}
	if _, err := m.StateNoiseCov(0); err != nil {
		return nil, err
	}
	if _, err := m.OutputMatrix(0); err != nil {
		return nil, err
	}
	if _, err := m.OutputNoiseCov(0); err != nil {
		return nil, err
	}
	if _, err := m.StateOffset(0); err != nil {
		return nil, err
	}
	if _, err := m.OutputOffset(0); err != nil {
		return nil, err
	}
	if _, err := m.NoiseTransform(0); err != nil {
		return nil, err
	}

	return m, nil
}

// SystemDims returns the state, output and state noise dimensions of the model.
func (m *SSM) SystemDims() (nx, ny, nz int) {
	return m.nx, m.ny, m.nz
}

// InitCond returns the initial state condition of the model.
func (m *SSM) InitCond() *InitCond {
	return NewInitCond(m.ic.state, m.ic.cov)
}

// StateMatrix resolves the transition matrix F at timestep t. A state
// dependent transition is resolved with the previous state mean x.
func (m *SSM) StateMatrix(t int, x mat.Vector) (mat.Matrix, error) {
	f := m.f.resolve(t, x)
	if err := checkDims("state matrix", f, m.nx, m.nx, t); err != nil {
		return nil, err
	}

	return f, nil
}

// StateNoiseCov resolves the state noise covariance Q at timestep t.
func (m *SSM) StateNoiseCov(t int) (mat.Matrix, error) {
	q := m.q.resolve(t, nil)
	if err := checkDims("state noise cov", q, m.nz, m.nz, t); err != nil {
		return nil, err
	}

	return q, nil
}

// OutputMatrix resolves the observation matrix H at timestep t.
func (m *SSM) OutputMatrix(t int) (mat.Matrix, error) {
	h := m.h.resolve(t, nil)
	if err := checkDims("output matrix", h, m.ny, m.nx, t); err != nil {
		return nil, err
	}

	return h, nil
}

// OutputNoiseCov resolves the output noise covariance R at timestep t.
func (m *SSM) OutputNoiseCov(t int) (mat.Matrix, error) {
	r := m.r.resolve(t, nil)
	if err := checkDims("output noise cov", r, m.ny, m.ny, t); err != nil {
		return nil, err
	}

	return r, nil
}

// NoiseTransform resolves the state noise transform G at timestep t.
func (m *SSM) NoiseTransform(t int) (mat.Matrix, error) {
	g := m.g.resolve(t, nil)
	if err := checkDims("noise transform", g, m.nx, m.nz, t); err != nil {
		return nil, err
	}

	return g, nil
}

// StateOffset resolves the state offset b at timestep t.
// An undeclared offset resolves to the zero vector.
func (m *SSM) StateOffset(t int) (mat.Vector, error) {
	return m.offset("state offset", m.b, m.nx, t)
}

// OutputOffset resolves the output offset d at timestep t.
// An undeclared offset resolves to the zero vector.
func (m *SSM) OutputOffset(t int) (mat.Vector, error) {
	return m.offset("output offset", m.d, m.ny, t)
}

func (m *SSM) offset(role string, p VecParam, dim, t int) (mat.Vector, error) {
	if !p.declared() {
		return mat.NewVecDense(dim, nil), nil
	}

	v := p.resolve(t)
	if v == nil {
		return nil, fmt.Errorf("%s resolved to nil at timestep %d", role, t)
	}
	if v.Len() != dim {
		return nil, fmt.Errorf("invalid %s dimensions at timestep %d: %d, expected %d", role, t, v.Len(), dim)
	}

	return v, nil
}

func checkDims(role string, v mat.Matrix, r, c, t int) error {
	if v == nil {
		return fmt.Errorf("%s resolved to nil at timestep %d", role, t)
	}

	vr, vc := v.Dims()
	if vr != r || vc != c {
		return fmt.Errorf("invalid %s dimensions at timestep %d: [%d x %d], expected [%d x %d]", role, t, vr, vc, r, c)
	}

	return nil
}

// String implements the Stringer interface.
func (m *SSM) String() string {
	return fmt.Sprintf("SSM{nx=%d, ny=%d, nz=%d,\nInitState=%v\nInitCov=%v\n}",
		m.nx, m.ny, m.nz, matrix.Format(m.ic.state), matrix.Format(m.ic.cov))
}
