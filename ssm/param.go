package ssm

import "gonum.org/v1/gonum/mat"

// Param resolves one system matrix role per timestep. A role is declared
// either as a static value, as a function of the timestep, or (transition
// matrix only) as a function of the timestep and the previous state mean.
type Param struct {
	val     mat.Matrix
	timeFn  func(t int) mat.Matrix
	stateFn func(t int, x mat.Vector) mat.Matrix
}

// Static returns a Param which resolves to m at every timestep.
func Static(m mat.Matrix) Param {
	return Param{val: m}
}

// TimeVarying returns a Param which resolves by calling fn with the timestep.
func TimeVarying(fn func(t int) mat.Matrix) Param {
	return Param{timeFn: fn}
}

// StateDependent returns a Param which resolves by calling fn with the
// timestep and the previous state mean. Only the transition matrix role
// accepts a state dependent Param.
func StateDependent(fn func(t int, x mat.Vector) mat.Matrix) Param {
	return Param{stateFn: fn}
}

// resolve dispatches on the declared variant, checked in order:
// static value, time function, state function.
func (p Param) resolve(t int, x mat.Vector) mat.Matrix {
	switch {
	case p.val != nil:
		return p.val
	case p.timeFn != nil:
		return p.timeFn(t)
	case p.stateFn != nil:
		return p.stateFn(t, x)
	}

	return nil
}

func (p Param) declared() bool {
	return p.val != nil || p.timeFn != nil || p.stateFn != nil
}

// VecParam resolves one offset role per timestep.
type VecParam struct {
	val    mat.Vector
	timeFn func(t int) mat.Vector
}

// StaticVec returns a VecParam which resolves to v at every timestep.
func StaticVec(v mat.Vector) VecParam {
	return VecParam{val: v}
}

// TimeVaryingVec returns a VecParam which resolves by calling fn with the timestep.
func TimeVaryingVec(fn func(t int) mat.Vector) VecParam {
	return VecParam{timeFn: fn}
}

func (p VecParam) resolve(t int) mat.Vector {
	if p.val != nil {
		return p.val
	}
	if p.timeFn != nil {
		return p.timeFn(t)
	}

	return nil
}

func (p VecParam) declared() bool {
	return p.val != nil || p.timeFn != nil
}
