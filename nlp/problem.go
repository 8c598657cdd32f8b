// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package nlp implements the constrained nonlinear problem driven by Newton-type solvers
package nlp

import (
	"math"

	"github.com/iiiian/polyfem/form"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/mat"
)

// Mode defines the size of vectors handled by Problem
type Mode int

const (
	// ModeFull means that all vectors have the full size; penalty forms are included
	ModeFull Mode = iota

	// ModeReduced means that all vectors live in the reduced space; constraints are exactly satisfied
	ModeReduced
)

// String returns "full" or "reduced"
func (o Mode) String() string {
	if o == ModeFull {
		return "full"
	}
	return "reduced"
}

// Problem implements the objective function E(x) = Σ wf・Ef(x) subject to A・x = b(t).
//
//  All queries (Value, Gradient, Hessian, step checks, norms) work on vectors whose size depends
//  on the current Mode:
//
//   ModeFull:    x has size Nfull; penalty (augmented Lagrangian) forms are added to E
//   ModeReduced: x has size Nred; x is expanded to offset + Q2・x before calling the forms and
//                gradients and Hessians are projected back with Q2ᵀ
//
//  SetupConstraints must be called before any query in ModeReduced.
type Problem struct {

	// settings
	Verbose bool // show messages

	// data
	Nfull      int                // number of DOFs of the full space
	T          float64            // current time
	CharLength float64            // characteristic length L
	CharForce  float64            // characteristic force F0
	Mass       []float64          // [nfull] lumped mass; nil means identity
	Hard       *LinearConstraints // constraints given at construction
	Agg        *form.Aggregate    // forms and penalty forms

	// derived; set by SetupConstraints
	Cons *LinearConstraints // Hard plus rows of all penalty forms
	Red  *Reducer           // map between full and reduced spaces

	// state
	mode         Mode          // current size mode
	inLineSearch bool          // a line search is active
	massRed      []float64     // [nred] reduced lumped mass
	penTargets   [][]*dbf.Cte  // [npenalty][nrows] targets of penalty rows in Cons
	solver       LinSolver     // linear solver handle
	kb           la.Triplet    // full Hessian
	hfull        *mat.SymDense // full Hessian (dense and symmetrised)
}

// NewProblem returns a new Problem in ModeReduced. Constraints are not factorised yet;
// call SetupConstraints before using the reduced space.
//  nfull      -- number of DOFs
//  cons       -- constraints (Dirichlet, periodic, general); may be nil
//  t          -- initial time
//  forms      -- energy terms
//  penalty    -- augmented Lagrangian terms; their rows are also eliminated in ModeReduced
//  solver     -- linear solver used to compute the particular solution; nil means DenseSolver
//  charLength -- characteristic length used to rescale norms
//  charForce  -- characteristic force used to rescale norms
//  lumpedMass -- [nfull] diagonal metric used by norms; may be nil (identity)
func NewProblem(nfull int, cons *LinearConstraints, t float64, forms []form.Form, penalty []form.PenaltyForm,
	solver LinSolver, charLength, charForce float64, lumpedMass []float64) (o *Problem, err error) {

	// check
	if nfull < 1 {
		return nil, chk.Err("number of DOFs must be positive. nfull=%d", nfull)
	}
	if lumpedMass != nil && len(lumpedMass) != nfull {
		return nil, chk.Err("size of lumped mass must be equal to nfull. %d != %d", len(lumpedMass), nfull)
	}
	if charLength <= 0 || charForce <= 0 {
		return nil, chk.Err("characteristic length and force must be positive. L=%g F0=%g", charLength, charForce)
	}

	// new object
	o = new(Problem)
	o.Nfull = nfull
	o.T = t
	o.CharLength = charLength
	o.CharForce = charForce
	o.Mass = lumpedMass
	o.Hard = cons
	if o.Hard == nil {
		o.Hard = NewLinearConstraints()
	}
	o.Agg = form.NewAggregate(forms, penalty, 1)
	o.solver = solver
	if o.solver == nil {
		o.solver = new(DenseSolver)
	}
	o.mode = ModeReduced
	return
}

// SetupConstraints gathers the constraints (including the rows of penalty forms), factorises them
// and computes the particular solution at the current time. Configuration errors such as
// out-of-range equations, too many constraints or linearly dependent rows are returned here.
func (o *Problem) SetupConstraints() (err error) {

	// gather rows
	cons := NewLinearConstraints()
	for _, c := range o.Hard.Cons {
		err = cons.Append(c.Key, c.Eqs, c.Coefs, c.Fcn)
		if err != nil {
			return
		}
	}
	o.penTargets = make([][]*dbf.Cte, len(o.Agg.Penalty))
	for i, p := range o.Agg.Penalty {
		dofs, coefs := p.ConstraintRows()
		vals := p.ConstraintValues(o.T)
		o.penTargets[i] = make([]*dbf.Cte, len(dofs))
		for k := range dofs {
			o.penTargets[i][k] = &dbf.Cte{C: vals[k]}
			err = cons.Append("penalty", dofs[k], coefs[k], o.penTargets[i][k])
			if err != nil {
				return
			}
		}
	}

	// build and factorise
	err = cons.Build(o.Nfull, o.T)
	if err != nil {
		return chk.Err("cannot build constraints:\n%v", err)
	}
	red, err := NewReducer(cons, o.solver)
	if err != nil {
		return chk.Err("cannot factorise constraints:\n%v", err)
	}
	o.Cons = cons
	o.Red = red
	o.massRed = o.Red.ReducedLumpedMass(o.Mass)
	if o.Verbose {
		io.Pf("> constraints: %d rows, reduced size = %d\n", o.Red.Rank, o.Red.Nred)
	}
	return
}

// UpdateConstraintValues recomputes the targets b(t) at the current time and the particular solution
func (o *Problem) UpdateConstraintValues() (err error) {
	o.needSetup()
	for i, p := range o.Agg.Penalty {
		vals := p.ConstraintValues(o.T)
		for k, c := range o.penTargets[i] {
			c.C = vals[k]
		}
	}
	o.Cons.UpdateValues(o.T)
	return o.Red.UpdateOffset(o.Cons.B)
}

// UpdateQuantities sets the time t and notifies time-dependent forms with the converged full-space
// solution x. Targets of constraints are recomputed if SetupConstraints has been called.
func (o *Problem) UpdateQuantities(t float64, x []float64) (err error) {
	if len(x) != o.Nfull {
		chk.Panic("UpdateQuantities requires a full-space vector. len(x)=%d != %d", len(x), o.Nfull)
	}
	o.T = t
	for _, f := range o.Agg.All(true) {
		if td, ok := f.(form.TimeDependent); ok {
			td.UpdateQuantities(t, x)
		}
	}
	if o.Red != nil {
		err = o.UpdateConstraintValues()
	}
	return
}

// sizes and modes ///////////////////////////////////////////////////////////////////////////////////

// FullSize returns the number of DOFs of the full space
func (o *Problem) FullSize() int { return o.Nfull }

// ReducedSize returns the size of the reduced space
func (o *Problem) ReducedSize() int {
	o.needSetup()
	return o.Red.Nred
}

// CurrentSize returns the size of vectors in the current mode
func (o *Problem) CurrentSize() int {
	if o.mode == ModeFull {
		return o.Nfull
	}
	return o.ReducedSize()
}

// UseFullSize switches to ModeFull
func (o *Problem) UseFullSize() { o.mode = ModeFull }

// UseReducedSize switches to ModeReduced
func (o *Problem) UseReducedSize() { o.mode = ModeReduced }

// Mode returns the current mode
func (o *Problem) Mode() Mode { return o.mode }

// CurrentLumpedMass returns the lumped mass in the current mode; nil means identity
func (o *Problem) CurrentLumpedMass() []float64 {
	if o.mode == ModeFull {
		return o.Mass
	}
	o.needSetup()
	return o.massRed
}

// FullToReduced returns Q2ᵀ・(x - offset)
func (o *Problem) FullToReduced(x []float64) (xr []float64) {
	o.needSetup()
	xr = make([]float64, o.Red.Nred)
	o.Red.FullToReduced(xr, x)
	return
}

// ReducedToFull returns offset + Q2・xr
func (o *Problem) ReducedToFull(xr []float64) (x []float64) {
	o.needSetup()
	x = make([]float64, o.Nfull)
	o.Red.ReducedToFull(x, xr)
	return
}

// FullToReducedGrad returns Q2ᵀ・g
func (o *Problem) FullToReducedGrad(g []float64) (gr []float64) {
	o.needSetup()
	gr = make([]float64, o.Red.Nred)
	o.Red.FullToReducedGrad(gr, g)
	return
}

// FullHessianToReducedHessian computes Hr = Q2ᵀ・H・Q2
func (o *Problem) FullHessianToReducedHessian(Hr *mat.SymDense, H mat.Symmetric) {
	o.needSetup()
	o.Red.FullHessianToReduced(Hr, H)
}

// objective ////////////////////////////////////////////////////////////////////////////////////////

// Value returns E(x)
func (o *Problem) Value(x []float64) float64 {
	return o.Agg.Value(o.toFull(x), o.withPenalty())
}

// Gradient computes g = ∂E/∂x
func (o *Problem) Gradient(x, g []float64) {
	if len(g) != len(x) {
		chk.Panic("size of gradient (%d) must be equal to size of x (%d)", len(g), len(x))
	}
	full := o.toFull(x)
	if o.mode == ModeFull {
		o.Agg.Grad(g, full, true)
		return
	}
	gfull := make([]float64, o.Nfull)
	o.Agg.Grad(gfull, full, false)
	o.Red.FullToReducedGrad(g, gfull)
}

// Hessian computes H = ∂²E/∂x²; H may be empty, otherwise its size must match x
func (o *Problem) Hessian(x []float64, H *mat.SymDense) {
	full := o.toFull(x)
	o.assembleFullHessian(full)
	if o.mode == ModeFull {
		prepareSym(H, o.Nfull)
		H.CopySym(o.hfull)
		return
	}
	o.Red.FullHessianToReduced(H, o.hfull)
}

// NormalizeForms rescales the weights of all forms such that they add up to one and returns the
// scale factor s such that s・E_normalised == E
func (o *Problem) NormalizeForms() (scale float64) {
	scale = o.Agg.NormalizeForms()
	if o.Verbose {
		io.Pf("> forms normalised by %g\n", scale)
	}
	return
}

// NumPenaltyConstraints returns the total number of rows of all penalty forms
func (o *Problem) NumPenaltyConstraints() (n int) {
	for _, p := range o.Agg.Penalty {
		n += p.NumConstraints()
	}
	return
}

// PenaltyError returns the max error of penalty constraints at x
func (o *Problem) PenaltyError(x []float64) (err float64) {
	full := o.toFull(x)
	for _, p := range o.Agg.Penalty {
		err = math.Max(err, p.ComputeError(full))
	}
	return
}

// UpdateMultipliers updates the Lagrange multipliers of all penalty forms at x
func (o *Problem) UpdateMultipliers(x []float64) {
	full := o.toFull(x)
	for _, p := range o.Agg.Penalty {
		p.UpdateMultipliers(full)
	}
}

// solver hooks /////////////////////////////////////////////////////////////////////////////////////

// SolutionChanged notifies all forms that the iterate is now x. It also ends an active line search
func (o *Problem) SolutionChanged(x []float64) {
	if o.inLineSearch {
		o.LineSearchEnd()
	}
	full := o.toFull(x)
	for _, f := range o.Agg.All(true) {
		f.SolutionChanged(full)
	}
}

// IsStepValid returns whether x1 is admissible when coming from x0
func (o *Problem) IsStepValid(x0, x1 []float64) bool {
	full0, full1 := o.toFull(x0), o.toFull(x1)
	for _, f := range o.Agg.All(o.withPenalty()) {
		if f.Enabled() && !f.IsStepValid(full0, full1) {
			return false
		}
	}
	return true
}

// IsStepCollisionFree returns whether the linear trajectory x0 → x1 is free of penetration
func (o *Problem) IsStepCollisionFree(x0, x1 []float64) bool {
	full0, full1 := o.toFull(x0), o.toFull(x1)
	for _, f := range o.Agg.All(o.withPenalty()) {
		if c, ok := f.(form.Collider); ok && f.Enabled() {
			if !c.IsStepCollisionFree(full0, full1) {
				return false
			}
		}
	}
	return true
}

// MaxStepSize returns the largest α ≤ 1 such that x0 + α・(x1 - x0) is admissible
func (o *Problem) MaxStepSize(x0, x1 []float64) (α float64) {
	α = 1
	full0, full1 := o.toFull(x0), o.toFull(x1)
	for _, f := range o.Agg.All(o.withPenalty()) {
		if f.Enabled() {
			α = math.Min(α, f.MaxStepSize(full0, full1))
		}
	}
	return
}

// LineSearchBegin notifies forms that trial steps from x0 towards x1 are about to be probed.
// The line search ends with LineSearchEnd or with the next call to SolutionChanged.
func (o *Problem) LineSearchBegin(x0, x1 []float64) {
	full0, full1 := o.toFull(x0), o.toFull(x1)
	for _, f := range o.Agg.All(true) {
		if ls, ok := f.(form.LineSearcher); ok {
			ls.LineSearchBegin(full0, full1)
		}
	}
	o.inLineSearch = true
}

// LineSearchEnd notifies forms that the line search is over
func (o *Problem) LineSearchEnd() {
	if !o.inLineSearch {
		return
	}
	for _, f := range o.Agg.All(true) {
		if ls, ok := f.(form.LineSearcher); ok {
			ls.LineSearchEnd()
		}
	}
	o.inLineSearch = false
}

// InLineSearch returns whether a line search is active
func (o *Problem) InLineSearch() bool { return o.inLineSearch }

// PostStep notifies forms that iteration iter has been accepted with iterate x
func (o *Problem) PostStep(iter int, x []float64) {
	full := o.toFull(x)
	for _, f := range o.Agg.All(true) {
		if ps, ok := f.(form.PostStepper); ok {
			ps.PostStep(iter, full)
		}
	}
}

// lagging //////////////////////////////////////////////////////////////////////////////////////////

// InitLagging freezes lagged quantities at x; called once per time step
func (o *Problem) InitLagging(x []float64) {
	full := o.toFull(x)
	for _, f := range o.Agg.All(true) {
		if lg, ok := f.(form.Lagger); ok {
			lg.InitLagging(full)
		}
	}
}

// UpdateLagging refreshes lagged quantities at x after the inner solve iterNum
func (o *Problem) UpdateLagging(x []float64, iterNum int) {
	full := o.toFull(x)
	for _, f := range o.Agg.All(true) {
		if lg, ok := f.(form.Lagger); ok {
			lg.UpdateLagging(full, iterNum)
		}
	}
}

// MaxLaggingIterations returns the max number of inner solves requested by the forms (at least 1)
func (o *Problem) MaxLaggingIterations() (n int) {
	n = 1
	for _, f := range o.Agg.All(true) {
		if lg, ok := f.(form.Lagger); ok && f.Enabled() {
			if m := lg.MaxLaggingIterations(); m > n {
				n = m
			}
		}
	}
	return
}

// UsesLagging returns whether any form requests more than one inner solve
func (o *Problem) UsesLagging() bool { return o.MaxLaggingIterations() > 1 }

// auxiliary ////////////////////////////////////////////////////////////////////////////////////////

// withPenalty returns whether penalty forms are part of the objective
func (o *Problem) withPenalty() bool { return o.mode == ModeFull }

// needSetup panics if SetupConstraints has not been called
func (o *Problem) needSetup() {
	if o.Red == nil {
		chk.Panic("constraints have not been set up; SetupConstraints must be called first")
	}
}

// toFull returns the full-space vector corresponding to x in the current mode
func (o *Problem) toFull(x []float64) []float64 {
	if o.mode == ModeFull {
		if len(x) != o.Nfull {
			chk.Panic("size of x (%d) must be equal to the full size (%d)", len(x), o.Nfull)
		}
		return x
	}
	o.needSetup()
	if len(x) != o.Red.Nred {
		chk.Panic("size of x (%d) must be equal to the reduced size (%d)", len(x), o.Red.Nred)
	}
	full := make([]float64, o.Nfull)
	o.Red.ReducedToFull(full, x)
	return full
}

// assembleFullHessian computes the dense (symmetrised) full Hessian at x
func (o *Problem) assembleFullHessian(x []float64) {
	pen := o.withPenalty()
	nnz := o.Agg.Nnz(o.Nfull, pen)
	if nnz < 1 {
		nnz = 1
	}
	o.kb.Init(o.Nfull, o.Nfull, nnz)
	o.Agg.Hess(&o.kb, x, pen)
	K := o.kb.ToDense()
	if o.hfull == nil {
		o.hfull = mat.NewSymDense(o.Nfull, nil)
	}
	for i := 0; i < o.Nfull; i++ {
		for j := i; j < o.Nfull; j++ {
			o.hfull.SetSym(i, j, (K.Get(i, j)+K.Get(j, i))/2)
		}
	}
}
