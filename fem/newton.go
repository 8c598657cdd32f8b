// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fem

import (
	"math"

	"github.com/iiiian/polyfem/inp"
	"github.com/iiiian/polyfem/nlp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Newton implements Newton's method with backtracking line search. Each call to Solve runs
// augmented Lagrangian iterations in the full space (if required) followed by Newton iterations in
// the reduced space, where all constraints are exactly satisfied.
type Newton struct {

	// settings
	NmaxIt  int     // max number of iterations
	Gtol    float64 // tolerance on the rescaled Linf norm of the gradient
	LsMaxIt int     // max number of backtracking steps
	Armijo  float64 // Armijo coefficient
	ShowR   bool    // show residuals
	Verbose bool    // show messages

	// augmented Lagrangian
	UseAL   bool    // always run augmented Lagrangian iterations first
	ALmaxIt int     // max number of multiplier updates
	ALtol   float64 // tolerance on the constraints error
	Kappa   float64 // initial penalty weight
	KappaMx float64 // max penalty weight
	Kfactor float64 // multiplier of κ when the error is not halved

	// linear solver
	LinSol nlp.LinSolver

	// auxiliary
	stats Stats         // statistics of last call to Solve
	hess  mat.SymDense  // Hessian
	shift *mat.SymDense // shifted Hessian
}

// set factory
func init() {
	SetSolverAllocator("newton", func(dat *inp.SolverData, verbose bool) Solver {
		return NewNewton(dat, verbose)
	})
}

// NewNewton returns a new Newton solver
func NewNewton(dat *inp.SolverData, verbose bool) (o *Newton) {
	o = new(Newton)
	o.NmaxIt = dat.NmaxIt
	o.Gtol = dat.Gtol
	o.LsMaxIt = dat.LsMaxIt
	o.Armijo = dat.Armijo
	o.ShowR = dat.ShowR
	o.Verbose = verbose
	o.UseAL = dat.UseAL
	o.ALmaxIt = dat.ALmaxIt
	o.ALtol = dat.ALtol
	o.Kappa = dat.Kappa
	o.KappaMx = dat.KappaMx
	o.Kfactor = dat.Kfactor
	o.LinSol = new(nlp.DenseSolver)
	return
}

// Stats returns the statistics of the last call to Solve
func (o *Newton) Stats() *Stats { return &o.stats }

// Solve solves the problem at the current time starting from the full-space vector x
func (o *Newton) Solve(prob *nlp.Problem, x []float64) (err error) {

	// check
	o.stats = Stats{}
	if len(x) != prob.FullSize() {
		return chk.Err("size of x (%d) must be equal to the full size (%d)", len(x), prob.FullSize())
	}

	// augmented Lagrangian
	if prob.NumPenaltyConstraints() > 0 && (o.UseAL || !o.projectionIsValid(prob, x)) {
		err = o.augmentedLagrangian(prob, x)
		if err != nil {
			return
		}
	}

	// reduced space
	prob.UseReducedSize()
	xr := prob.FullToReduced(x)
	err = o.Minimize(prob, xr)
	if err != nil {
		return
	}
	copy(x, prob.ReducedToFull(xr))
	return
}

// Minimize runs Newton iterations on the vector x of the current size
func (o *Newton) Minimize(prob *nlp.Problem, x []float64) (err error) {

	// check
	n := len(x)
	if n != prob.CurrentSize() {
		return chk.Err("size of x (%d) must be equal to the current size (%d)", n, prob.CurrentSize())
	}
	if n == 0 {
		prob.SolutionChanged(x)
		o.stats.Gnorm, o.stats.Energy = 0, prob.Value(x)
		return
	}

	// auxiliary
	if !o.hess.IsEmpty() && o.hess.SymmetricDim() != n {
		o.hess.Reset()
	}
	g := make([]float64, n)
	d := make([]float64, n)
	xt := make([]float64, n)
	gscale := prob.GradNormRescaling("Linf")

	// message
	if o.ShowR {
		io.Pf("\n%8s%4s%23s%23s%8s\n", prob.Mode(), "it", "E", "|g|", "α")
	}

	// iterations
	for it := 0; ; it++ {

		// energy and gradient
		prob.SolutionChanged(x)
		e0 := prob.Value(x)
		if math.IsInf(e0, 0) || math.IsNaN(e0) {
			return chk.Err("energy is not finite at iteration %d", it)
		}
		prob.Gradient(x, g)
		gn := prob.GradNorm(g, "Linf") / gscale
		o.stats.Gnorm, o.stats.Energy = gn, e0

		// check convergence
		if gn < o.Gtol {
			if o.ShowR {
				io.Pf("%8s%4d%23.15e%23.15e\n", "", it, e0, gn)
			}
			return
		}
		if it == o.NmaxIt {
			return chk.Err("Newton did not converge after %d iterations. |g| = %g", it, gn)
		}

		// search direction and max step
		prob.Hessian(x, &o.hess)
		o.direction(d, g)
		floats.AddTo(xt, x, d)
		α := prob.MaxStepSize(x, xt)
		if α <= 0 {
			return chk.Err("max step size is not positive at iteration %d. α = %g", it, α)
		}

		// backtracking
		slope := floats.Dot(g, d)
		tol := 1e-13 * math.Max(1, math.Abs(e0))
		floats.AddScaledTo(xt, x, α, d)
		prob.LineSearchBegin(x, xt)
		found := false
		for k := 0; k < o.LsMaxIt; k++ {
			floats.AddScaledTo(xt, x, α, d)
			if prob.IsStepValid(x, xt) && prob.IsStepCollisionFree(x, xt) {
				if prob.Value(xt) <= e0+o.Armijo*α*slope+tol {
					found = true
					break
				}
			}
			α /= 2
			o.stats.Nls++
		}
		prob.LineSearchEnd()
		if !found {
			return chk.Err("line search failed at iteration %d. |g| = %g", it, gn)
		}
		if o.ShowR {
			io.Pf("%8s%4d%23.15e%23.15e%8.4f\n", "", it, e0, gn, α)
		}

		// update
		copy(x, xt)
		o.stats.Nit++
		prob.PostStep(it, x)
	}
}

// augmentedLagrangian solves the problem in the full space with the penalty forms and updates the
// multipliers until the constraints error is smaller than ALtol
func (o *Newton) augmentedLagrangian(prob *nlp.Problem, x []float64) (err error) {
	prob.UseFullSize()
	defer prob.UseReducedSize()
	κ := o.Kappa
	o.setPenaltyWeight(prob, κ)
	prev := math.Inf(1)
	var perr float64
	for k := 0; k < o.ALmaxIt; k++ {
		err = o.Minimize(prob, x)
		if err != nil {
			return chk.Err("augmented Lagrangian iteration %d failed:\n%v", k, err)
		}
		perr = prob.PenaltyError(x)
		if o.Verbose {
			io.Pf("> augmented Lagrangian: it=%d κ=%g error=%g\n", k, κ, perr)
		}
		if perr < o.ALtol {
			return
		}
		prob.UpdateMultipliers(x)
		o.stats.Nal++
		if perr > prev/2 && κ < o.KappaMx {
			κ = math.Min(κ*o.Kfactor, o.KappaMx)
			o.setPenaltyWeight(prob, κ)
		}
		prev = perr
	}
	return chk.Err("augmented Lagrangian did not converge after %d iterations. error = %g", o.ALmaxIt, perr)
}

// projectionIsValid returns whether the projection of x onto the constraints is a valid step
func (o *Newton) projectionIsValid(prob *nlp.Problem, x []float64) bool {
	prob.UseReducedSize()
	xproj := prob.ReducedToFull(prob.FullToReduced(x))
	prob.UseFullSize()
	defer prob.UseReducedSize()
	return prob.IsStepValid(x, xproj) && prob.IsStepCollisionFree(x, xproj)
}

// direction computes the Newton direction d = -H⁻¹・g. If H is not positive definite, a multiple of
// the identity is added; if this also fails, the steepest descent direction is used
func (o *Newton) direction(d, g []float64) {
	n := len(g)
	b := make([]float64, n)
	floats.ScaleTo(b, -1, g)
	err := o.LinSol.Solve(d, &o.hess, b)
	if err == nil && floats.Dot(g, d) < 0 {
		return
	}
	var hmax float64
	for i := 0; i < n; i++ {
		hmax = math.Max(hmax, math.Abs(o.hess.At(i, i)))
	}
	μ := 1e-8 * math.Max(1, hmax)
	if o.shift == nil || o.shift.SymmetricDim() != n {
		o.shift = mat.NewSymDense(n, nil)
	}
	for k := 0; k < 8; k++ {
		o.shift.CopySym(&o.hess)
		for i := 0; i < n; i++ {
			o.shift.SetSym(i, i, o.hess.At(i, i)+μ)
		}
		err = o.LinSol.Solve(d, o.shift, b)
		if err == nil && floats.Dot(g, d) < 0 {
			if o.Verbose {
				io.Pfyel("> Hessian shifted by μ=%g\n", μ)
			}
			return
		}
		μ *= 10
	}
	copy(d, b)
}

// setPenaltyWeight sets κ in all penalty forms
func (o *Newton) setPenaltyWeight(prob *nlp.Problem, κ float64) {
	for _, p := range prob.Agg.Penalty {
		p.SetPenaltyWeight(κ)
	}
}
