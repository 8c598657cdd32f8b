// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fem

import (
	"github.com/iiiian/polyfem/inp"
	"github.com/iiiian/polyfem/nlp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"gonum.org/v1/gonum/optimize"
)

// GonumNewton runs gonum's Newton method in the reduced space. Rows of penalty forms are
// eliminated exactly; there are no augmented Lagrangian iterations.
type GonumNewton struct {
	NmaxIt  int     // max number of iterations
	Gtol    float64 // tolerance on the rescaled Linf norm of the gradient
	Verbose bool    // show messages
	stats   Stats   // statistics of last call to Solve
}

// set factory
func init() {
	SetSolverAllocator("gonum-newton", func(dat *inp.SolverData, verbose bool) Solver {
		return &GonumNewton{NmaxIt: dat.NmaxIt, Gtol: dat.Gtol, Verbose: verbose}
	})
}

// Stats returns the statistics of the last call to Solve
func (o *GonumNewton) Stats() *Stats { return &o.stats }

// Solve solves the problem at the current time starting from the full-space vector x
func (o *GonumNewton) Solve(prob *nlp.Problem, x []float64) (err error) {

	// check
	o.stats = Stats{}
	if len(x) != prob.FullSize() {
		return chk.Err("size of x (%d) must be equal to the full size (%d)", len(x), prob.FullSize())
	}

	// fully constrained
	prob.UseReducedSize()
	xr := prob.FullToReduced(x)
	if len(xr) == 0 {
		copy(x, prob.ReducedToFull(xr))
		prob.SolutionChanged(xr)
		o.stats.Energy = prob.Value(xr)
		return
	}

	// minimise
	gscale := prob.GradNormRescaling("Linf")
	settings := &optimize.Settings{
		GradientThreshold: o.Gtol * gscale,
		MajorIterations:   o.NmaxIt,
	}
	xr, res, err := nlp.Minimize(prob, xr, settings)
	if err != nil {
		return
	}
	if res.Status == optimize.IterationLimit {
		return chk.Err("gonum Newton did not converge after %d iterations", res.Stats.MajorIterations)
	}
	if o.Verbose {
		io.Pf("> gonum Newton: status=%v iterations=%d\n", res.Status, res.Stats.MajorIterations)
	}

	// results
	copy(x, prob.ReducedToFull(xr))
	o.stats.Nit = res.Stats.MajorIterations
	o.stats.Energy = res.F
	if res.Gradient != nil {
		o.stats.Gnorm = prob.GradNorm(res.Gradient, "Linf") / gscale
	}
	return
}
