// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fem

import (
	"github.com/iiiian/polyfem/inp"
	"github.com/iiiian/polyfem/nlp"

	"github.com/cpmech/gosl/chk"
)

// Solver implements the nonlinear solver of one time step
type Solver interface {
	Solve(prob *nlp.Problem, x []float64) (err error) // x: full-space vector; overwritten with solution
	Stats() *Stats                                    // statistics of the last call to Solve
}

// Stats holds statistics of one call to Solver.Solve
type Stats struct {
	Nit    int     // total number of Newton iterations
	Nls    int     // total number of backtracking steps
	Nal    int     // number of multiplier updates
	Gnorm  float64 // rescaled gradient norm at solution
	Energy float64 // energy at solution
}

// SolverAllocator defines a function that allocates a solver
type SolverAllocator func(dat *inp.SolverData, verbose bool) Solver

// NewSolver returns a new solver from the factory
func NewSolver(dat *inp.SolverData, verbose bool) (s Solver, err error) {
	alloc, ok := allocators[dat.Type]
	if !ok {
		return nil, chk.Err("cannot find solver type named %q", dat.Type)
	}
	return alloc(dat, verbose), nil
}

// SetSolverAllocator sets a new callback function to allocate a solver
func SetSolverAllocator(name string, fcn SolverAllocator) {
	if _, ok := allocators[name]; ok {
		chk.Panic("cannot set allocator function for %q because solver name exists already", name)
	}
	allocators[name] = fcn
}

// allocators holds all available solvers
var allocators = make(map[string]SolverAllocator)
