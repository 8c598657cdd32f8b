// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package fem implements the time-stepping driver of constrained nonlinear problems
package fem

import (
	"time"

	"github.com/iiiian/polyfem/form"
	"github.com/iiiian/polyfem/inp"
	"github.com/iiiian/polyfem/nlp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
)

// Main holds all data for a simulation
type Main struct {
	Sim         *inp.Simulation  // simulation data
	Prob        *nlp.Problem     // nonlinear problem
	Soft        *form.Lagrangian // augmented Lagrangian constraints; may be nil
	Solver      Solver           // nonlinear solver
	Summary     *Summary         // results of each time step
	X           []float64        // [ndof] full-space solution
	SaveSummary bool             // save summary at exit
	ShowMsg     bool             // show messages

	// auxiliary
	stats Stats // accumulated statistics of one time step
}

// NewMain returns a new Main structure
//  Input:
//   simfilepath -- simulation (.sim or .yaml) filename including full path
//   saveSummary -- save summary
//   verbose     -- show messages
func NewMain(simfilepath string, saveSummary, verbose bool) (o *Main, err error) {

	// new Main object
	o = new(Main)
	o.SaveSummary = saveSummary
	o.ShowMsg = verbose

	// read input data
	o.Sim, err = inp.ReadSim(simfilepath)
	if err != nil {
		return nil, err
	}
	if o.ShowMsg {
		io.Pf("> Simulation file read\n")
	}

	// forms
	forms, err := form.NewList(o.Sim)
	if err != nil {
		return nil, chk.Err("cannot allocate forms:\n%v", err)
	}

	// constraints
	hard, soft, err := NewConstraints(o.Sim)
	if err != nil {
		return nil, err
	}
	var penalty []form.PenaltyForm
	if soft != nil {
		o.Soft = soft
		penalty = append(penalty, soft)
	}

	// problem
	sim := o.Sim
	o.Prob, err = nlp.NewProblem(sim.Ndof, hard, sim.Solver.Dt, forms, penalty, nil, sim.Data.CharLength, sim.Data.CharForce, sim.Data.Mass)
	if err != nil {
		return nil, chk.Err("cannot allocate nonlinear problem:\n%v", err)
	}
	o.Prob.Verbose = verbose
	o.Prob.Agg.Nworkers = sim.Data.Nworkers
	err = o.Prob.SetupConstraints()
	if err != nil {
		return nil, err
	}
	if sim.Data.ListBcs {
		io.Pf("%v", o.Prob.Cons.List(o.Prob.T))
	}

	// solver
	o.Solver, err = NewSolver(&sim.Solver, verbose)
	if err != nil {
		return nil, err
	}

	// solution and summary
	o.X = make([]float64, sim.Ndof)
	copy(o.X, sim.Data.X0)
	o.Summary = &Summary{Key: sim.Key, Ndof: sim.Ndof, Nred: o.Prob.ReducedSize()}
	if o.ShowMsg {
		io.Pf("> Initialisation completed: ndof=%d nred=%d nforms=%d\n", sim.Ndof, o.Prob.ReducedSize(), len(forms))
	}
	return
}

// Run runs all time steps
func (o *Main) Run() (err error) {

	// exit commands
	cputime := time.Now()
	defer func() { err = o.onexit(cputime, err) }()

	// time loop
	dt := o.Sim.Solver.Dt
	nsteps := o.Sim.Solver.Nsteps
	for step := 0; step < nsteps; step++ {

		// solve
		t := o.Prob.T
		if o.ShowMsg && !o.Sim.Solver.ShowR {
			io.Pf("> step %4d: t = %g\n", step, t)
		}
		var nlag int
		nlag, err = o.SolveStep()
		if err != nil {
			return chk.Err("time step %d (t=%g) failed:\n%v", step, t, err)
		}
		o.Summary.Append(t, nlag, &o.stats, o.Prob.Cons.MaxResidual(o.X), o.X)

		// advance time
		if step < nsteps-1 {
			err = o.Prob.UpdateQuantities(float64(step+2)*dt, o.X)
			if err != nil {
				return
			}
		}
	}
	return
}

// SolveStep solves the current time step with up to nlag lagging iterations
func (o *Main) SolveStep() (nlag int, err error) {

	// lagging
	o.stats = Stats{}
	o.Prob.UseFullSize()
	o.Prob.InitLagging(o.X)
	nmax := o.Sim.Solver.Nlag
	if nmax < 1 {
		nmax = o.Prob.MaxLaggingIterations()
	}

	// inner solves
	for nlag = 1; nlag <= nmax; nlag++ {
		if nlag > 1 {
			o.Prob.UseFullSize()
			o.Prob.UpdateLagging(o.X, nlag-1)
			if o.converged() {
				return nlag - 1, nil
			}
		}
		err = o.Solver.Solve(o.Prob, o.X)
		if err != nil {
			return nlag, chk.Err("nonlinear solver failed at lagging iteration %d:\n%v", nlag, err)
		}
		s := o.Solver.Stats()
		o.stats.Nit += s.Nit
		o.stats.Nls += s.Nls
		o.stats.Nal += s.Nal
		o.stats.Gnorm, o.stats.Energy = s.Gnorm, s.Energy
	}
	return nmax, nil
}

// NewConstraints builds the hard constraints and the augmented Lagrangian form (soft constraints).
// All constraints are soft if the augmented Lagrangian flag is on. Dirichlet constraints without
// function hold the initial position.
func NewConstraints(sim *inp.Simulation) (hard *nlp.LinearConstraints, soft *form.Lagrangian, err error) {
	hard = nlp.NewLinearConstraints()
	var dofs [][]int
	var coefs [][]float64
	var fcns []dbf.T
	var fcn dbf.T
	for i, bc := range sim.Bcs {
		fcn, err = sim.GetFunc(bc.Func)
		if err != nil {
			return nil, nil, chk.Err("cannot get function of constraint %d:\n%v", i, err)
		}
		isSoft := bc.Soft || sim.Solver.UseAL
		switch bc.Key {
		case "dirichlet":
			for _, eq := range bc.Dofs {
				f := fcn
				if bc.Func == "" {
					f = &dbf.Cte{C: x0(sim, eq)}
				}
				if isSoft {
					dofs, coefs, fcns = append(dofs, []int{eq}), append(coefs, []float64{1}), append(fcns, f)
					continue
				}
				hard.SetDirichlet(eq, f)
			}
		case "periodic":
			for k := 0; k < len(bc.Dofs); k += 2 {
				a, b := bc.Dofs[k], bc.Dofs[k+1]
				if isSoft {
					dofs, coefs, fcns = append(dofs, []int{a, b}), append(coefs, []float64{1, -1}), append(fcns, nil)
					continue
				}
				err = hard.SetPeriodic(a, b)
				if err != nil {
					return nil, nil, err
				}
			}
		case "general":
			if isSoft {
				dofs, coefs, fcns = append(dofs, bc.Dofs), append(coefs, bc.Coefs), append(fcns, fcn)
				continue
			}
			err = hard.Set(bc.Key, bc.Dofs, bc.Coefs, fcn)
			if err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, chk.Err("constraint key %q is invalid", bc.Key)
		}
	}
	if len(dofs) > 0 {
		soft, err = form.NewLagrangian(dofs, coefs, fcns, sim.Solver.Kappa, sim.Solver.Dt)
		if err != nil {
			return nil, nil, chk.Err("cannot allocate augmented Lagrangian form:\n%v", err)
		}
	}
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////

// converged returns whether the current solution satisfies the tolerance on the gradient
func (o *Main) converged() bool {
	o.Prob.UseReducedSize()
	xr := o.Prob.FullToReduced(o.X)
	if len(xr) == 0 {
		return true
	}
	o.Prob.SolutionChanged(xr)
	g := make([]float64, len(xr))
	o.Prob.Gradient(xr, g)
	return o.Prob.GradNorm(g, "Linf")/o.Prob.GradNormRescaling("Linf") < o.Sim.Solver.Gtol
}

// x0 returns the initial position of equation eq
func x0(sim *inp.Simulation, eq int) float64 {
	if sim.Data.X0 == nil {
		return 0
	}
	return sim.Data.X0[eq]
}

// onexit prints final message with cpu time and saves summary
func (o *Main) onexit(cputime time.Time, prevErr error) (err error) {

	// show final message
	if o.ShowMsg {
		if prevErr == nil {
			io.PfGreen("> Success\n")
			io.Pf("> CPU time = %v\n", time.Now().Sub(cputime))
		} else {
			io.PfRed("> Failed\n")
		}
	}

	// save summary
	if o.SaveSummary {
		err = o.Summary.Save(o.Sim.Data.DirOut, o.Sim.Data.Encoder)
		if err != nil {
			return
		}
	}

	// skip if previous error is not nil
	if prevErr != nil {
		err = prevErr
	}
	return
}
