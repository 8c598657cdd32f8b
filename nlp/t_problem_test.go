// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"
	"testing"

	"github.com/iiiian/polyfem/form"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/mat"
)

// newChain returns a 2D chain of 3 nodes: springs, inertia and gravity; node 0 is fixed at (0, 0.1)
// and y of node 2 is held at 0.2 by an augmented Lagrangian form
func newChain(tst *testing.T) (prob *Problem, lag *form.Lagrangian) {
	x0 := []float64{0, 0, 1, 0, 2, 0}
	mass := []float64{1, 1, 2, 2, 3, 3}
	pairs := [][2]int{{0, 1}, {1, 2}}
	springs, err := form.NewSprings(2, 3, 100, pairs, form.RestLengths(2, pairs, x0))
	if err != nil {
		tst.Fatalf("NewSprings failed:\n%v", err)
	}
	inertia, err := form.NewInertia(0.1, mass, x0, nil)
	if err != nil {
		tst.Fatalf("NewInertia failed:\n%v", err)
	}
	body := form.NewBody([]float64{0, 0, 0, -1, 0, -1}, nil, 0)
	lag, err = form.NewLagrangian([][]int{{5}}, [][]float64{{1}}, []dbf.T{&dbf.Cte{C: 0.2}}, 100, 0)
	if err != nil {
		tst.Fatalf("NewLagrangian failed:\n%v", err)
	}
	cons := NewLinearConstraints()
	cons.SetDirichlet(0, nil)
	cons.SetDirichlet(1, &dbf.Cte{C: 0.1})
	prob, err = NewProblem(6, cons, 0, []form.Form{springs, inertia, body}, []form.PenaltyForm{lag}, nil, 1, 1, mass)
	if err != nil {
		tst.Fatalf("NewProblem failed:\n%v", err)
	}
	err = prob.SetupConstraints()
	if err != nil {
		tst.Fatalf("SetupConstraints failed:\n%v", err)
	}
	return
}

// checkProblemDerivs compares Gradient and Hessian of prob (current mode) with central differences
func checkProblemDerivs(tst *testing.T, prob *Problem, x []float64, tolg, tolh float64) {
	n := len(x)
	h := 1e-6
	xx := make([]float64, n)

	// gradient
	g := make([]float64, n)
	prob.Gradient(x, g)
	gnum := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(xx, x)
		xx[i] = x[i] + h
		fp := prob.Value(xx)
		xx[i] = x[i] - h
		fm := prob.Value(xx)
		gnum[i] = (fp - fm) / (2 * h)
	}
	chk.Array(tst, prob.Mode().String()+": gradient", tolg, g, gnum)

	// Hessian
	var H mat.SymDense
	prob.Hessian(x, &H)
	gp := make([]float64, n)
	gm := make([]float64, n)
	Hana := mat.DenseCopyOf(&H)
	Hnum := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		copy(xx, x)
		xx[j] = x[j] + h
		prob.Gradient(xx, gp)
		xx[j] = x[j] - h
		prob.Gradient(xx, gm)
		for i := 0; i < n; i++ {
			Hnum.Set(i, j, (gp[i]-gm[i])/(2*h))
		}
	}
	chk.Deep2(tst, prob.Mode().String()+": Hessian", tolh, denseToSlice(Hana), denseToSlice(Hnum))
}

func denseToSlice(a *mat.Dense) (res [][]float64) {
	r, c := a.Dims()
	res = make([][]float64, r)
	for i := 0; i < r; i++ {
		res[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			res[i][j] = a.At(i, j)
		}
	}
	return
}

func Test_problem01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem01. derivatives in reduced and full modes")

	prob, _ := newChain(tst)
	chk.Int(tst, "reduced size", prob.ReducedSize(), 3)
	chk.Int(tst, "number of rows", prob.Cons.Len(), 3)
	chk.Int(tst, "number of penalty rows", prob.NumPenaltyConstraints(), 1)

	// penalty row is eliminated
	x := []float64{0, 0.1, 1.1, -0.05, 2.05, 0.2}
	xr := prob.FullToReduced(x)
	chk.Array(tst, "x", 1e-14, prob.ReducedToFull(xr), x)
	chk.Float64(tst, "residual", 1e-14, prob.Cons.MaxResidual(prob.ReducedToFull([]float64{-1, 2, 3})), 0)

	// reduced
	chk.String(tst, prob.Mode().String(), "reduced")
	checkProblemDerivs(tst, prob, xr, 1e-5, 1e-4)

	// full
	prob.UseFullSize()
	chk.String(tst, prob.Mode().String(), "full")
	chk.Int(tst, "current size", prob.CurrentSize(), 6)
	checkProblemDerivs(tst, prob, []float64{0.01, 0.1, 1.1, -0.05, 2.05, 0.25}, 1e-5, 1e-4)
}

func Test_problem02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem02. reduced quantities are projections of full quantities")

	prob, lag := newChain(tst)
	xr := prob.FullToReduced([]float64{0, 0.1, 0.9, 0.15, 2.2, 0.2})
	x := prob.ReducedToFull(xr)

	// reduced
	er := prob.Value(xr)
	gr := make([]float64, 3)
	prob.Gradient(xr, gr)
	var Hr mat.SymDense
	prob.Hessian(xr, &Hr)

	// full
	prob.UseFullSize()
	chk.Float64(tst, "penalty error", 1e-15, prob.PenaltyError(x), 0)
	ef := prob.Value(x)
	gf := make([]float64, 6)
	prob.Gradient(x, gf)
	var Hf, Hp mat.SymDense
	prob.Hessian(x, &Hf)
	prob.FullHessianToReducedHessian(&Hp, &Hf)

	io.Pforan("er = %v  ef = %v\n", er, ef)
	chk.Float64(tst, "energy", 1e-12, er, ef)
	chk.Array(tst, "gradient", 1e-11, gr, prob.FullToReducedGrad(gf))
	chk.Deep2(tst, "Hessian", 1e-10, denseToSlice(mat.DenseCopyOf(&Hr)), denseToSlice(mat.DenseCopyOf(&Hp)))

	// penalty only acts off the constraint manifold
	x[5] = 0.3
	chk.Float64(tst, "penalty error", 1e-15, prob.PenaltyError(x), 0.1)
	chk.Float64(tst, "penalty energy", 1e-12, prob.Value(x)-lag.Value(x), prob.Agg.Value(x, false))
	prob.UpdateMultipliers(x)
	chk.Array(tst, "λ", 1e-12, lag.Multipliers(), []float64{-10})
}

func Test_problem03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem03. time dependent constraints and forms")

	ramp := dbf.New("rmp", dbf.Params{
		&dbf.P{N: "ca", V: 0},
		&dbf.P{N: "cb", V: 1},
		&dbf.P{N: "ta", V: 0},
		&dbf.P{N: "tb", V: 1},
	})
	x0 := []float64{0, 1, 2}
	inertia, _ := form.NewInertia(0.5, nil, x0, nil)
	body := form.NewBody([]float64{0, 0, 1}, ramp, 0)
	cons := NewLinearConstraints()
	cons.SetDirichlet(0, ramp)
	prob, _ := NewProblem(3, cons, 0, []form.Form{inertia, body}, nil, nil, 1, 1, nil)
	err := prob.SetupConstraints()
	if err != nil {
		tst.Errorf("SetupConstraints failed:\n%v", err)
		return
	}
	chk.Array(tst, "x(0)", 1e-15, prob.ReducedToFull([]float64{1, 2}), []float64{0, 1, 2})

	// advance
	x := []float64{0, 1.5, 2.5}
	err = prob.UpdateQuantities(0.5, x)
	if err != nil {
		tst.Errorf("UpdateQuantities failed:\n%v", err)
		return
	}
	chk.Float64(tst, "t", 1e-15, prob.T, 0.5)
	chk.Float64(tst, "body time", 1e-15, body.Time, 0.5)
	chk.Array(tst, "inertia: xn", 1e-15, inertia.Xn, x)
	chk.Array(tst, "inertia: vn", 1e-15, inertia.Vn, []float64{0, 1, 1})
	chk.Array(tst, "inertia: x̃", 1e-15, inertia.Xt, []float64{0, 2, 3})
	chk.Array(tst, "x(0.5)", 1e-15, prob.ReducedToFull([]float64{1, 2}), []float64{0.5, 1, 2})
	chk.Float64(tst, "residual", 1e-15, prob.Cons.MaxResidual(prob.ReducedToFull([]float64{3, 4})), 0)

	// wrong size
	defer func() {
		if err := recover(); err == nil {
			tst.Errorf("UpdateQuantities with reduced vector should have panicked")
		}
	}()
	prob.UpdateQuantities(1, []float64{1, 2})
}

func Test_problem04(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem04. norms and rescaling")

	cons := NewLinearConstraints()
	cons.SetDirichlet(0, nil)
	prob, _ := NewProblem(3, cons, 0, nil, nil, nil, 2, 10, []float64{1, 2, 4})
	chk.Float64(tst, "grad rescaling: L2", 1e-13, prob.GradNormRescaling("L2"), 10*math.Pow(2, 1.5))
	chk.Float64(tst, "grad rescaling: Linf", 1e-15, prob.GradNormRescaling("Linf"), 10)
	chk.Float64(tst, "grad rescaling: other", 1e-15, prob.GradNormRescaling("bogus"), 1)
	chk.Float64(tst, "step rescaling: L2", 1e-13, prob.StepNormRescaling("L2"), math.Pow(2, 2.5))
	chk.Float64(tst, "step rescaling: Linf", 1e-15, prob.StepNormRescaling("Linf"), 2)
	chk.Float64(tst, "step rescaling: other", 1e-15, prob.StepNormRescaling("bogus"), 1)
	chk.Float64(tst, "energy rescaling", 1e-13, prob.EnergyNormRescaling(), 160)

	// unknown norms need nothing
	chk.Float64(tst, "grad norm: other", 1e-15, prob.GradNorm([]float64{1, 2}, "bogus"), 1)
	chk.Float64(tst, "step norm: other", 1e-15, prob.StepNorm([]float64{1, 2}, "bogus"), 1)

	// full
	prob.UseFullSize()
	g := []float64{1, -4, 2}
	chk.Float64(tst, "grad norm: L2", 1e-15, prob.GradNorm(g, "L2"), math.Sqrt(1+8+1))
	chk.Float64(tst, "grad norm: Linf", 1e-15, prob.GradNorm(g, "Linf"), 2)
	chk.Float64(tst, "step norm: L2", 1e-15, prob.StepNorm(g, "L2"), math.Sqrt(1+32+16))
	chk.Float64(tst, "step norm: Linf", 1e-15, prob.StepNorm(g, "Linf"), 4)

	// reduced
	prob.UseReducedSize()
	err := prob.SetupConstraints()
	if err != nil {
		tst.Errorf("SetupConstraints failed:\n%v", err)
		return
	}
	mr := prob.CurrentLumpedMass()
	chk.Float64(tst, "Σ mr", 1e-14, mr[0]+mr[1], 6)
	chk.Array(tst, "mr", 1e-14, mr, prob.Red.ReducedLumpedMass(prob.Mass))
	gr := []float64{2, -4}
	chk.Float64(tst, "grad norm: L2 (reduced)", 1e-14, prob.GradNorm(gr, "L2"), math.Sqrt(4/mr[0]+16/mr[1]))
	chk.Float64(tst, "step norm: Linf (reduced)", 1e-15, prob.StepNorm(gr, "Linf"), 4)
}

func Test_problem05(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem05. weights and normalisation")

	prob, _ := NewProblem(2, nil, 0, []form.Form{newConst("a", 3, 1), newConst("b", 4, 2)}, nil, nil, 1, 1, nil)
	prob.UseFullSize()
	x := []float64{0, 0}
	chk.Float64(tst, "E", 1e-15, prob.Value(x), 11)
	scale := prob.NormalizeForms()
	chk.Float64(tst, "scale", 1e-15, scale, 3)
	chk.Float64(tst, "scale・E", 1e-14, scale*prob.Value(x), 11)
}

func Test_problem06(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem06. solver hooks and lagging")

	spy := newSpy()
	prob, _ := NewProblem(2, nil, 0, []form.Form{spy}, nil, nil, 1, 1, nil)

	// using reduced space before setting constraints up
	func() {
		defer func() {
			if err := recover(); err == nil {
				tst.Errorf("ReducedSize should have panicked")
			}
		}()
		prob.ReducedSize()
	}()

	prob.UseFullSize()
	x0 := []float64{0, 0}
	x1 := []float64{1, 1}

	// line search
	prob.LineSearchBegin(x0, x1)
	if !prob.InLineSearch() || spy.nbegin != 1 {
		tst.Errorf("line search should have begun")
	}
	prob.SolutionChanged(x1)
	if prob.InLineSearch() || spy.nend != 1 || spy.nchanged != 1 {
		tst.Errorf("SolutionChanged should have ended the line search")
	}
	prob.LineSearchEnd()
	chk.Int(tst, "number of LineSearchEnd", spy.nend, 1)

	// step checks
	chk.Float64(tst, "max step size", 1e-15, prob.MaxStepSize(x0, x1), 0.25)
	if !prob.IsStepValid(x0, x1) || !prob.IsStepCollisionFree(x0, x1) {
		tst.Errorf("step should have been valid")
	}
	spy.invalid = true
	if prob.IsStepValid(x0, x1) || prob.IsStepCollisionFree(x0, x1) {
		tst.Errorf("step should have been invalid")
	}
	spy.SetEnabled(false)
	if !prob.IsStepValid(x0, x1) || !prob.IsStepCollisionFree(x0, x1) {
		tst.Errorf("disabled forms must not reject steps")
	}
	chk.Float64(tst, "max step size (disabled)", 1e-15, prob.MaxStepSize(x0, x1), 1)
	spy.SetEnabled(true)

	// post step
	prob.PostStep(7, x1)
	chk.Int(tst, "iteration", spy.iter, 7)

	// lagging
	chk.Int(tst, "max lagging iterations", prob.MaxLaggingIterations(), 4)
	if !prob.UsesLagging() {
		tst.Errorf("problem should use lagging")
	}
	prob.InitLagging(x0)
	prob.UpdateLagging(x1, 1)
	chk.Ints(tst, "lagging calls", []int{spy.ninit, spy.nupdate}, []int{1, 1})

	// wrong size
	defer func() {
		if err := recover(); err == nil {
			tst.Errorf("Value with wrong size should have panicked")
		}
	}()
	prob.Value([]float64{1})
}

func Test_problem07(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem07. lagged friction is idempotent")

	cont, err := form.NewContact(2, []int{0}, []float64{0, 1}, 0, 0.5, 10, false)
	if err != nil {
		tst.Errorf("NewContact failed:\n%v", err)
		return
	}
	fric, err := form.NewFriction(cont, 0.5, 1e-3, 3)
	if err != nil {
		tst.Errorf("NewFriction failed:\n%v", err)
		return
	}
	prob, _ := NewProblem(2, nil, 0, []form.Form{cont, fric}, nil, nil, 1, 1, nil)
	err = prob.SetupConstraints()
	if err != nil {
		tst.Errorf("SetupConstraints failed:\n%v", err)
		return
	}
	x := []float64{0.3, 0.2}
	prob.InitLagging(x)
	lam := append([]float64{}, fric.Lam...)
	if lam[0] <= 0 {
		tst.Errorf("normal force should be positive. λ=%v", lam)
	}
	prob.UpdateLagging(x, 1)
	prob.UpdateLagging(x, 2)
	chk.Array(tst, "λ", 1e-15, fric.Lam, lam)
	chk.Int(tst, "max lagging iterations", prob.MaxLaggingIterations(), 3)
}

func Test_problem08(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem08. Hessian after changes of active set and mode")

	// bar of two springs with node 2 close to a wall at x=2.2; x0 is held by an augmented Lagrangian
	newBar := func() *Problem {
		pairs := [][2]int{{0, 1}, {1, 2}}
		springs, err := form.NewSprings(1, 3, 10, pairs, []float64{1, 1})
		if err != nil {
			tst.Fatalf("NewSprings failed:\n%v", err)
		}
		wall, err := form.NewContact(1, []int{2}, []float64{-1}, -2.2, 0.5, 10, false)
		if err != nil {
			tst.Fatalf("NewContact failed:\n%v", err)
		}
		lag, err := form.NewLagrangian([][]int{{0}}, [][]float64{{1}}, []dbf.T{nil}, 100, 0)
		if err != nil {
			tst.Fatalf("NewLagrangian failed:\n%v", err)
		}
		prob, err := NewProblem(3, nil, 0, []form.Form{springs, wall}, []form.PenaltyForm{lag}, nil, 1, 1, nil)
		if err != nil {
			tst.Fatalf("NewProblem failed:\n%v", err)
		}
		err = prob.SetupConstraints()
		if err != nil {
			tst.Fatalf("SetupConstraints failed:\n%v", err)
		}
		return prob
	}
	xin := []float64{0, 1, 2}      // d = 0.2 < d̂
	xout := []float64{0, 0.8, 1.5} // d = 0.7 > d̂

	// full mode: node leaves the contact zone
	prob := newBar()
	prob.UseFullSize()
	var H, Href mat.SymDense
	prob.Hessian(xin, &H)
	prob.Hessian(xout, &H)
	fresh := newBar()
	fresh.UseFullSize()
	fresh.Hessian(xout, &Href)
	chk.Deep2(tst, "full: H", 1e-12, denseToSlice(mat.DenseCopyOf(&H)), denseToSlice(mat.DenseCopyOf(&Href)))

	// full mode followed by reduced mode
	prob = newBar()
	prob.UseFullSize()
	prob.Hessian(xin, &H)
	prob.UseReducedSize()
	xr := prob.FullToReduced(xout)
	var Hr, Hrref mat.SymDense
	prob.Hessian(xr, &Hr)
	fresh = newBar()
	fresh.Hessian(xr, &Hrref)
	chk.Deep2(tst, "reduced: H", 1e-12, denseToSlice(mat.DenseCopyOf(&Hr)), denseToSlice(mat.DenseCopyOf(&Hrref)))
	checkProblemDerivs(tst, prob, xr, 1e-6, 1e-5)
}

func Test_problem09(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem09. penalty rows sharing DOFs with hard rows")

	// x0 = 1 (hard) and x0 = x1 (penalty)
	cons := NewLinearConstraints()
	cons.SetDirichlet(0, &dbf.Cte{C: 1})
	lag, err := form.NewLagrangian([][]int{{0, 1}}, [][]float64{{1, -1}}, []dbf.T{nil}, 100, 0)
	if err != nil {
		tst.Errorf("NewLagrangian failed:\n%v", err)
		return
	}
	prob, _ := NewProblem(3, cons, 0, nil, []form.PenaltyForm{lag}, nil, 1, 1, nil)
	err = prob.SetupConstraints()
	if err != nil {
		tst.Errorf("SetupConstraints failed:\n%v", err)
		return
	}
	chk.Int(tst, "number of rows", prob.Cons.Len(), 2)
	chk.Int(tst, "reduced size", prob.ReducedSize(), 1)
	x := prob.ReducedToFull([]float64{0.7})
	chk.Array(tst, "x[:2]", 1e-13, x[:2], []float64{1, 1})
	chk.Float64(tst, "residual", 1e-13, prob.Cons.MaxResidual(x), 0)
	chk.Float64(tst, "penalty error", 1e-13, prob.PenaltyError([]float64{0.7}), 0)
}

func Test_problem10(tst *testing.T) {

	//verbose()
	chk.PrintTitle("problem10. contact and friction in reduced mode")

	// node 0 fixed at (0, 0.3); node 1 touches the floor y=0
	x0 := []float64{0, 0.3, 1, 0.2}
	pairs := [][2]int{{0, 1}}
	springs, err := form.NewSprings(2, 2, 10, pairs, form.RestLengths(2, pairs, x0))
	if err != nil {
		tst.Errorf("NewSprings failed:\n%v", err)
		return
	}
	cont, err := form.NewContact(2, []int{1}, []float64{0, 1}, 0, 0.5, 10, false)
	if err != nil {
		tst.Errorf("NewContact failed:\n%v", err)
		return
	}
	fric, err := form.NewFriction(cont, 0.5, 0.1, 3)
	if err != nil {
		tst.Errorf("NewFriction failed:\n%v", err)
		return
	}
	cons := NewLinearConstraints()
	cons.SetDirichlet(0, nil)
	cons.SetDirichlet(1, &dbf.Cte{C: 0.3})
	prob, _ := NewProblem(4, cons, 0, []form.Form{springs, cont, fric}, nil, nil, 1, 1, nil)
	err = prob.SetupConstraints()
	if err != nil {
		tst.Errorf("SetupConstraints failed:\n%v", err)
		return
	}
	chk.Int(tst, "reduced size", prob.ReducedSize(), 2)

	// lagging at x0
	prob.InitLagging(prob.FullToReduced(x0))
	if fric.Lam[0] <= 0 {
		tst.Errorf("normal force should be positive. λ=%v", fric.Lam)
	}

	// derivatives away from the lagged position
	xr := prob.FullToReduced([]float64{0, 0.3, 1.05, 0.25})
	checkProblemDerivs(tst, prob, xr, 1e-6, 1e-5)

	// node leaves the contact zone
	xr = prob.FullToReduced([]float64{0, 0.3, 1.1, 0.6})
	checkProblemDerivs(tst, prob, xr, 1e-6, 1e-5)
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// constForm has a constant value and null derivatives
type constForm struct {
	form.Base
	c float64
}

func newConst(name string, c, w float64) *constForm {
	o := &constForm{c: c}
	o.Init(name)
	o.SetWeight(w)
	return o
}

func (o *constForm) Nnz(ndof int) int                               { return 0 }
func (o *constForm) Value(x []float64) float64                      { return o.c }
func (o *constForm) AddGrad(g []float64, α float64, x []float64)    {}
func (o *constForm) AddHess(Kb *la.Triplet, α float64, x []float64) {}

// spyForm records calls to the optional interfaces
type spyForm struct {
	constForm
	invalid  bool // reject all steps
	iter     int  // last accepted iteration
	nbegin   int
	nend     int
	nchanged int
	ninit    int
	nupdate  int
}

func newSpy() *spyForm {
	o := new(spyForm)
	o.Init("spy")
	return o
}

func (o *spyForm) SolutionChanged(x []float64)               { o.nchanged++ }
func (o *spyForm) IsStepValid(x0, x1 []float64) bool         { return !o.invalid }
func (o *spyForm) IsStepCollisionFree(x0, x1 []float64) bool { return !o.invalid }
func (o *spyForm) MaxStepSize(x0, x1 []float64) float64      { return 0.25 }
func (o *spyForm) LineSearchBegin(x0, x1 []float64)          { o.nbegin++ }
func (o *spyForm) LineSearchEnd()                            { o.nend++ }
func (o *spyForm) PostStep(iter int, x []float64)            { o.iter = iter }
func (o *spyForm) InitLagging(x []float64)                   { o.ninit++ }
func (o *spyForm) UpdateLagging(x []float64, iterNum int)    { o.nupdate++ }
func (o *spyForm) MaxLaggingIterations() int                 { return 4 }
