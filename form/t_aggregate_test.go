// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"math"
	"testing"

	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/la"
)

func Test_aggregate01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("aggregate01. weights and normalisation")

	a := newCteForm("a", 3)
	b := newCteForm("b", 4)
	b.SetWeight(2)
	agg := NewAggregate([]Form{a, b}, nil, 1)

	x := []float64{0, 0}
	chk.Float64(tst, "E before normalisation", 1e-15, agg.Value(x, false), 11)

	scale := agg.NormalizeForms()
	chk.Float64(tst, "scale", 1e-15, scale, 3)
	chk.Float64(tst, "scale・E after normalisation", 1e-14, scale*agg.Value(x, false), 11)

	ta := a.Weight() * a.Value(x)
	tb := b.Weight() * b.Value(x)
	ratio := math.Max(ta, tb) / math.Min(ta, tb)
	if ratio >= 10 {
		tst.Errorf("terms should be commensurate after normalisation: %g and %g", ta, tb)
	}

	// disabled forms do not contribute
	b.SetEnabled(false)
	chk.Float64(tst, "E without b", 1e-15, agg.Value(x, false), a.Weight()*3)

	// zero total weight
	c := newCteForm("c", 1)
	c.SetWeight(0)
	agg = NewAggregate([]Form{c}, nil, 1)
	chk.Float64(tst, "scale with zero weights", 1e-15, agg.NormalizeForms(), 1)
}

func Test_aggregate02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("aggregate02. parallel evaluation and penalty forms")

	allocate := func() (forms []Form, pen []PenaltyForm) {
		sp, _ := NewSprings(2, 3, 7, [][2]int{{0, 1}, {1, 2}}, []float64{1, 1})
		in, _ := NewInertia(0.1, []float64{1, 1, 2, 2, 3, 3}, []float64{0, 0, 1, 0, 2, 0}, nil)
		bd := NewBody([]float64{0, -1, 0, -1, 0, -1}, nil, 0)
		bd.SetWeight(0.5)
		lg, _ := NewLagrangian([][]int{{0}, {1}}, [][]float64{{1}, {1}}, []dbf.T{nil, nil}, 100, 0)
		return []Form{sp, in, bd}, []PenaltyForm{lg}
	}

	x := []float64{0.1, 0.05, 1.2, -0.1, 2.1, 0.3}
	f1, p1 := allocate()
	f4, p4 := allocate()
	serial := NewAggregate(f1, p1, 1)
	parallel := NewAggregate(f4, p4, 4)

	for _, withPenalty := range []bool{false, true} {
		e1 := serial.Value(x, withPenalty)
		e4 := parallel.Value(x, withPenalty)
		chk.Float64(tst, "E serial vs parallel", 1e-15, e4, e1)

		g1 := make([]float64, len(x))
		g4 := make([]float64, len(x))
		serial.Grad(g1, x, withPenalty)
		parallel.Grad(g4, x, withPenalty)
		chk.Array(tst, "g serial vs parallel", 1e-15, g4, g1)
	}

	// penalty contribution
	ep := serial.Value(x, true) - serial.Value(x, false)
	chk.Float64(tst, "penalty energy", 1e-12, ep, 100*(0.1*0.1+0.05*0.05)/2)

	// Hessian equals the sum of individual Hessians
	n := len(x)
	var Kb la.Triplet
	Kb.Init(n, n, serial.Nnz(n, true))
	serial.Hess(&Kb, x, true)
	K := Kb.ToDense()
	var Ki la.Triplet
	Ki.Init(n, n, serial.Nnz(n, true))
	for _, f := range serial.All(true) {
		f.AddHess(&Ki, f.Weight(), x)
	}
	Kref := Ki.ToDense()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			chk.Float64(tst, "K", 1e-13, K.Get(i, j), Kref.Get(i, j))
		}
	}
}

func Test_factory01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("factory01")

	sim := &inp.Simulation{}
	sim.Data.SetDefault()
	sim.Solver.SetDefault()
	sim.Data.Ndim = 2
	sim.Data.Nnodes = 2
	sim.Data.X0 = []float64{0, 0, 2, 0}
	sim.Forms = []*inp.FormData{
		{Type: "springs", Weight: 3, Prms: dbf.Params{&dbf.P{N: "k", V: 5}}, Pairs: [][]int{{0, 1}}},
		{Type: "inertia", Inact: true},
		{Type: "body", Vals: []float64{0, -1}},
		{Type: "contact", Nodes: []int{1}, Prms: dbf.Params{&dbf.P{N: "ny", V: 1}, &dbf.P{N: "dhat", V: 0.1}}},
		{Type: "friction", Nodes: []int{1}, Prms: dbf.Params{&dbf.P{N: "ny", V: 1}, &dbf.P{N: "mu", V: 0.3}}},
	}
	err := sim.PostProcess()
	if err != nil {
		tst.Errorf("PostProcess failed:\n%v", err)
		return
	}

	forms, err := NewList(sim)
	if err != nil {
		tst.Errorf("NewList failed:\n%v", err)
		return
	}
	chk.Int(tst, "number of forms", len(forms), 5)
	chk.Float64(tst, "springs weight", 1e-15, forms[0].Weight(), 3)
	sp := forms[0].(*Springs)
	chk.Array(tst, "springs ℓ0", 1e-15, sp.L0, []float64{2})
	if forms[1].Enabled() {
		tst.Errorf("inertia should be disabled")
	}
	bd := forms[2].(*Body)
	chk.Array(tst, "body forces", 1e-15, bd.F, []float64{0, -1, 0, -1})
	ct := forms[3].(*Contact)
	chk.Array(tst, "contact normal", 1e-15, ct.N, []float64{0, 1})
	if _, ok := forms[4].(Lagger); !ok {
		tst.Errorf("friction must implement Lagger")
	}
	if _, ok := forms[3].(Collider); !ok {
		tst.Errorf("contact must implement Collider")
	}

	// unknown form
	_, err = New(sim, &inp.FormData{Type: "unknown"})
	if err == nil {
		tst.Errorf("unknown form type should have failed")
	}
}
