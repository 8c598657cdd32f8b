// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Aggregate sums the weighted contributions of an ordered list of forms.
//
//   E(x) = Σ_f w_f・E_f(x)   (+ Σ_p w_p・E_p(x) when penalty forms are requested)
//
// Values and gradients of different forms are computed concurrently into per-form buffers and
// then added in declaration order; thus results do not depend on the number of workers.
type Aggregate struct {
	Forms    []Form        // energy terms
	Penalty  []PenaltyForm // augmented Lagrangian terms
	Nworkers int           // max number of goroutines; ≤ 1 means serial

	// workspace
	vals  []float64   // [nforms+npenalty] values of each form
	grads [][]float64 // [nforms+npenalty][ndof] gradients of each form
}

// NewAggregate returns a new Aggregate
func NewAggregate(forms []Form, penalty []PenaltyForm, nworkers int) (o *Aggregate) {
	o = new(Aggregate)
	o.Forms = forms
	o.Penalty = penalty
	o.Nworkers = nworkers
	o.vals = make([]float64, len(forms)+len(penalty))
	o.grads = make([][]float64, len(forms)+len(penalty))
	return
}

// All returns the list of forms followed by the penalty forms
func (o *Aggregate) All(withPenalty bool) (list []Form) {
	list = make([]Form, 0, len(o.Forms)+len(o.Penalty))
	list = append(list, o.Forms...)
	if withPenalty {
		for _, p := range o.Penalty {
			list = append(list, p)
		}
	}
	return
}

// Value returns the weighted sum of values of all enabled forms
func (o *Aggregate) Value(x []float64, withPenalty bool) (val float64) {
	list := o.All(withPenalty)
	o.run(list, func(k int, f Form) {
		o.vals[k] = f.Weight() * f.Value(x)
	})
	for k, f := range list {
		if f.Enabled() {
			val += o.vals[k]
		}
	}
	return
}

// Grad computes the weighted sum of gradients of all enabled forms; g is overwritten
func (o *Aggregate) Grad(g, x []float64, withPenalty bool) {
	if len(g) != len(x) {
		chk.Panic("size of gradient (%d) must be equal to size of x (%d)", len(g), len(x))
	}
	list := o.All(withPenalty)
	o.run(list, func(k int, f Form) {
		if len(o.grads[k]) != len(x) {
			o.grads[k] = make([]float64, len(x))
		}
		gk := o.grads[k]
		for i := range gk {
			gk[i] = 0
		}
		f.AddGrad(gk, f.Weight(), x)
	})
	for i := range g {
		g[i] = 0
	}
	for k, f := range list {
		if f.Enabled() {
			floats.Add(g, o.grads[k])
		}
	}
}

// Nnz returns the max number of non-zeros in the Hessian triplet
func (o *Aggregate) Nnz(ndof int, withPenalty bool) (nnz int) {
	for _, f := range o.All(withPenalty) {
		if f.Enabled() {
			nnz += f.Nnz(ndof)
		}
	}
	return
}

// Hess assembles the weighted sum of Hessians of all enabled forms into Kb.
// Kb must have been initialised with at least Nnz entries; it is restarted here.
func (o *Aggregate) Hess(Kb *la.Triplet, x []float64, withPenalty bool) {
	Kb.Start()
	for _, f := range o.All(withPenalty) {
		if f.Enabled() {
			f.AddHess(Kb, f.Weight(), x)
		}
	}
}

// NormalizeForms divides the weights of all forms (including penalty forms) by their sum so
// that the new weights add up to one. It returns the scaling applied, i.e. the old sum,
// such that scale・E_normalised(x) == E(x). Nothing is changed and 1 is returned if the sum is zero.
func (o *Aggregate) NormalizeForms() (scale float64) {
	list := o.All(true)
	for _, f := range list {
		if f.Enabled() {
			scale += f.Weight()
		}
	}
	if scale == 0 {
		return 1
	}
	for _, f := range list {
		f.SetWeight(f.Weight() / scale)
	}
	return
}

// run calls fcn for each enabled form, using up to Nworkers goroutines
func (o *Aggregate) run(list []Form, fcn func(k int, f Form)) {
	if len(o.vals) < len(list) {
		o.vals = make([]float64, len(list))
		o.grads = append(o.grads, make([][]float64, len(list)-len(o.grads))...)
	}
	if o.Nworkers <= 1 {
		for k, f := range list {
			if f.Enabled() {
				fcn(k, f)
			}
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(o.Nworkers)
	for k, f := range list {
		if !f.Enabled() {
			continue
		}
		k, f := k, f
		g.Go(func() error {
			fcn(k, f)
			return nil
		})
	}
	g.Wait()
}
