// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

// Friction implements a lagged (staggered) smooth friction potential against the contact plane
//
//   E(x) = Σ μ・λi/(2・εv)・‖T・(pi - pi⁰)‖²    with   T = I - n⊗n
//
//  where λi is the normal force computed by Cont and pi⁰ the position at the beginning of the
//  time step. Both are frozen by InitLagging; λi is refreshed by UpdateLagging.
type Friction struct {
	Base
	Cont *Contact  // contact model providing the plane and normal forces
	Mu   float64   // friction coefficient μ
	Epsv float64   // smoothing velocity εv
	Nlag int       // max number of lagging iterations
	Lam  []float64 // [len(Cont.Nodes)] lagged normal forces
	Pini []float64 // [ndof] lagged positions at the beginning of the time step
}

// register allocator
func init() {
	SetAllocator("friction", func(sim *inp.Simulation, fdat *inp.FormData) (Form, error) {
		cont, err := newContactFromData(sim, fdat)
		if err != nil {
			return nil, err
		}
		mu, epsv, nlag := 0.0, 1e-3, 3
		for _, p := range fdat.Prms {
			switch p.N {
			case "mu":
				mu = p.V
			case "epsv":
				epsv = p.V
			case "nlag":
				nlag = int(p.V)
			}
		}
		return NewFriction(cont, mu, epsv, nlag)
	})
}

// NewFriction returns a new Friction form
func NewFriction(cont *Contact, mu, epsv float64, nlag int) (o *Friction, err error) {
	if cont == nil {
		return nil, chk.Err("friction: contact model is required")
	}
	if mu < 0 || epsv <= 0 {
		return nil, chk.Err("friction: μ must be non-negative and εv positive. mu=%g epsv=%g", mu, epsv)
	}
	if nlag < 1 {
		nlag = 1
	}
	o = new(Friction)
	o.Init("friction")
	o.Cont = cont
	o.Mu = mu
	o.Epsv = epsv
	o.Nlag = nlag
	return
}

// Nnz returns the number of non-zeros in the Hessian
func (o *Friction) Nnz(ndof int) int { return o.Cont.Nnz(ndof) }

// Value returns E(x)
func (o *Friction) Value(x []float64) (val float64) {
	if o.Lam == nil {
		return
	}
	ndim := o.Cont.Ndim
	u := make([]float64, ndim)
	for i, node := range o.Cont.Nodes {
		if o.Lam[i] == 0 {
			continue
		}
		o.tangent(u, x, node)
		var uu float64
		for _, v := range u {
			uu += v * v
		}
		val += o.Mu * o.Lam[i] * uu / (2 * o.Epsv)
	}
	return
}

// AddGrad adds α・∂E/∂x to g
func (o *Friction) AddGrad(g []float64, α float64, x []float64) {
	if o.Lam == nil {
		return
	}
	ndim := o.Cont.Ndim
	u := make([]float64, ndim)
	for i, node := range o.Cont.Nodes {
		if o.Lam[i] == 0 {
			continue
		}
		o.tangent(u, x, node)
		c := α * o.Mu * o.Lam[i] / o.Epsv
		for k := 0; k < ndim; k++ {
			g[node*ndim+k] += c * u[k]
		}
	}
}

// AddHess adds α・∂²E/∂x² to Kb
func (o *Friction) AddHess(Kb *la.Triplet, α float64, x []float64) {
	if o.Lam == nil {
		return
	}
	ndim := o.Cont.Ndim
	n := o.Cont.N
	for i, node := range o.Cont.Nodes {
		if o.Lam[i] == 0 {
			continue
		}
		c := α * o.Mu * o.Lam[i] / o.Epsv
		for a := 0; a < ndim; a++ {
			for b := 0; b < ndim; b++ {
				tab := -n[a] * n[b]
				if a == b {
					tab += 1
				}
				Kb.Put(node*ndim+a, node*ndim+b, c*tab)
			}
		}
	}
}

// InitLagging freezes positions and normal forces at x
func (o *Friction) InitLagging(x []float64) {
	o.Pini = make([]float64, len(x))
	copy(o.Pini, x)
	o.updateForces(x)
}

// UpdateLagging refreshes the normal forces at x
func (o *Friction) UpdateLagging(x []float64, iterNum int) {
	o.updateForces(x)
}

// MaxLaggingIterations returns the max number of lagging iterations
func (o *Friction) MaxLaggingIterations() int { return o.Nlag }

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

func (o *Friction) updateForces(x []float64) {
	if len(o.Lam) != len(o.Cont.Nodes) {
		o.Lam = make([]float64, len(o.Cont.Nodes))
	}
	for i, node := range o.Cont.Nodes {
		o.Lam[i] = o.Cont.NormalForce(x, node)
	}
}

// tangent computes u = T・(p - p⁰) for node
func (o *Friction) tangent(u, x []float64, node int) {
	ndim := o.Cont.Ndim
	var un float64
	for k := 0; k < ndim; k++ {
		u[k] = x[node*ndim+k] - o.Pini[node*ndim+k]
		un += u[k] * o.Cont.N[k]
	}
	for k := 0; k < ndim; k++ {
		u[k] -= un * o.Cont.N[k]
	}
}
