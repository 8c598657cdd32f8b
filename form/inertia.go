// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

// Inertia implements the incremental potential of the inertia term (implicit Euler)
//
//   E(x) = 1/(2Δt²)・(x - x̃)ᵀ・M・(x - x̃)    with   x̃ = xn + Δt・vn
//
type Inertia struct {
	Base
	Dt float64   // time step Δt
	M  []float64 // [ndof] lumped mass; nil means identity
	Xn []float64 // [ndof] positions at the beginning of the time step
	Vn []float64 // [ndof] velocities at the beginning of the time step
	Xt []float64 // [ndof] predicted positions x̃
}

// register allocator
func init() {
	SetAllocator("inertia", func(sim *inp.Simulation, fdat *inp.FormData) (Form, error) {
		x0 := sim.Data.X0
		if x0 == nil {
			x0 = make([]float64, sim.Ndof)
		}
		var v0 []float64
		if len(fdat.Vals) > 0 {
			if len(fdat.Vals) != sim.Ndof {
				return nil, chk.Err("inertia: size of initial velocities (vals) must be equal to ndof. %d != %d", len(fdat.Vals), sim.Ndof)
			}
			v0 = fdat.Vals
		}
		return NewInertia(sim.Solver.Dt, sim.Data.Mass, x0, v0)
	})
}

// NewInertia returns a new inertia form. v0 may be nil (at rest)
func NewInertia(dt float64, mass, x0, v0 []float64) (o *Inertia, err error) {
	if dt <= 0 {
		return nil, chk.Err("inertia: time step must be positive. dt=%g", dt)
	}
	n := len(x0)
	if mass != nil && len(mass) != n {
		return nil, chk.Err("inertia: size of mass must be equal to size of x0. %d != %d", len(mass), n)
	}
	o = new(Inertia)
	o.Init("inertia")
	o.Dt = dt
	o.M = mass
	o.Xn = make([]float64, n)
	o.Vn = make([]float64, n)
	o.Xt = make([]float64, n)
	copy(o.Xn, x0)
	if v0 != nil {
		copy(o.Vn, v0)
	}
	o.predict()
	return
}

// Nnz returns the number of non-zeros in the Hessian
func (o *Inertia) Nnz(ndof int) int { return len(o.Xt) }

// Value returns E(x)
func (o *Inertia) Value(x []float64) (val float64) {
	for i, xt := range o.Xt {
		d := x[i] - xt
		val += o.mass(i) * d * d
	}
	return val / (2 * o.Dt * o.Dt)
}

// AddGrad adds α・M・(x - x̃)/Δt² to g
func (o *Inertia) AddGrad(g []float64, α float64, x []float64) {
	c := α / (o.Dt * o.Dt)
	for i, xt := range o.Xt {
		g[i] += c * o.mass(i) * (x[i] - xt)
	}
}

// AddHess adds α・M/Δt² to Kb
func (o *Inertia) AddHess(Kb *la.Triplet, α float64, x []float64) {
	c := α / (o.Dt * o.Dt)
	for i := range o.Xt {
		Kb.Put(i, i, c*o.mass(i))
	}
}

// UpdateQuantities advances the state with the converged solution x
func (o *Inertia) UpdateQuantities(t float64, x []float64) {
	for i := range o.Xn {
		o.Vn[i] = (x[i] - o.Xn[i]) / o.Dt
		o.Xn[i] = x[i]
	}
	o.predict()
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

func (o *Inertia) predict() {
	for i := range o.Xt {
		o.Xt[i] = o.Xn[i] + o.Dt*o.Vn[i]
	}
}

func (o *Inertia) mass(i int) float64 {
	if o.M == nil {
		return 1
	}
	return o.M[i]
}
