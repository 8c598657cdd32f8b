// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/la"
)

// Lagrangian implements the augmented Lagrangian enforcement of linear constraints
//
//   aₖ・x = bₖ(t)    k = 0 ... nrows-1
//
//   E(x) = κ/2・Σ rₖ² - Σ λₖ・rₖ    with   rₖ = aₖ・x - bₖ(t)
//
type Lagrangian struct {
	Base
	Dofs  [][]int     // [nrows][nterms] equations of each row
	Coefs [][]float64 // [nrows][nterms] coefficients of each row
	Fcns  []dbf.T     // [nrows] targets bₖ(t)
	Lam   []float64   // [nrows] Lagrange multipliers λ
	Kappa float64     // penalty weight κ
	Time  float64     // current time
}

// NewLagrangian returns a new Lagrangian form at time t
func NewLagrangian(dofs [][]int, coefs [][]float64, fcns []dbf.T, kappa, t float64) (o *Lagrangian, err error) {
	if len(coefs) != len(dofs) || len(fcns) != len(dofs) {
		return nil, chk.Err("lagrangian: number of rows must be consistent. len(dofs)=%d len(coefs)=%d len(fcns)=%d", len(dofs), len(coefs), len(fcns))
	}
	for k, eqs := range dofs {
		if len(coefs[k]) != len(eqs) {
			return nil, chk.Err("lagrangian: row %d has %d dofs but %d coefficients", k, len(eqs), len(coefs[k]))
		}
		if fcns[k] == nil {
			fcns[k] = &dbf.Cte{C: 0}
		}
	}
	if kappa <= 0 {
		return nil, chk.Err("lagrangian: penalty weight must be positive. kappa=%g", kappa)
	}
	o = new(Lagrangian)
	o.Init("lagrangian")
	o.Dofs = dofs
	o.Coefs = coefs
	o.Fcns = fcns
	o.Lam = make([]float64, len(dofs))
	o.Kappa = kappa
	o.Time = t
	return
}

// Nnz returns the number of non-zeros in the Hessian
func (o *Lagrangian) Nnz(ndof int) (nnz int) {
	for _, eqs := range o.Dofs {
		nnz += len(eqs) * len(eqs)
	}
	return
}

// Value returns E(x)
func (o *Lagrangian) Value(x []float64) (val float64) {
	for k := range o.Dofs {
		r := o.residual(k, x)
		val += o.Kappa*r*r/2 - o.Lam[k]*r
	}
	return
}

// AddGrad adds α・Σ (κ・rₖ - λₖ)・aₖ to g
func (o *Lagrangian) AddGrad(g []float64, α float64, x []float64) {
	for k, eqs := range o.Dofs {
		c := α * (o.Kappa*o.residual(k, x) - o.Lam[k])
		for j, eq := range eqs {
			g[eq] += c * o.Coefs[k][j]
		}
	}
}

// AddHess adds α・κ・Σ aₖ⊗aₖ to Kb
func (o *Lagrangian) AddHess(Kb *la.Triplet, α float64, x []float64) {
	for k, eqs := range o.Dofs {
		for i, eqi := range eqs {
			for j, eqj := range eqs {
				Kb.Put(eqi, eqj, α*o.Kappa*o.Coefs[k][i]*o.Coefs[k][j])
			}
		}
	}
}

// UpdateQuantities sets time
func (o *Lagrangian) UpdateQuantities(t float64, x []float64) { o.Time = t }

// NumConstraints returns the number of rows
func (o *Lagrangian) NumConstraints() int { return len(o.Dofs) }

// ConstraintRows returns the sparse rows of the constraints matrix
func (o *Lagrangian) ConstraintRows() (dofs [][]int, coefs [][]float64) { return o.Dofs, o.Coefs }

// ConstraintValues returns b(t)
func (o *Lagrangian) ConstraintValues(t float64) (b []float64) {
	b = make([]float64, len(o.Fcns))
	for k, f := range o.Fcns {
		b[k] = f.F(t, nil)
	}
	return
}

// Multipliers returns λ
func (o *Lagrangian) Multipliers() []float64 { return o.Lam }

// UpdateMultipliers performs λ ← λ - κ・r(x)
func (o *Lagrangian) UpdateMultipliers(x []float64) {
	for k := range o.Dofs {
		o.Lam[k] -= o.Kappa * o.residual(k, x)
	}
}

// ComputeError returns ‖r(x)‖
func (o *Lagrangian) ComputeError(x []float64) float64 {
	var sum float64
	for k := range o.Dofs {
		r := o.residual(k, x)
		sum += r * r
	}
	return math.Sqrt(sum)
}

// PenaltyWeight returns κ
func (o *Lagrangian) PenaltyWeight() float64 { return o.Kappa }

// SetPenaltyWeight sets κ
func (o *Lagrangian) SetPenaltyWeight(κ float64) { o.Kappa = κ }

// residual returns rₖ = aₖ・x - bₖ(t)
func (o *Lagrangian) residual(k int, x []float64) (r float64) {
	for j, eq := range o.Dofs[k] {
		r += o.Coefs[k][j] * x[eq]
	}
	return r - o.Fcns[k].F(o.Time, nil)
}
