// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/la"
)

// Body implements the potential of external (dead) loads: E(x) = -s(t)・fᵀx
type Body struct {
	Base
	F    []float64 // [ndof] nodal forces
	Fcn  dbf.T     // multiplier s(t)
	Time float64   // current time
}

// register allocator
func init() {
	SetAllocator("body", func(sim *inp.Simulation, fdat *inp.FormData) (Form, error) {
		fcn, err := sim.GetFunc(fdat.Func)
		if err != nil {
			return nil, err
		}
		if fdat.Func == "" {
			fcn = &dbf.Cte{C: 1}
		}
		f := make([]float64, sim.Ndof)
		ndim := sim.Data.Ndim
		switch {
		case len(fdat.Vals) == sim.Ndof && len(fdat.Nodes) == 0:
			copy(f, fdat.Vals)
		case len(fdat.Vals) == ndim:
			nodes := fdat.Nodes
			if len(nodes) == 0 {
				nodes = make([]int, sim.Data.Nnodes)
				for i := range nodes {
					nodes[i] = i
				}
			}
			for _, node := range nodes {
				if node < 0 || node >= sim.Data.Nnodes {
					return nil, chk.Err("body: node %d is out of range. nnodes=%d", node, sim.Data.Nnodes)
				}
				for k := 0; k < ndim; k++ {
					f[node*ndim+k] += fdat.Vals[k]
				}
			}
		default:
			return nil, chk.Err("body: vals must have ndim=%d or ndof=%d components. %d is invalid", ndim, sim.Ndof, len(fdat.Vals))
		}
		return NewBody(f, fcn, sim.Solver.Dt), nil
	})
}

// NewBody returns a new Body form at time t. fcn may be nil meaning s(t) = 1
func NewBody(f []float64, fcn dbf.T, t float64) (o *Body) {
	o = new(Body)
	o.Init("body")
	o.F = f
	o.Fcn = fcn
	if o.Fcn == nil {
		o.Fcn = &dbf.Cte{C: 1}
	}
	o.Time = t
	return
}

// Nnz returns zero since the Hessian is null
func (o *Body) Nnz(ndof int) int { return 0 }

// Value returns E(x)
func (o *Body) Value(x []float64) (val float64) {
	for i, fi := range o.F {
		val -= fi * x[i]
	}
	return o.Fcn.F(o.Time, nil) * val
}

// AddGrad adds -α・s(t)・f to g
func (o *Body) AddGrad(g []float64, α float64, x []float64) {
	c := α * o.Fcn.F(o.Time, nil)
	for i, fi := range o.F {
		g[i] -= c * fi
	}
}

// AddHess does nothing
func (o *Body) AddHess(Kb *la.Triplet, α float64, x []float64) {}

// UpdateQuantities sets time
func (o *Body) UpdateQuantities(t float64, x []float64) { o.Time = t }
