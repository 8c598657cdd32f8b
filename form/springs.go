// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"math"

	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
)

// Springs implements the elastic energy of a set of linear springs connecting pairs of nodes
//
//   E(x) = Σ k/2・(‖xj - xi‖ - ℓ0)²
//
type Springs struct {
	Base
	Ndim  int       // space dimension
	K     float64   // stiffness
	Pairs [][2]int  // [npairs] node pairs
	L0    []float64 // [npairs] rest lengths
	Lmin  float64   // smallest admissible length
}

// register allocator
func init() {
	SetAllocator("springs", func(sim *inp.Simulation, fdat *inp.FormData) (Form, error) {
		var k float64
		for _, p := range fdat.Prms {
			switch p.N {
			case "k":
				k = p.V
			}
		}
		pairs := make([][2]int, len(fdat.Pairs))
		for i, pr := range fdat.Pairs {
			if len(pr) != 2 {
				return nil, chk.Err("springs: pair %d must have two nodes. %v is invalid", i, pr)
			}
			pairs[i] = [2]int{pr[0], pr[1]}
		}
		l0 := fdat.Vals
		if l0 == nil && sim.Data.X0 != nil {
			l0 = RestLengths(sim.Data.Ndim, pairs, sim.Data.X0)
		}
		return NewSprings(sim.Data.Ndim, sim.Data.Nnodes, k, pairs, l0)
	})
}

// NewSprings returns a new Springs form
func NewSprings(ndim, nnodes int, k float64, pairs [][2]int, l0 []float64) (o *Springs, err error) {
	if k <= 0 {
		return nil, chk.Err("springs: stiffness k must be positive. k=%g", k)
	}
	if len(l0) != len(pairs) {
		return nil, chk.Err("springs: number of rest lengths must be equal to number of pairs. %d != %d", len(l0), len(pairs))
	}
	for i, pr := range pairs {
		if pr[0] < 0 || pr[0] >= nnodes || pr[1] < 0 || pr[1] >= nnodes || pr[0] == pr[1] {
			return nil, chk.Err("springs: pair %d has invalid nodes %v. nnodes=%d", i, pr, nnodes)
		}
	}
	o = new(Springs)
	o.Init("springs")
	o.Ndim = ndim
	o.K = k
	o.Pairs = pairs
	o.L0 = l0
	o.Lmin = 1e-12
	return
}

// RestLengths computes the lengths of springs at positions x
func RestLengths(ndim int, pairs [][2]int, x []float64) (l0 []float64) {
	l0 = make([]float64, len(pairs))
	d := make([]float64, ndim)
	for p, pr := range pairs {
		l0[p] = delta(d, x, pr[0], pr[1], ndim)
	}
	return
}

// Nnz returns the number of non-zeros in the Hessian
func (o *Springs) Nnz(ndof int) int { return 4 * o.Ndim * o.Ndim * len(o.Pairs) }

// Value returns E(x)
func (o *Springs) Value(x []float64) (val float64) {
	d := make([]float64, o.Ndim)
	for p, pr := range o.Pairs {
		l := delta(d, x, pr[0], pr[1], o.Ndim)
		val += o.K * (l - o.L0[p]) * (l - o.L0[p]) / 2
	}
	return
}

// AddGrad adds α・∂E/∂x to g
func (o *Springs) AddGrad(g []float64, α float64, x []float64) {
	d := make([]float64, o.Ndim)
	for p, pr := range o.Pairs {
		l := delta(d, x, pr[0], pr[1], o.Ndim)
		if l < o.Lmin {
			continue
		}
		c := α * o.K * (l - o.L0[p]) / l
		for k := 0; k < o.Ndim; k++ {
			g[pr[0]*o.Ndim+k] -= c * d[k]
			g[pr[1]*o.Ndim+k] += c * d[k]
		}
	}
}

// AddHess adds α・∂²E/∂x² to Kb
//   Kjj = Kii = -Kij = k・[(1 - ℓ0/ℓ)・I + (ℓ0/ℓ)・u⊗u]    with u = (xj - xi)/ℓ
func (o *Springs) AddHess(Kb *la.Triplet, α float64, x []float64) {
	d := make([]float64, o.Ndim)
	for p, pr := range o.Pairs {
		l := delta(d, x, pr[0], pr[1], o.Ndim)
		if l < o.Lmin {
			continue
		}
		r := o.L0[p] / l
		for a := 0; a < o.Ndim; a++ {
			for b := 0; b < o.Ndim; b++ {
				kab := r * d[a] * d[b] / (l * l)
				if a == b {
					kab += 1 - r
				}
				kab *= α * o.K
				ia, ib := pr[0]*o.Ndim+a, pr[0]*o.Ndim+b
				ja, jb := pr[1]*o.Ndim+a, pr[1]*o.Ndim+b
				Kb.Put(ia, ib, kab)
				Kb.Put(ja, jb, kab)
				Kb.Put(ia, jb, -kab)
				Kb.Put(ja, ib, -kab)
			}
		}
	}
}

// IsStepValid returns false if any spring collapses at x1
func (o *Springs) IsStepValid(x0, x1 []float64) bool {
	d := make([]float64, o.Ndim)
	for _, pr := range o.Pairs {
		if delta(d, x1, pr[0], pr[1], o.Ndim) < o.Lmin {
			return false
		}
	}
	return true
}

// delta computes d = xj - xi and returns ‖d‖
func delta(d, x []float64, i, j, ndim int) float64 {
	var sum float64
	for k := 0; k < ndim; k++ {
		d[k] = x[j*ndim+k] - x[i*ndim+k]
		sum += d[k] * d[k]
	}
	return math.Sqrt(sum)
}
