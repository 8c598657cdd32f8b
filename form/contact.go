// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"math"

	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun"
	"github.com/cpmech/gosl/la"
)

// Contact implements the contact of nodes against the half-space n・p ≥ h.
//
//  The signed distance of node i is d_i = n・p_i - h. Two modes are available:
//
//   barrier: E = Σ κ・b(d_i)          with b(d) = -(d - d̂)²・ln(d/d̂) for 0 < d < d̂; zero otherwise
//   penalty: E = Σ κ/2・⟨-d_i⟩²       with the Macaulay bracket ⟨x⟩ = ramp(x)
//
//  In barrier mode, configurations with d ≤ 0 are not admissible and the maximum step size is
//  computed by a (linear) continuous collision detection.
type Contact struct {
	Base
	Ndim    int       // space dimension
	Nodes   []int     // nodes that may touch the plane
	N       []float64 // [ndim] unit normal of plane
	H       float64   // offset of plane
	Dhat    float64   // barrier activation distance d̂
	Kappa   float64   // barrier (or penalty) stiffness κ
	Penalty bool      // use penalty instead of barrier
	Eta     float64   // fraction of the distance to the plane allowed by MaxStepSize
}

// register allocator
func init() {
	SetAllocator("contact", func(sim *inp.Simulation, fdat *inp.FormData) (Form, error) {
		return newContactFromData(sim, fdat)
	})
}

// NewContact returns a new Contact form. The normal n is normalised here
func NewContact(ndim int, nodes []int, n []float64, h, dhat, kappa float64, penalty bool) (o *Contact, err error) {
	if len(n) != ndim {
		return nil, chk.Err("contact: normal must have ndim=%d components. n=%v", ndim, n)
	}
	var nn float64
	for _, v := range n {
		nn += v * v
	}
	nn = math.Sqrt(nn)
	if nn < 1e-15 {
		return nil, chk.Err("contact: normal vector must not be zero")
	}
	if kappa <= 0 {
		return nil, chk.Err("contact: stiffness κ must be positive. kappa=%g", kappa)
	}
	if !penalty && dhat <= 0 {
		return nil, chk.Err("contact: barrier activation distance must be positive. dhat=%g", dhat)
	}
	o = new(Contact)
	o.Init("contact")
	o.Ndim = ndim
	o.Nodes = nodes
	o.N = make([]float64, ndim)
	for k, v := range n {
		o.N[k] = v / nn
	}
	o.H = h
	o.Dhat = dhat
	o.Kappa = kappa
	o.Penalty = penalty
	o.Eta = 0.9
	return
}

// Nnz returns the number of non-zeros in the Hessian
func (o *Contact) Nnz(ndof int) int { return len(o.Nodes) * o.Ndim * o.Ndim }

// Dist returns the signed distance of node to the plane
func (o *Contact) Dist(x []float64, node int) (d float64) {
	for k, nk := range o.N {
		d += nk * x[node*o.Ndim+k]
	}
	return d - o.H
}

// Value returns E(x); +Inf if a node penetrates the plane in barrier mode
func (o *Contact) Value(x []float64) (val float64) {
	for _, node := range o.Nodes {
		d := o.Dist(x, node)
		if o.Penalty {
			r := fun.Ramp(-d)
			val += o.Kappa * r * r / 2
			continue
		}
		if d <= 0 {
			return math.Inf(1)
		}
		val += o.Kappa * barrier(d, o.Dhat)
	}
	return
}

// AddGrad adds α・∂E/∂x to g
func (o *Contact) AddGrad(g []float64, α float64, x []float64) {
	for _, node := range o.Nodes {
		c := α * o.dEdd(o.Dist(x, node))
		if c == 0 {
			continue
		}
		for k, nk := range o.N {
			g[node*o.Ndim+k] += c * nk
		}
	}
}

// AddHess adds α・∂²E/∂x² to Kb
func (o *Contact) AddHess(Kb *la.Triplet, α float64, x []float64) {
	for _, node := range o.Nodes {
		c := α * o.d2Edd2(o.Dist(x, node))
		if c == 0 {
			continue
		}
		for a, na := range o.N {
			for b, nb := range o.N {
				Kb.Put(node*o.Ndim+a, node*o.Ndim+b, c*na*nb)
			}
		}
	}
}

// NormalForce returns the magnitude of the contact force at node
func (o *Contact) NormalForce(x []float64, node int) float64 {
	return math.Abs(o.dEdd(o.Dist(x, node)))
}

// IsStepValid returns false if x1 penetrates the plane in barrier mode
func (o *Contact) IsStepValid(x0, x1 []float64) bool {
	if o.Penalty {
		return true
	}
	for _, node := range o.Nodes {
		if o.Dist(x1, node) <= 0 {
			return false
		}
	}
	return true
}

// IsStepCollisionFree returns whether the linear trajectory x0 → x1 does not cross the plane
func (o *Contact) IsStepCollisionFree(x0, x1 []float64) bool {
	if o.Penalty {
		return true
	}
	for _, node := range o.Nodes {
		if o.Dist(x0, node) <= 0 || o.Dist(x1, node) <= 0 {
			return false
		}
	}
	return true
}

// MaxStepSize returns the largest α ≤ 1 keeping all nodes away from the plane along x0 → x1
func (o *Contact) MaxStepSize(x0, x1 []float64) (α float64) {
	α = 1
	if o.Penalty {
		return
	}
	for _, node := range o.Nodes {
		d0, d1 := o.Dist(x0, node), o.Dist(x1, node)
		if d1 > 0 || d0 <= 0 {
			continue
		}
		α = math.Min(α, o.Eta*d0/(d0-d1))
	}
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// dEdd returns ∂E/∂d for one node
func (o *Contact) dEdd(d float64) float64 {
	if o.Penalty {
		return -o.Kappa * fun.Ramp(-d)
	}
	if d <= 0 || d >= o.Dhat {
		return 0
	}
	return o.Kappa * (-2*(d-o.Dhat)*math.Log(d/o.Dhat) - (d-o.Dhat)*(d-o.Dhat)/d)
}

// d2Edd2 returns ∂²E/∂d² for one node
func (o *Contact) d2Edd2(d float64) float64 {
	if o.Penalty {
		return o.Kappa * fun.Heav(-d)
	}
	if d <= 0 || d >= o.Dhat {
		return 0
	}
	return o.Kappa * ((o.Dhat-d)*(3*d+o.Dhat)/(d*d) - 2*math.Log(d/o.Dhat))
}

// barrier returns b(d) = -(d - d̂)²・ln(d/d̂) for 0 < d < d̂
func barrier(d, dhat float64) float64 {
	if d >= dhat {
		return 0
	}
	return -(d - dhat) * (d - dhat) * math.Log(d/dhat)
}

// newContactFromData allocates a contact form using the parameters:
//   nx, ny, nz -- components of the normal
//   h          -- offset of plane
//   dhat       -- barrier activation distance
//   kappa      -- stiffness
//   penalty    -- 1 means penalty mode
func newContactFromData(sim *inp.Simulation, fdat *inp.FormData) (o *Contact, err error) {
	ndim := sim.Data.Ndim
	n := make([]float64, ndim)
	dhat, kappa := 1e-3, 1.0
	var h float64
	var penalty bool
	for _, p := range fdat.Prms {
		switch p.N {
		case "nx":
			n[0] = p.V
		case "ny":
			if ndim > 1 {
				n[1] = p.V
			}
		case "nz":
			if ndim > 2 {
				n[2] = p.V
			}
		case "h":
			h = p.V
		case "dhat":
			dhat = p.V
		case "kappa":
			kappa = p.V
		case "penalty":
			penalty = p.V > 0
		}
	}
	for _, node := range fdat.Nodes {
		if node < 0 || node >= sim.Data.Nnodes {
			return nil, chk.Err("contact: node %d is out of range. nnodes=%d", node, sim.Data.Nnodes)
		}
	}
	return NewContact(ndim, fdat.Nodes, n, h, dhat, kappa, penalty)
}
