// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package form implements the additive energy terms (forms) of a nonlinear problem
package form

import (
	"github.com/cpmech/gosl/la"
)

// Form defines what all energy terms must implement. All vectors are full-space vectors.
// Value, AddGrad and AddHess compute the UNWEIGHTED energy; the weight is applied by Aggregate.
type Form interface {

	// information and settings
	Name() string        // name of form; e.g. "inertia", "springs"
	Enabled() bool       // whether this form contributes to the objective
	SetEnabled(on bool)  // enable/disable this form
	Weight() float64     // weight multiplying all contributions
	SetWeight(w float64) // sets weight
	Nnz(ndof int) int    // max number of non-zeros this form puts into the Hessian triplet

	// called for each evaluation
	Value(x []float64) float64                      // returns E(x)
	AddGrad(g []float64, α float64, x []float64)    // g += α ∂E/∂x
	AddHess(Kb *la.Triplet, α float64, x []float64) // Kb += α ∂²E/∂x²

	// called by the nonlinear solver
	SolutionChanged(x []float64)          // refresh cached quantities for new iterate
	IsStepValid(x0, x1 []float64) bool    // whether x1 is admissible when coming from x0
	MaxStepSize(x0, x1 []float64) float64 // largest α ≤ 1 such that x0 + α(x1-x0) is admissible
}

// Lagger defines forms with lagged (frozen) quantities during one inner solve
type Lagger interface {
	InitLagging(x []float64)                // captures frozen state; once per time step
	UpdateLagging(x []float64, iterNum int) // refreshes frozen state after an inner solve
	MaxLaggingIterations() int              // max number of inner solves; 1 means no lagging
}

// LineSearcher defines forms caching data along one line search
type LineSearcher interface {
	LineSearchBegin(x0, x1 []float64) // called before probing trial steps from x0 towards x1
	LineSearchEnd()                   // called when the line search is over
}

// Collider defines forms with geometric (non-penetration) feasibility checks
type Collider interface {
	IsStepCollisionFree(x0, x1 []float64) bool // whether the path x0 → x1 is free of penetration
}

// TimeDependent defines forms with terms depending on time
type TimeDependent interface {
	UpdateQuantities(t float64, x []float64) // sets time t with converged solution x
}

// PostStepper defines forms that need to be notified after each accepted solver iteration
type PostStepper interface {
	PostStep(iter int, x []float64) // called with the accepted iterate
}

// PenaltyForm defines augmented Lagrangian constraints: A・x = b(t)
type PenaltyForm interface {
	Form

	NumConstraints() int                               // number of rows in A
	ConstraintRows() (dofs [][]int, coefs [][]float64) // sparse rows of A
	ConstraintValues(t float64) []float64              // b(t)
	Multipliers() []float64                            // current Lagrange multipliers λ
	UpdateMultipliers(x []float64)                     // λ -= κ (A・x - b)
	ComputeError(x []float64) float64                  // ‖A・x - b‖
	PenaltyWeight() float64                            // κ
	SetPenaltyWeight(κ float64)                        // sets κ
}

// Base implements the bookkeeping part of Form and is meant to be embedded
type Base struct {
	name     string  // name of form
	disabled bool    // form is disabled
	weight   float64 // weight
}

// Init initialises Base with weight = 1
func (o *Base) Init(name string) {
	o.name = name
	o.weight = 1
}

// Name returns the name of form
func (o *Base) Name() string { return o.name }

// Enabled returns whether form is enabled
func (o *Base) Enabled() bool { return !o.disabled }

// SetEnabled enables or disables form
func (o *Base) SetEnabled(on bool) { o.disabled = !on }

// Weight returns the weight
func (o *Base) Weight() float64 { return o.weight }

// SetWeight sets the weight
func (o *Base) SetWeight(w float64) { o.weight = w }

// SolutionChanged does nothing
func (o *Base) SolutionChanged(x []float64) {}

// IsStepValid returns true
func (o *Base) IsStepValid(x0, x1 []float64) bool { return true }

// MaxStepSize returns 1
func (o *Base) MaxStepSize(x0, x1 []float64) float64 { return 1 }
