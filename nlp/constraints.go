// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"
	"sort"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/la"
	"github.com/cpmech/gosl/utl"
	"gonum.org/v1/gonum/mat"
)

// Constraint holds one row of the linear constraints
//
//   A・x = b(t)
//
type Constraint struct {
	Key   string    // "dirichlet", "periodic", "general" or "penalty"
	Eqs   []int     // equations numbers
	Coefs []float64 // coefficients of row of A
	Fcn   dbf.T     // function giving b(t)
	idx   int       // insertion index
}

// ConstraintArray is an array of Constraint's
type ConstraintArray []*Constraint

// LinearConstraints holds a set of linear equality constraints A・x = b(t) over all (full) DOFs.
//  After Build, rows are sorted according to their smallest equation number; this ordering
//  defines the permutation P such that A holds P・A0 and B holds P・b0, where A0 and b0 follow
//  the insertion order.
type LinearConstraints struct {
	Cons  ConstraintArray // constraints
	A     la.Triplet      // [nrows][nfull] matrix A; set by Build
	B     []float64       // [nrows] targets b(t); set by Build and UpdateValues
	Perm  []int           // [nrows] insertion index of each sorted row; i.e. P
	T     float64         // time corresponding to B
	Nfull int             // number of DOFs; set by Build
}

// NewLinearConstraints returns an empty set of constraints
func NewLinearConstraints() *LinearConstraints {
	return &LinearConstraints{Cons: make([]*Constraint, 0)}
}

// Len returns the number of constraints
func (o *LinearConstraints) Len() int { return len(o.Cons) }

// SetDirichlet fixes equation eq: x[eq] = fcn(t). fcn == nil means zero
func (o *LinearConstraints) SetDirichlet(eq int, fcn dbf.T) {
	o.setEqs("dirichlet", []int{eq}, []float64{1}, fcn)
}

// SetPeriodic identifies equations a and b: x[a] - x[b] = 0
func (o *LinearConstraints) SetPeriodic(a, b int) (err error) {
	if a == b {
		return chk.Err("periodic constraint requires two distinct equations. a=b=%d", a)
	}
	o.setEqs("periodic", []int{a, b}, []float64{1, -1}, nil)
	return
}

// Set sets a general constraint Σ coefs[k]・x[eqs[k]] = fcn(t). fcn == nil means zero.
// A constraint with one equation replaces an existent one-equation constraint on the same
// equation; other constraints are appended even if they share equations with existent ones.
func (o *LinearConstraints) Set(key string, eqs []int, coefs []float64, fcn dbf.T) (err error) {
	err = checkRow(key, eqs, coefs)
	if err != nil {
		return
	}
	o.setEqs(key, eqs, coefs, fcn)
	return
}

// Append appends a constraint without replacing any existent one
func (o *LinearConstraints) Append(key string, eqs []int, coefs []float64, fcn dbf.T) (err error) {
	err = checkRow(key, eqs, coefs)
	if err != nil {
		return
	}
	if fcn == nil {
		fcn = &dbf.Cte{C: 0}
	}
	o.Cons = append(o.Cons, &Constraint{Key: key, Eqs: eqs, Coefs: coefs, Fcn: fcn})
	return
}

// Build sorts the constraints and builds A and b(t)
//  nfull -- number of DOFs
//  t     -- time
func (o *LinearConstraints) Build(nfull int, t float64) (err error) {

	// check
	m := len(o.Cons)
	if m > nfull {
		return chk.Err("number of constraints (%d) must not exceed the number of DOFs (%d)", m, nfull)
	}
	nnz := 0
	for _, c := range o.Cons {
		for _, eq := range c.Eqs {
			if eq < 0 || eq >= nfull {
				return chk.Err("constraint %q has equation %d out of range [0, %d)", c.Key, eq, nfull)
			}
		}
		nnz += len(c.Eqs)
	}

	// sort constraints
	for i, c := range o.Cons {
		c.idx = i
	}
	sort.Stable(o.Cons)
	o.Perm = make([]int, m)
	for i, c := range o.Cons {
		o.Perm[i] = c.idx
		c.idx = i
	}

	// set matrix A
	o.Nfull = nfull
	o.A.Init(utl.Imax(m, 1), nfull, utl.Imax(nnz, 1))
	for i, c := range o.Cons {
		for j, eq := range c.Eqs {
			o.A.Put(i, eq, c.Coefs[j])
		}
	}
	o.UpdateValues(t)
	return
}

// UpdateValues computes b(t)
func (o *LinearConstraints) UpdateValues(t float64) {
	o.T = t
	if len(o.B) != len(o.Cons) {
		o.B = make([]float64, len(o.Cons))
	}
	for i, c := range o.Cons {
		o.B[i] = c.Fcn.F(t, nil)
	}
}

// Dense returns (P・A)ᵀ as a dense nfull×nrows matrix. It returns nil if there are no constraints
func (o *LinearConstraints) Dense() (At *mat.Dense) {
	m := len(o.Cons)
	if m == 0 || o.Nfull == 0 {
		return nil
	}
	Ad := o.A.ToDense()
	At = mat.NewDense(o.Nfull, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < o.Nfull; j++ {
			At.Set(j, i, Ad.Get(i, j))
		}
	}
	return
}

// Residual returns r = A・x - b
func (o *LinearConstraints) Residual(x []float64) (r []float64) {
	r = make([]float64, len(o.Cons))
	for i, c := range o.Cons {
		for j, eq := range c.Eqs {
			r[i] += c.Coefs[j] * x[eq]
		}
		r[i] -= o.B[i]
	}
	return
}

// MaxResidual returns max |A・x - b|
func (o *LinearConstraints) MaxResidual(x []float64) (res float64) {
	for _, r := range o.Residual(x) {
		res = math.Max(res, math.Abs(r))
	}
	return
}

// List returns a simple list logging constraints at time t
func (o *LinearConstraints) List(t float64) (l string) {
	l = "\n==================================================================\n"
	l += io.Sf("%8s%12s%8s%20s%20s\n", "row", "key", "eqs", "value @ t=0", io.Sf("value @ t=%g", t))
	l += "------------------------------------------------------------------\n"
	for i, c := range o.Cons {
		l += io.Sf("%8d%12s%8v%20.13f%20.13f\n", i, c.Key, c.Eqs, c.Fcn.F(0, nil), c.Fcn.F(t, nil))
	}
	l += "==================================================================\n"
	return
}

// auxiliary /////////////////////////////////////////////////////////////////////////////////////////

// setEqs sets/replace constraint and equations
func (o *LinearConstraints) setEqs(key string, eqs []int, coefs []float64, fcn dbf.T) {

	// zero
	if fcn == nil {
		fcn = &dbf.Cte{C: 0}
	}

	// replace existent value of single equation
	if len(eqs) == 1 {
		for _, c := range o.Cons {
			if len(c.Eqs) == 1 && c.Eqs[0] == eqs[0] {
				c.Key, c.Eqs, c.Coefs, c.Fcn = key, eqs, coefs, fcn
				return
			}
		}
	}

	// add new
	o.Cons = append(o.Cons, &Constraint{Key: key, Eqs: eqs, Coefs: coefs, Fcn: fcn})
}

// checkRow checks the sizes of a constraint row
func checkRow(key string, eqs []int, coefs []float64) (err error) {
	if len(eqs) == 0 {
		return chk.Err("constraint %q must have at least one equation", key)
	}
	if len(eqs) != len(coefs) {
		return chk.Err("constraint %q: number of equations must be equal to number of coefficients. %d != %d", key, len(eqs), len(coefs))
	}
	return
}

// minEq returns the smallest equation of constraint
func (o *Constraint) minEq() (eq int) {
	eq = o.Eqs[0]
	for _, e := range o.Eqs {
		if e < eq {
			eq = e
		}
	}
	return
}

// functions to implement Sort interface
func (o ConstraintArray) Len() int           { return len(o) }
func (o ConstraintArray) Swap(i, j int)      { o[i], o[j] = o[j], o[i] }
func (o ConstraintArray) Less(i, j int) bool { return o[i].minEq() < o[j].minEq() }

