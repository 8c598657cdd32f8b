// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"gonum.org/v1/gonum/mat"
)

// LinSolver defines linear solvers used to solve A・x = b
type LinSolver interface {
	Solve(x []float64, A mat.Matrix, b []float64) (err error) // solves A・x = b; x is overwritten
}

// DenseSolver implements LinSolver with dense factorisations: Cholesky for symmetric positive
// definite matrices and LU (via mat.VecDense.SolveVec) otherwise
type DenseSolver struct {
	Ncalls int // number of calls to Solve
	Nchol  int // number of successful Cholesky factorisations
}

// Solve solves A・x = b
func (o *DenseSolver) Solve(x []float64, A mat.Matrix, b []float64) (err error) {
	o.Ncalls++
	m, n := A.Dims()
	if m != n || len(b) != n || len(x) != n {
		return chk.Err("linear solver: A must be square and sizes must match. A is %d×%d, len(x)=%d, len(b)=%d", m, n, len(x), len(b))
	}
	if n == 0 {
		return
	}
	bv := mat.NewVecDense(n, b)
	xv := mat.NewVecDense(n, x)

	// Cholesky
	if S, ok := A.(mat.Symmetric); ok {
		var chol mat.Cholesky
		if chol.Factorize(S) {
			err = chol.SolveVecTo(xv, bv)
			if err == nil || acceptable(err, x) {
				o.Nchol++
				return nil
			}
		}
	}

	// general
	err = xv.SolveVec(A, bv)
	if err != nil && !acceptable(err, x) {
		return chk.Err("linear solver failed:\n%v", err)
	}
	return nil
}

// acceptable returns whether a Condition warning still gives a finite solution
func acceptable(err error, x []float64) bool {
	c, ok := err.(mat.Condition)
	if !ok || math.IsInf(float64(c), 0) || math.IsNaN(float64(c)) {
		return false
	}
	for _, v := range x {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}
