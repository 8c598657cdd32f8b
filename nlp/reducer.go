// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"gonum.org/v1/gonum/mat"
)

// Reducer eliminates the linear constraints A・x = b by means of the QR factorisation of (P・A)ᵀ
//
//   (P・A)ᵀ = Q・R = [Q1 Q2]・| R1 |      Q1: nfull×rank    Q2: nfull×nred    R1: rank×rank
//                             | 0  |
//
//  Since P・A・Q1 = R1ᵀ and P・A・Q2 = 0, all vectors satisfying the constraints are written as
//
//   x = offset + Q2・xr    with   offset = Q1・(R1ᵀ \ P・b)
//
//  The columns of Q1 span the constrained subspace (range of Aᵀ) and the columns of Q2 span the
//  free subspace. Thus xr = Q2ᵀ・(x - offset), gr = Q2ᵀ・g and Hr = Q2ᵀ・H・Q2.
type Reducer struct {
	Nfull  int        // number of DOFs of the full space
	Rank   int        // number of constraints == rank of A
	Nred   int        // size of the reduced space == Nfull - Rank
	Q1     *mat.Dense // [nfull][rank] basis of constrained subspace; nil if Rank == 0
	Q2     *mat.Dense // [nfull][nred] basis of free subspace; nil if Nred == 0
	R1     *mat.Dense // [rank][rank] upper triangular factor; nil if Rank == 0
	Offset []float64  // [nfull] particular solution of A・x = b
	Tol    float64    // relative tolerance on the diagonal of R1 to detect singularity

	// auxiliary
	solver LinSolver  // solver for R1ᵀ・y = P・b
	tmp    *mat.Dense // [nfull][nred] H・Q2
}

// NewReducer factorises the constraints and computes the offset. cons must have been built.
//  Errors are returned if the constraints are redundant or inconsistent (singular R1).
func NewReducer(cons *LinearConstraints, solver LinSolver) (o *Reducer, err error) {

	// check
	if solver == nil {
		return nil, chk.Err("reducer requires a linear solver")
	}
	nfull := cons.Nfull
	rank := cons.Len()
	if rank > nfull {
		return nil, chk.Err("number of constraints (%d) must not exceed the number of DOFs (%d)", rank, nfull)
	}

	// new object
	o = new(Reducer)
	o.Nfull = nfull
	o.Rank = rank
	o.Nred = nfull - rank
	o.Tol = 1e-10
	o.solver = solver
	o.Offset = make([]float64, nfull)

	// no constraints: Q2 = I
	if rank == 0 {
		if nfull > 0 {
			o.Q2 = mat.NewDense(nfull, nfull, nil)
			for i := 0; i < nfull; i++ {
				o.Q2.Set(i, i, 1)
			}
		}
		return
	}

	// factorise
	var qr mat.QR
	var Q, R mat.Dense
	qr.Factorize(cons.Dense())
	qr.QTo(&Q)
	qr.RTo(&R)

	// R1 and check singularity
	o.R1 = mat.DenseCopyOf(R.Slice(0, rank, 0, rank))
	var rmax float64
	for i := 0; i < rank; i++ {
		rmax = math.Max(rmax, math.Abs(o.R1.At(i, i)))
	}
	for i := 0; i < rank; i++ {
		if rmax == 0 || math.Abs(o.R1.At(i, i)) <= o.Tol*rmax {
			return nil, chk.Err("constraints are linearly dependent: R1 is singular (|R1[%d,%d]| = %g, max = %g)", i, i, math.Abs(o.R1.At(i, i)), rmax)
		}
	}

	// Q1 and Q2
	o.Q1 = mat.DenseCopyOf(Q.Slice(0, nfull, 0, rank))
	if o.Nred > 0 {
		o.Q2 = mat.DenseCopyOf(Q.Slice(0, nfull, rank, nfull))
	}

	// offset
	err = o.UpdateOffset(cons.B)
	return
}

// UpdateOffset computes offset = Q1・(R1ᵀ \ pb) where pb = P・b are the (sorted) targets
func (o *Reducer) UpdateOffset(pb []float64) (err error) {
	if len(pb) != o.Rank {
		chk.Panic("size of targets (%d) must be equal to the number of constraints (%d)", len(pb), o.Rank)
	}
	for i := range o.Offset {
		o.Offset[i] = 0
	}
	if o.Rank == 0 {
		return
	}
	y := make([]float64, o.Rank)
	err = o.solver.Solve(y, o.R1.T(), pb)
	if err != nil {
		return chk.Err("cannot compute particular solution of constraints:\n%v", err)
	}
	off := mat.NewVecDense(o.Nfull, o.Offset)
	off.MulVec(o.Q1, mat.NewVecDense(o.Rank, y))
	return
}

// FullToReduced computes xr = Q2ᵀ・(x - offset)
func (o *Reducer) FullToReduced(xr, x []float64) {
	o.check(xr, x)
	if o.Nred == 0 {
		return
	}
	d := make([]float64, o.Nfull)
	for i := range d {
		d[i] = x[i] - o.Offset[i]
	}
	res := mat.NewVecDense(o.Nred, xr)
	res.MulVec(o.Q2.T(), mat.NewVecDense(o.Nfull, d))
}

// ReducedToFull computes x = offset + Q2・xr
func (o *Reducer) ReducedToFull(x, xr []float64) {
	o.check(xr, x)
	if o.Nred == 0 {
		copy(x, o.Offset)
		return
	}
	res := mat.NewVecDense(o.Nfull, x)
	res.MulVec(o.Q2, mat.NewVecDense(o.Nred, xr))
	for i := range x {
		x[i] += o.Offset[i]
	}
}

// FullToReducedGrad computes gr = Q2ᵀ・g
func (o *Reducer) FullToReducedGrad(gr, g []float64) {
	o.check(gr, g)
	if o.Nred == 0 {
		return
	}
	res := mat.NewVecDense(o.Nred, gr)
	res.MulVec(o.Q2.T(), mat.NewVecDense(o.Nfull, g))
}

// FullHessianToReduced computes Hr = Q2ᵀ・H・Q2 (symmetrised)
func (o *Reducer) FullHessianToReduced(Hr *mat.SymDense, H mat.Symmetric) {
	if H.SymmetricDim() != o.Nfull {
		chk.Panic("size of full Hessian (%d) must be equal to %d", H.SymmetricDim(), o.Nfull)
	}
	prepareSym(Hr, o.Nred)
	if o.Nred == 0 {
		return
	}
	if o.tmp == nil {
		o.tmp = mat.NewDense(o.Nfull, o.Nred, nil)
	}
	o.tmp.Mul(H, o.Q2)
	var red mat.Dense
	red.Mul(o.Q2.T(), o.tmp)
	for i := 0; i < o.Nred; i++ {
		for j := i; j < o.Nred; j++ {
			Hr.SetSym(i, j, (red.At(i, j)+red.At(j, i))/2)
		}
	}
}

// ReducedLumpedMass returns diag(Q2ᵀ・M・Q2) where M = diag(m). It returns nil if m is nil
// (identity), because the columns of Q2 are orthonormal
func (o *Reducer) ReducedLumpedMass(m []float64) (mr []float64) {
	if m == nil {
		return nil
	}
	if len(m) != o.Nfull {
		chk.Panic("size of lumped mass (%d) must be equal to %d", len(m), o.Nfull)
	}
	mr = make([]float64, o.Nred)
	for j := 0; j < o.Nred; j++ {
		for i := 0; i < o.Nfull; i++ {
			q := o.Q2.At(i, j)
			mr[j] += q * q * m[i]
		}
	}
	return
}

// check checks sizes of reduced and full vectors
func (o *Reducer) check(reduced, full []float64) {
	if len(reduced) != o.Nred || len(full) != o.Nfull {
		chk.Panic("sizes of reduced (%d) and full (%d) vectors must be equal to %d and %d", len(reduced), len(full), o.Nred, o.Nfull)
	}
}

// prepareSym resizes or checks the size of a symmetric matrix
func prepareSym(S *mat.SymDense, n int) {
	if S.IsEmpty() {
		if n > 0 {
			S.ReuseAsSym(n)
		}
		return
	}
	if S.SymmetricDim() != n {
		chk.Panic("size of symmetric matrix (%d) must be equal to %d", S.SymmetricDim(), n)
	}
}
