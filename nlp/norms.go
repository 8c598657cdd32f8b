// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"github.com/cpmech/gosl/chk"
)

// GradNorm returns the norm of the gradient g (current size) using the lumped mass M as metric
//   "L2"   -- sqrt(gᵀ・M⁻¹・g)
//   "Linf" -- max |M⁻¹・g|
// Other norm types give 1.
func (o *Problem) GradNorm(g []float64, normType string) (res float64) {
	switch normType {
	case "L2":
		m := o.currentMassFor(g)
		for i, v := range g {
			res += v * v / massAt(m, i)
		}
		return math.Sqrt(res)
	case "Linf":
		m := o.currentMassFor(g)
		for i, v := range g {
			res = math.Max(res, math.Abs(v/massAt(m, i)))
		}
		return
	}
	return 1
}

// StepNorm returns the norm of the step s (current size) using the lumped mass M as metric
//   "L2"   -- sqrt(sᵀ・M・s)
//   "Linf" -- max |s|
// Other norm types give 1.
func (o *Problem) StepNorm(s []float64, normType string) (res float64) {
	switch normType {
	case "L2":
		m := o.currentMassFor(s)
		for i, v := range s {
			res += massAt(m, i) * v * v
		}
		return math.Sqrt(res)
	case "Linf":
		for _, v := range s {
			res = math.Max(res, math.Abs(v))
		}
		return
	}
	return 1
}

// GradNormRescaling returns the characteristic magnitude of gradients
//   "L2"   -- F0・L^(3/2)
//   "Linf" -- F0
// Other norm types give 1.
func (o *Problem) GradNormRescaling(normType string) float64 {
	switch normType {
	case "L2":
		return o.CharForce * math.Pow(o.CharLength, 1.5)
	case "Linf":
		return o.CharForce
	}
	return 1
}

// StepNormRescaling returns the characteristic magnitude of steps
//   "L2"   -- L^(5/2)
//   "Linf" -- L
// Other norm types give 1.
func (o *Problem) StepNormRescaling(normType string) float64 {
	switch normType {
	case "L2":
		return math.Pow(o.CharLength, 2.5)
	case "Linf":
		return o.CharLength
	}
	return 1
}

// EnergyNormRescaling returns the characteristic magnitude of energies: F0・L⁴
func (o *Problem) EnergyNormRescaling() float64 {
	return o.CharForce * math.Pow(o.CharLength, 4)
}

// currentMassFor returns the lumped mass in the current mode and checks the size of v
func (o *Problem) currentMassFor(v []float64) (m []float64) {
	m = o.CurrentLumpedMass()
	if m != nil && len(m) != len(v) {
		chk.Panic("size of vector (%d) must be equal to the current size (%d)", len(v), len(m))
	}
	return
}

func massAt(m []float64, i int) float64 {
	if m == nil {
		return 1
	}
	return m[i]
}
