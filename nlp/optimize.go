// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"github.com/cpmech/gosl/chk"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Optimize returns a gonum optimize.Problem evaluating o in the current mode.
// SolutionChanged is called before each evaluation at a new point.
func (o *Problem) Optimize() optimize.Problem {
	var last []float64
	changed := func(x []float64) {
		if last != nil && floats.Equal(last, x) {
			return
		}
		last = append(last[:0], x...)
		o.SolutionChanged(x)
	}
	return optimize.Problem{
		Func: func(x []float64) float64 {
			changed(x)
			return o.Value(x)
		},
		Grad: func(g, x []float64) {
			changed(x)
			o.Gradient(x, g)
		},
		Hess: func(H *mat.SymDense, x []float64) {
			changed(x)
			o.Hessian(x, H)
		},
	}
}

// Minimize minimises o in the current mode starting at x0 with gonum's Newton method
func Minimize(o *Problem, x0 []float64, settings *optimize.Settings) (x []float64, res *optimize.Result, err error) {
	if len(x0) != o.CurrentSize() {
		return nil, nil, chk.Err("size of initial point (%d) must be equal to the current size (%d)", len(x0), o.CurrentSize())
	}
	res, err = optimize.Minimize(o.Optimize(), x0, settings, &optimize.Newton{})
	if err != nil {
		return nil, res, chk.Err("Newton method failed:\n%v", err)
	}
	return res.X, res, nil
}

