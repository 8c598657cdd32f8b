// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fem

import (
	"encoding/json"
	"path/filepath"

	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"gopkg.in/yaml.v3"
)

// Summary records the results of each time step
type Summary struct {

	// main data
	Key   string    `json:"key" yaml:"key"`     // simulation key
	Ndof  int       `json:"ndof" yaml:"ndof"`   // number of DOFs
	Nred  int       `json:"nred" yaml:"nred"`   // size of reduced space
	Times []float64 `json:"times" yaml:"times"` // [nsteps] times

	// per time step
	Niters   []int       `json:"niters" yaml:"niters"`     // [nsteps] number of Newton iterations
	Nlags    []int       `json:"nlags" yaml:"nlags"`       // [nsteps] number of lagging iterations
	Nals     []int       `json:"nals" yaml:"nals"`         // [nsteps] number of multiplier updates
	Gnorms   []float64   `json:"gnorms" yaml:"gnorms"`     // [nsteps] rescaled gradient norms
	Energies []float64   `json:"energies" yaml:"energies"` // [nsteps] energies
	Resids   []float64   `json:"resids" yaml:"resids"`     // [nsteps] max residuals of constraints
	X        [][]float64 `json:"x" yaml:"x"`               // [nsteps][ndof] solutions
}

// Append appends results of one time step
func (o *Summary) Append(t float64, nlag int, stats *Stats, resid float64, x []float64) {
	o.Times = append(o.Times, t)
	o.Niters = append(o.Niters, stats.Nit)
	o.Nlags = append(o.Nlags, nlag)
	o.Nals = append(o.Nals, stats.Nal)
	o.Gnorms = append(o.Gnorms, stats.Gnorm)
	o.Energies = append(o.Energies, stats.Energy)
	o.Resids = append(o.Resids, resid)
	o.X = append(o.X, append([]float64{}, x...))
}

// Nsteps returns the number of recorded time steps
func (o *Summary) Nsteps() int { return len(o.Times) }

// Save saves summary to dirout/key.sum using encoder "json" or "yaml"
func (o *Summary) Save(dirout, encType string) (err error) {
	var b []byte
	switch encType {
	case "json":
		b, err = json.MarshalIndent(o, "", "  ")
	case "yaml":
		b, err = yaml.Marshal(o)
	default:
		return chk.Err("cannot save summary: encoder %q is not available", encType)
	}
	if err != nil {
		return chk.Err("cannot encode summary:\n%v", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = chk.Err("cannot write summary:\n%v", r)
		}
	}()
	io.WriteBytesToFileD(dirout, o.Key+".sum", b)
	return
}

// ReadSummary reads summary back
func ReadSummary(dirout, key, encType string) (o *Summary, err error) {
	b, err := inp.ReadFile(filepath.Join(dirout, key+".sum"))
	if err != nil {
		return nil, chk.Err("cannot read summary:\n%v", err)
	}
	o = new(Summary)
	switch encType {
	case "json":
		err = json.Unmarshal(b, o)
	case "yaml":
		err = yaml.Unmarshal(b, o)
	default:
		return nil, chk.Err("cannot read summary: encoder %q is not available", encType)
	}
	if err != nil {
		return nil, chk.Err("cannot decode summary:\n%v", err)
	}
	return
}
