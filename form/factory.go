// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package form

import (
	"github.com/iiiian/polyfem/inp"

	"github.com/cpmech/gosl/chk"
)

// AllocatorType defines a function that allocates a form
type AllocatorType func(sim *inp.Simulation, fdat *inp.FormData) (Form, error)

// New returns a new form from factory
func New(sim *inp.Simulation, fdat *inp.FormData) (f Form, err error) {
	fcn, ok := allocators[fdat.Type]
	if !ok {
		err = chk.Err("cannot get allocator for form {type=%q}", fdat.Type)
		return
	}
	f, err = fcn(sim, fdat)
	if err != nil {
		err = chk.Err("cannot allocate form {type=%q}:\n%v", fdat.Type, err)
		return
	}
	if f == nil {
		err = chk.Err("form {type=%q} is not available", fdat.Type)
		return
	}
	w := fdat.Weight
	if w == 0 {
		w = 1
	}
	f.SetWeight(w)
	f.SetEnabled(!fdat.Inact)
	return
}

// NewList allocates all forms in sim
func NewList(sim *inp.Simulation) (forms []Form, err error) {
	forms = make([]Form, len(sim.Forms))
	for i, fdat := range sim.Forms {
		forms[i], err = New(sim, fdat)
		if err != nil {
			return
		}
	}
	return
}

// SetAllocator sets a new callback function to allocate a form
func SetAllocator(formName string, fcn AllocatorType) {
	if _, ok := allocators[formName]; ok {
		chk.Panic("cannot set allocator function for %q because form name exists already", formName)
	}
	allocators[formName] = fcn
}

// GetAllocator gets callback function to allocate a form
func GetAllocator(formName string) AllocatorType {
	if fcn, ok := allocators[formName]; ok {
		return fcn
	}
	chk.Panic("cannot get allocator function for form %q", formName)
	return nil
}

// allocators holds all form allocators
var allocators = make(map[string]AllocatorType)
