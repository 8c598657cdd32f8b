// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package inp implements the input data read from a (.sim) JSON or YAML file
package inp

import (
	"encoding/json"
	"math"
	"path/filepath"
	"strings"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/utl"
	"gopkg.in/yaml.v3"
)

// Data holds global data for simulations
type Data struct {

	// global information
	Desc    string `json:"desc" yaml:"desc"`       // description of simulation
	DirOut  string `json:"dirout" yaml:"dirout"`   // directory for output; e.g. /tmp/polyfem
	Encoder string `json:"encoder" yaml:"encoder"` // encoder name; e.g. "json" or "yaml"

	// problem definition
	Ndim   int       `json:"ndim" yaml:"ndim"`     // space dimension
	Nnodes int       `json:"nnodes" yaml:"nnodes"` // number of nodes
	X0     []float64 `json:"x0" yaml:"x0"`         // [nnodes*ndim] initial positions; nil means zero
	Mass   []float64 `json:"mass" yaml:"mass"`     // [nnodes*ndim] lumped mass; nil means identity

	// characteristic scales (only used to rescale norms)
	CharLength float64 `json:"charlength" yaml:"charlength"` // L
	CharForce  float64 `json:"charforce" yaml:"charforce"`   // F0

	// options
	Nworkers int  `json:"nworkers" yaml:"nworkers"` // number of goroutines evaluating forms
	ListBcs  bool `json:"listbcs" yaml:"listbcs"`   // list constraints after setting them
}

// SolverData holds nonlinear solver data
type SolverData struct {

	// nonlinear solver
	Type    string  `json:"type" yaml:"type"`       // nonlinear solver type: "newton" or "gonum-newton"
	NmaxIt  int     `json:"nmaxit" yaml:"nmaxit"`   // max number of Newton iterations
	Gtol    float64 `json:"gtol" yaml:"gtol"`       // tolerance on the rescaled Linf norm of the gradient
	LsMaxIt int     `json:"lsmaxit" yaml:"lsmaxit"` // max number of backtracking steps
	Armijo  float64 `json:"armijo" yaml:"armijo"`   // Armijo coefficient
	Nlag    int     `json:"nlag" yaml:"nlag"`       // max number of lagging iterations; 0 means ask the forms
	ShowR   bool    `json:"showr" yaml:"showr"`     // show residuals

	// augmented Lagrangian
	UseAL   bool    `json:"al" yaml:"al"`           // enforce all constraints with augmented Lagrangian first
	ALmaxIt int     `json:"almaxit" yaml:"almaxit"` // max number of multiplier updates
	ALtol   float64 `json:"altol" yaml:"altol"`     // tolerance on the constraints error
	Kappa   float64 `json:"kappa" yaml:"kappa"`     // initial penalty weight κ
	KappaMx float64 `json:"kappamx" yaml:"kappamx"` // max penalty weight
	Kfactor float64 `json:"kfactor" yaml:"kfactor"` // multiplier of κ when the error is not halved

	// time control
	Dt float64 `json:"dt" yaml:"dt"` // time step
	Tf float64 `json:"tf" yaml:"tf"` // final time

	// derived
	Nsteps int // number of time steps
}

// BcData holds constraint data
type BcData struct {
	Key   string    `json:"key" yaml:"key"`     // "dirichlet", "periodic" or "general"
	Dofs  []int     `json:"dofs" yaml:"dofs"`   // equations; periodic: pairs [a0,b0, a1,b1, ...]
	Coefs []float64 `json:"coefs" yaml:"coefs"` // coefficients of general constraint
	Func  string    `json:"func" yaml:"func"`   // name of target function; dirichlet: empty means x0
	Soft  bool      `json:"soft" yaml:"soft"`   // enforce with augmented Lagrangian before eliminating
}

// FormData holds the definition of one form
type FormData struct {
	Type   string     `json:"type" yaml:"type"`     // type of form; e.g. "inertia", "springs", "contact"
	Weight float64    `json:"weight" yaml:"weight"` // weight; 0 means 1
	Inact  bool       `json:"inact" yaml:"inact"`   // form starts disabled
	Prms   dbf.Params `json:"prms" yaml:"prms"`     // parameters
	Nodes  []int      `json:"nodes" yaml:"nodes"`   // nodes used by this form
	Pairs  [][]int    `json:"pairs" yaml:"pairs"`   // pairs of nodes; e.g. springs
	Vals   []float64  `json:"vals" yaml:"vals"`     // extra values; e.g. nodal forces
	Func   string     `json:"func" yaml:"func"`     // name of time function
}

// Simulation holds all simulation data
type Simulation struct {

	// input
	Data      Data        `json:"data" yaml:"data"`           // global data
	Functions FuncsData   `json:"functions" yaml:"functions"` // time functions
	Solver    SolverData  `json:"solver" yaml:"solver"`       // solver data
	Bcs       []*BcData   `json:"bcs" yaml:"bcs"`             // constraints
	Forms     []*FormData `json:"forms" yaml:"forms"`         // energy terms

	// derived
	Key  string // simulation key; e.g. mysim01.sim => mysim01
	Ndof int    // number of degrees of freedom == nnodes * ndim
}

// ReadSim reads all simulation data from a .sim (JSON) or .yaml file
func ReadSim(simfilepath string) (o *Simulation, err error) {

	// read file
	b, err := ReadFile(simfilepath)
	if err != nil {
		return nil, chk.Err("cannot read simulation file %q:\n%v", simfilepath, err)
	}

	// set default values
	o = new(Simulation)
	o.Data.SetDefault()
	o.Solver.SetDefault()

	// decode
	ext := strings.ToLower(filepath.Ext(simfilepath))
	if ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(b, o)
	} else {
		err = json.Unmarshal(b, o)
	}
	if err != nil {
		return nil, chk.Err("cannot unmarshal simulation file %q:\n%v", simfilepath, err)
	}
	o.Key = io.FnKey(filepath.Base(simfilepath))

	// derived
	err = o.PostProcess()
	return
}

// PostProcess checks data and computes derived quantities
func (o *Simulation) PostProcess() (err error) {
	if o.Data.Ndim < 1 || o.Data.Nnodes < 1 {
		return chk.Err("ndim and nnodes must be positive. ndim=%d nnodes=%d", o.Data.Ndim, o.Data.Nnodes)
	}
	o.Ndof = o.Data.Ndim * o.Data.Nnodes
	if o.Data.X0 != nil && len(o.Data.X0) != o.Ndof {
		return chk.Err("size of x0 must be equal to ndof. %d != %d", len(o.Data.X0), o.Ndof)
	}
	if o.Data.Mass != nil && len(o.Data.Mass) != o.Ndof {
		return chk.Err("size of mass must be equal to ndof. %d != %d", len(o.Data.Mass), o.Ndof)
	}
	if o.Data.Encoder != "json" && o.Data.Encoder != "yaml" {
		return chk.Err("encoder must be \"json\" or \"yaml\". %q is invalid", o.Data.Encoder)
	}
	for _, bc := range o.Bcs {
		switch bc.Key {
		case "dirichlet":
		case "periodic":
			if len(bc.Dofs)%2 != 0 {
				return chk.Err("periodic constraint requires pairs of dofs. dofs=%v", bc.Dofs)
			}
		case "general":
			if len(bc.Coefs) != len(bc.Dofs) {
				return chk.Err("general constraint requires one coefficient per dof. dofs=%v coefs=%v", bc.Dofs, bc.Coefs)
			}
		default:
			return chk.Err("constraint key %q is invalid", bc.Key)
		}
		for _, eq := range bc.Dofs {
			if eq < 0 || eq >= o.Ndof {
				return chk.Err("constraint %q has dof %d out of range [0, %d)", bc.Key, eq, o.Ndof)
			}
		}
	}
	for _, f := range o.Forms {
		if f.Weight == 0 {
			f.Weight = 1
		}
	}
	o.Solver.PostProcess()
	return
}

// ReadFile reads file fn; panics of the reader are returned as errors
func ReadFile(fn string) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, chk.Err("%v", r)
		}
	}()
	b = io.ReadFile(fn)
	return
}

// GetFunc returns the function named 'name' or zero if name is empty
func (o *Simulation) GetFunc(name string) (fcn dbf.T, err error) {
	return o.Functions.Get(name)
}

// SetDefault sets default values
func (o *Data) SetDefault() {
	o.DirOut = "/tmp/polyfem"
	o.Encoder = "json"
	o.CharLength = 1
	o.CharForce = 1
	o.Nworkers = 1
}

// SetDefault sets default values
func (o *SolverData) SetDefault() {

	// nonlinear solver
	o.Type = "newton"
	o.NmaxIt = 50
	o.Gtol = 1e-8
	o.LsMaxIt = 30
	o.Armijo = 1e-4

	// augmented Lagrangian
	o.ALmaxIt = 20
	o.ALtol = 1e-8
	o.Kappa = 1e3
	o.KappaMx = 1e8
	o.Kfactor = 2

	// time control
	o.Dt = 1
	o.Tf = 1
}

// PostProcess computes derived values
func (o *SolverData) PostProcess() {
	o.Nsteps = utl.Imax(1, int(math.Ceil(o.Tf/o.Dt-1e-10)))
}
