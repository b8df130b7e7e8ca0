package chem_descriptors

import (
	"math"

	"github.com/turtacn/potencynet/pkg/errors"
)

const (
	gasteigerIterations = 12
	gasteigerDamping    = 0.5
	// hydrogenCationChi replaces a+b+c for hydrogen when it is the donor.
	hydrogenCationChi = 20.02
)

type gasteigerParams struct{ a, b, c float64 }

func (p gasteigerParams) chi(q float64) float64 { return p.a + p.b*q + p.c*q*q }

// cationChi is the electronegativity of the +1 cation.
func (p gasteigerParams) cationChi() float64 { return p.a + p.b + p.c }

var hydrogenParams = gasteigerParams{7.17, 6.24, -0.56}

// gasteigerTable holds (a, b, c) by element and hybridization.
var gasteigerTable = map[string]map[Hybridization]gasteigerParams{
	"C": {
		HybridSP3: {7.98, 9.18, 1.88},
		HybridSP2: {8.79, 9.32, 1.51},
		HybridSP:  {10.39, 9.45, 0.73},
	},
	"N": {
		HybridSP3: {11.54, 10.82, 1.36},
		HybridSP2: {12.87, 11.15, 0.85},
		HybridSP:  {15.68, 11.70, -0.27},
	},
	"O": {
		HybridSP3: {14.18, 12.92, 1.39},
		HybridSP2: {17.07, 13.79, 0.47},
	},
	"S": {
		HybridSP3: {10.14, 9.13, 1.38},
		HybridSP2: {10.88, 9.49, 1.33},
	},
	"F":  {HybridSP3: {14.66, 13.85, 2.31}},
	"Cl": {HybridSP3: {11.00, 9.69, 1.35}},
	"Br": {HybridSP3: {10.08, 8.47, 1.16}},
	"I":  {HybridSP3: {9.90, 7.96, 0.96}},
	"P":  {HybridSP3: {8.90, 8.24, 0.96}},
}

func paramsFor(m *Molecule, i int) (gasteigerParams, bool) {
	byHyb, ok := gasteigerTable[m.Atoms[i].Symbol()]
	if !ok {
		return gasteigerParams{}, false
	}
	h := m.Hybridization(i)
	if p, ok := byHyb[h]; ok {
		return p, true
	}
	// fall back to the most saturated entry the element defines
	for _, h := range []Hybridization{HybridSP3, HybridSP2, HybridSP} {
		if p, ok := byHyb[h]; ok {
			return p, true
		}
	}
	return gasteigerParams{}, false
}

// GasteigerCharges computes Gasteiger-Marsili partial charges for the heavy
// atoms of m.  Implicit hydrogens take part in the equalization but their
// charges are not returned.  Atoms without parameters (metals, boron,
// silicon) keep their formal charge and do not exchange charge.
func GasteigerCharges(m *Molecule) ([]float64, error) {
	type node struct {
		p     gasteigerParams
		isH   bool
		inert bool
		q     float64
		neigh []int
	}

	nodes := make([]node, 0, len(m.Atoms))
	for i := range m.Atoms {
		p, ok := paramsFor(m, i)
		nodes = append(nodes, node{p: p, inert: !ok, q: float64(m.Atoms[i].Charge)})
	}
	for _, b := range m.Bonds {
		if nodes[b.A].inert || nodes[b.B].inert {
			continue
		}
		nodes[b.A].neigh = append(nodes[b.A].neigh, b.B)
		nodes[b.B].neigh = append(nodes[b.B].neigh, b.A)
	}
	for i := range m.Atoms {
		if nodes[i].inert {
			continue
		}
		for k := 0; k < m.Atoms[i].Hs; k++ {
			h := len(nodes)
			nodes = append(nodes, node{p: hydrogenParams, isH: true, neigh: []int{i}})
			nodes[i].neigh = append(nodes[i].neigh, h)
		}
	}

	chi := make([]float64, len(nodes))
	damp := 1.0
	for iter := 0; iter < gasteigerIterations; iter++ {
		for i := range nodes {
			chi[i] = nodes[i].p.chi(nodes[i].q)
		}
		damp *= gasteigerDamping
		for i := range nodes {
			dq := 0.0
			for _, j := range nodes[i].neigh {
				diff := chi[j] - chi[i]
				var denom float64
				if diff > 0 {
					denom = cationChiOf(&nodes[i].p, nodes[i].isH)
				} else {
					denom = cationChiOf(&nodes[j].p, nodes[j].isH)
				}
				dq += diff / denom
			}
			nodes[i].q += dq * damp
		}
	}

	out := make([]float64, len(m.Atoms))
	for i := range out {
		q := nodes[i].q
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return nil, errors.New(errors.ErrCodeDescriptorFailed, "Gasteiger charges diverged")
		}
		out[i] = q
	}
	return out, nil
}

func cationChiOf(p *gasteigerParams, isH bool) float64 {
	if isH {
		return hydrogenCationChi
	}
	return p.cationChi()
}
