package chem_descriptors

import "math"

// adsParams are the parameters of an asymmetric double sigmoid desirability
// function.
type adsParams struct {
	A, B, C, D, E, F, DMax float64
}

func (p adsParams) desirability(x float64) float64 {
	rise := 1 + math.Exp(-(x-p.C+p.D/2)/p.E)
	fall := 1 - 1/(1+math.Exp(-(x-p.C-p.D/2)/p.F))
	return (p.A + p.B/rise*fall) / p.DMax
}

var (
	qedMW     = adsParams{2.817065973, 392.5754953, 290.7489764, 2.419764353, 49.22325677, 65.37051707, 104.9805561}
	qedALogP  = adsParams{3.172690585, 137.8624751, 2.534937431, 4.581497897, 0.822739154, 0.576295591, 131.3186604}
	qedHBA    = adsParams{2.948620388, 160.4605972, 3.615294657, 4.435986202, 0.290141953, 1.300669958, 148.7763046}
	qedHBD    = adsParams{1.618662227, 1010.051101, 0.985094388, 1e-9, 0.713820843, 0.920922555, 258.1632616}
	qedPSA    = adsParams{1.876861559, 125.2232657, 62.90773554, 87.83366614, 12.01999824, 28.51324732, 104.5686167}
	qedROTB   = adsParams{0.01, 272.4121427, 2.558379970, 1.565547684, 1.271567166, 2.758063707, 105.4420403}
	qedAROM   = adsParams{3.217788970, 957.7374108, 2.274627939, 1e-9, 1.317690384, 0.375760881, 312.3372610}
	qedAlerts = adsParams{0.01, 1199.094025, -0.09002883, 1e-9, 0.185904477, 0.875193782, 417.7253140}
)

// qedWeights is the mean-weight set, in the order MW, ALOGP, HBA, HBD, PSA,
// ROTB, AROM, ALERTS.
var qedWeights = [8]float64{0.66, 0.46, 0.05, 0.61, 0.06, 0.65, 0.48, 0.95}

// QEDProperties are the eight inputs of the drug-likeness estimate.
type QEDProperties struct {
	MW, ALogP, PSA       float64
	HBA, HBD, ROTB, AROM int
	Alerts               int
}

// QEDPropertiesOf collects the QED inputs from an already parsed molecule.
func QEDPropertiesOf(m *Molecule) QEDProperties {
	return QEDProperties{
		MW:     MolWt(m),
		ALogP:  CrippenLogP(m),
		PSA:    TPSA(m),
		HBA:    NumHAcceptors(m),
		HBD:    NumHDonors(m),
		ROTB:   NumRotatableBonds(m),
		AROM:   m.AromaticRingCount(),
		Alerts: StructuralAlerts(m),
	}
}

// QED is the weighted geometric mean of the eight desirabilities.
func QED(p QEDProperties) float64 {
	d := [8]float64{
		qedMW.desirability(p.MW),
		qedALogP.desirability(p.ALogP),
		qedHBA.desirability(float64(p.HBA)),
		qedHBD.desirability(float64(p.HBD)),
		qedPSA.desirability(p.PSA),
		qedROTB.desirability(float64(p.ROTB)),
		qedAROM.desirability(float64(p.AROM)),
		qedAlerts.desirability(float64(p.Alerts)),
	}
	sumW, sumLog := 0.0, 0.0
	for k, w := range qedWeights {
		v := d[k]
		if v <= 0 {
			v = 1e-9
		}
		sumW += w
		sumLog += w * math.Log(v)
	}
	return math.Exp(sumLog / sumW)
}

// StructuralAlerts counts how many of the unwanted functional groups occur
// in m.  Each group counts once however often it matches.
func StructuralAlerts(m *Molecule) int {
	n := 0
	for _, match := range alertMatchers {
		for i := range m.Atoms {
			if match(m, i) {
				n++
				break
			}
		}
	}
	return n
}

var alertMatchers = []func(m *Molecule, i int) bool{
	// aldehyde [CX3H1](=O)
	func(m *Molecule, i int) bool {
		a := &m.Atoms[i]
		return a.Is("C") && !a.Aromatic && a.Hs >= 1 && m.doubleBondedTo(i, "O")
	},
	// thiol [SH]
	func(m *Molecule, i int) bool {
		a := &m.Atoms[i]
		return a.Is("S") && a.Hs == 1 && a.Charge == 0
	},
	// peroxide O-O
	func(m *Molecule, i int) bool {
		if !m.Atoms[i].Is("O") {
			return false
		}
		for _, b := range m.BondsOf(i) {
			if b.Order == BondSingle && m.Atoms[b.Other(i)].Is("O") {
				return true
			}
		}
		return false
	},
	// azo N=N
	func(m *Molecule, i int) bool {
		return m.Atoms[i].Is("N") && !m.Atoms[i].Aromatic && m.doubleBondedTo(i, "N")
	},
	// acyl halide C(=O)X
	func(m *Molecule, i int) bool {
		if !m.Atoms[i].Is("C") || !m.doubleBondedTo(i, "O") {
			return false
		}
		for _, j := range m.Neighbors(i) {
			if isHalogen(&m.Atoms[j]) {
				return true
			}
		}
		return false
	},
	// isocyanate N=C=O
	func(m *Molecule, i int) bool {
		return m.Atoms[i].Is("C") && m.doubleBondedTo(i, "N") && m.doubleBondedTo(i, "O")
	},
}
