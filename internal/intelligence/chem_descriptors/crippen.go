package chem_descriptors

// Wildman-Crippen atom-type contributions to logP.  Atom typing follows the
// published classes for C, N, O, S, halogens and attached hydrogens; rare
// classes collapse into the nearest common one.
const (
	crippenC1  = 0.1441  // primary/secondary aliphatic C bonded to C only
	crippenC2  = 0.0     // tertiary/quaternary aliphatic C bonded to C only
	crippenC3  = -0.2035 // CH3X, CH2X: sp3 carbon on a heteroatom
	crippenC4  = -0.2051 // CHX, CX: substituted sp3 carbon on a heteroatom
	crippenC5  = -0.2783 // C=heteroatom
	crippenC6  = 0.1551  // C=C aliphatic
	crippenC7  = 0.0017  // acetylenic C
	crippenC8  = 0.08452 // CH3 on aromatic carbon
	crippenC9  = -0.1444 // CH3 on aromatic heteroatom
	crippenC10 = -0.0516 // CH2 on aromatic
	crippenC11 = 0.1193  // CH on aromatic
	crippenC12 = -0.0967 // C on aromatic
	crippenC14 = 0.0     // c-F
	crippenC15 = 0.245   // c-Cl
	crippenC16 = 0.198   // c-Br
	crippenC17 = 0.0     // c-I
	crippenC18 = 0.1581  // aromatic cH
	crippenC19 = 0.2955  // aromatic bridgehead
	crippenC20 = 0.2713  // c-a (biaryl)
	crippenC21 = 0.136   // c-C
	crippenC22 = 0.4619  // c-N
	crippenC23 = 0.5437  // c-O
	crippenC24 = 0.1893  // c-S
	crippenC25 = -0.8186 // c=X

	crippenH1 = 0.123   // hydrocarbon
	crippenH2 = -0.2677 // alcohol
	crippenH3 = 0.2142  // amine
	crippenH4 = 0.298   // acid

	crippenN1  = -1.019  // primary amine
	crippenN2  = -0.7096 // secondary amine
	crippenN3  = -1.027  // primary aromatic amine
	crippenN4  = -0.5188 // secondary aromatic amine
	crippenN5  = 0.08387 // imine NH
	crippenN6  = 0.1836  // substituted imine
	crippenN7  = -0.3187 // tertiary amine
	crippenN8  = -0.4458 // tertiary aromatic amine
	crippenN9  = 0.01508 // nitrile
	crippenN10 = -1.950  // protonated amine
	crippenN11 = -0.3239 // aromatic n
	crippenN12 = -1.119  // protonated aromatic n
	crippenN13 = -0.3396 // quaternary N
	crippenN14 = 0.2887  // other ionised N

	crippenO1  = 0.1552  // aromatic o
	crippenO2  = -0.2893 // alcohol
	crippenO3  = -0.0684 // aliphatic ether
	crippenO4  = -0.4195 // aromatic ether
	crippenO5  = 0.0335  // oxide on N
	crippenO6  = -0.3339 // oxide on S or P
	crippenO7  = -1.189  // other anionic O
	crippenO8  = 0.1788  // O=c
	crippenO9  = -0.1526 // aliphatic carbonyl
	crippenO10 = 0.1129  // aromatic carbonyl
	crippenO11 = 0.4833  // carbonyl between heteroatoms
	crippenO12 = -1.326  // carboxylate

	crippenS1 = 0.6482  // aliphatic S
	crippenS2 = -0.0024 // ionic S
	crippenS3 = 0.6237  // aromatic s

	crippenF  = 0.4202
	crippenCl = 0.6895
	crippenBr = 0.8456
	crippenI  = 0.8857
	crippenP  = 0.8612
)

// CrippenLogP returns the octanol/water partition coefficient estimate.
func CrippenLogP(m *Molecule) float64 {
	logp := 0.0
	for i := range m.Atoms {
		logp += crippenHeavy(m, i)
		logp += float64(m.Atoms[i].Hs) * crippenHydrogen(m, i)
	}
	return logp
}

func isHetero(a *Atom) bool {
	switch a.Symbol() {
	case "N", "O", "P", "S", "F", "Cl", "Br", "I":
		return true
	}
	return false
}

func isHalogen(a *Atom) bool {
	switch a.Symbol() {
	case "F", "Cl", "Br", "I":
		return true
	}
	return false
}

func crippenHeavy(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	switch a.Symbol() {
	case "C":
		return crippenCarbon(m, i)
	case "N":
		return crippenNitrogen(m, i)
	case "O":
		return crippenOxygen(m, i)
	case "S":
		switch {
		case a.Aromatic:
			return crippenS3
		case a.Charge != 0:
			return crippenS2
		}
		return crippenS1
	case "F":
		return crippenF
	case "Cl":
		return crippenCl
	case "Br":
		return crippenBr
	case "I":
		return crippenI
	case "P":
		return crippenP
	}
	return 0
}

func crippenCarbon(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	if a.Aromatic {
		if a.Hs > 0 {
			return crippenC18
		}
		aromaticBonds := 0
		for _, b := range m.BondsOf(i) {
			if b.Order == BondAromatic {
				aromaticBonds++
			}
		}
		if aromaticBonds >= 3 {
			return crippenC19
		}
		for _, b := range m.BondsOf(i) {
			if b.Order == BondAromatic {
				continue
			}
			sub := &m.Atoms[b.Other(i)]
			if b.Order == BondDouble {
				return crippenC25
			}
			switch {
			case sub.Is("F"):
				return crippenC14
			case sub.Is("Cl"):
				return crippenC15
			case sub.Is("Br"):
				return crippenC16
			case sub.Is("I"):
				return crippenC17
			case sub.Aromatic:
				return crippenC20
			case sub.Is("N"):
				return crippenC22
			case sub.Is("O"):
				return crippenC23
			case sub.Is("S"):
				return crippenC24
			}
			return crippenC21
		}
		return crippenC18
	}

	if m.HasBond(i, BondTriple) {
		return crippenC7
	}
	if m.HasBond(i, BondDouble) {
		if m.doubleBondedTo(i, "N", "O", "P", "S") {
			return crippenC5
		}
		return crippenC6
	}

	hetero, aromaticC, aromaticX := false, false, false
	for _, j := range m.Neighbors(i) {
		nb := &m.Atoms[j]
		switch {
		case nb.Aromatic && nb.Is("C"):
			aromaticC = true
		case nb.Aromatic:
			aromaticX = true
		case isHetero(nb):
			hetero = true
		}
	}
	switch {
	case hetero && a.Hs >= 2:
		return crippenC3
	case hetero:
		return crippenC4
	case aromaticC || aromaticX:
		switch a.Hs {
		case 3:
			if aromaticX && !aromaticC {
				return crippenC9
			}
			return crippenC8
		case 2:
			return crippenC10
		case 1:
			return crippenC11
		}
		return crippenC12
	case a.Hs >= 2 || m.Degree(i) == 0:
		return crippenC1
	}
	return crippenC2
}

func crippenNitrogen(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	if a.Aromatic {
		if a.Charge > 0 {
			return crippenN12
		}
		return crippenN11
	}
	if a.Charge > 0 {
		if a.Hs > 0 {
			return crippenN10
		}
		return crippenN13
	}
	if a.Charge < 0 {
		return crippenN14
	}
	if m.HasBond(i, BondTriple) {
		return crippenN9
	}
	if m.HasBond(i, BondDouble) {
		if a.Hs > 0 {
			return crippenN5
		}
		return crippenN6
	}
	onAromatic := false
	for _, j := range m.Neighbors(i) {
		if m.Atoms[j].Aromatic {
			onAromatic = true
		}
	}
	switch {
	case a.Hs >= 2:
		if onAromatic {
			return crippenN3
		}
		return crippenN1
	case a.Hs == 1:
		if onAromatic {
			return crippenN4
		}
		return crippenN2
	}
	if onAromatic {
		return crippenN8
	}
	return crippenN7
}

func crippenOxygen(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	if a.Aromatic {
		return crippenO1
	}
	nbs := m.Neighbors(i)
	if a.Charge < 0 {
		for _, j := range nbs {
			switch {
			case m.Atoms[j].Is("N"):
				return crippenO5
			case m.Atoms[j].Is("S"), m.Atoms[j].Is("P"):
				return crippenO6
			case m.Atoms[j].Is("C") && m.doubleBondedTo(j, "O"):
				return crippenO12
			}
		}
		return crippenO7
	}
	for _, b := range m.BondsOf(i) {
		if b.Order != BondDouble {
			continue
		}
		j := b.Other(i)
		nb := &m.Atoms[j]
		switch {
		case nb.Is("N"), nb.Is("O"):
			return crippenO5
		case nb.Is("S"), nb.Is("P"):
			return crippenO6
		case nb.Aromatic:
			return crippenO8
		}
		heteroSubs, aromaticSub := 0, false
		for _, k := range m.Neighbors(j) {
			if k == i {
				continue
			}
			if m.Atoms[k].Aromatic {
				aromaticSub = true
			}
			if isHetero(&m.Atoms[k]) {
				heteroSubs++
			}
		}
		switch {
		case heteroSubs >= 2:
			return crippenO11
		case aromaticSub:
			return crippenO10
		}
		return crippenO9
	}
	if a.Hs > 0 {
		return crippenO2
	}
	for _, j := range nbs {
		if m.Atoms[j].Aromatic {
			return crippenO4
		}
	}
	return crippenO3
}

// crippenHydrogen returns the contribution of one hydrogen on atom i.
func crippenHydrogen(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	switch a.Symbol() {
	case "C":
		return crippenH1
	case "N":
		return crippenH3
	case "O":
		for _, j := range m.Neighbors(i) {
			nb := &m.Atoms[j]
			if nb.Is("O") || nb.Is("S") {
				return crippenH4
			}
			if nb.Is("C") && !nb.Aromatic && m.HasBond(j, BondDouble) {
				return crippenH4
			}
		}
		return crippenH2
	}
	return crippenH2
}
