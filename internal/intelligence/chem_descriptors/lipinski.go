package chem_descriptors

const hydrogenMass = 1.008

// MolWt is the average molecular weight including implicit hydrogens.
func MolWt(m *Molecule) float64 {
	w := 0.0
	for i := range m.Atoms {
		a := &m.Atoms[i]
		if a.Isotope > 0 {
			w += float64(a.Isotope)
		} else {
			w += a.Element.Mass
		}
		w += float64(a.Hs) * hydrogenMass
	}
	return w
}

// NumValenceElectrons counts outer-shell electrons of all atoms, hydrogens
// included, corrected for formal charge.
func NumValenceElectrons(m *Molecule) int {
	n := 0
	for i := range m.Atoms {
		a := &m.Atoms[i]
		n += a.Element.OuterElectrons - a.Charge + a.Hs
	}
	return n
}

// NumHDonors counts N-H and O-H/S-H donor atoms.
func NumHDonors(m *Molecule) int {
	n := 0
	for i := range m.Atoms {
		a := &m.Atoms[i]
		switch {
		case a.Is("N") && a.Hs > 0 && (a.Charge == 0 || a.Charge == 1):
			n++
		case (a.Is("O") || a.Is("S")) && a.Hs == 1 && a.Charge == 0:
			n++
		}
	}
	return n
}

// NumHAcceptors counts oxygen, sulfur, nitrogen and fluorine atoms able to
// accept a hydrogen bond.  Amide-like and conjugated nitrogens are excluded.
func NumHAcceptors(m *Molecule) int {
	n := 0
	for i := range m.Atoms {
		if isAcceptor(m, i) {
			n++
		}
	}
	return n
}

func isAcceptor(m *Molecule, i int) bool {
	a := &m.Atoms[i]
	switch a.Symbol() {
	case "O", "S":
		if a.Charge < 0 {
			return true
		}
		if a.Charge != 0 {
			return false
		}
		if a.Aromatic {
			return true
		}
		valence := m.explicitValence(i) + a.Hs
		if valence != 2 {
			return false
		}
		if a.Hs == 0 {
			return true
		}
		for _, j := range m.Neighbors(i) {
			if m.doubleBondedTo(j, "O", "N", "P", "S") {
				return false
			}
		}
		return a.Hs == 1
	case "N":
		if a.Charge != 0 {
			return false
		}
		if a.Aromatic {
			return a.Hs == 0 && m.Degree(i) == 2
		}
		if m.explicitValence(i)+a.Hs != 3 {
			return false
		}
		for _, j := range m.Neighbors(i) {
			for _, b := range m.BondsOf(j) {
				if b.Order == BondDouble && !b.InRing {
					other := &m.Atoms[b.Other(j)]
					if other.Is("O") || other.Is("N") || other.Is("P") || other.Is("S") {
						return false
					}
				}
			}
		}
		return true
	case "F":
		return true
	}
	return false
}

// NumRotatableBonds uses the strict definition: acyclic single bonds between
// two non-terminal heavy atoms, excluding bonds to triple-bonded atoms,
// trihalomethyl and tert-butyl groups and amide C-N bonds.
func NumRotatableBonds(m *Molecule) int {
	n := 0
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		if b.Order != BondSingle || b.InRing {
			continue
		}
		if m.Degree(b.A) < 2 || m.Degree(b.B) < 2 {
			continue
		}
		if m.HasBond(b.A, BondTriple) || m.HasBond(b.B, BondTriple) {
			continue
		}
		if isTerminalGroup(m, b.A, b.B) || isTerminalGroup(m, b.B, b.A) {
			continue
		}
		if isAmideBond(m, b.A, b.B) || isAmideBond(m, b.B, b.A) {
			continue
		}
		n++
	}
	return n
}

// isTerminalGroup reports whether atom i, seen from its neighbour from, is a
// CX3 or C(CH3)3 group whose rotation is not counted.
func isTerminalGroup(m *Molecule, i, from int) bool {
	a := &m.Atoms[i]
	if !a.Is("C") || m.Degree(i) != 4 {
		return false
	}
	halogens, methyls := 0, 0
	for _, j := range m.Neighbors(i) {
		if j == from {
			continue
		}
		nb := &m.Atoms[j]
		switch {
		case isHalogen(nb) && m.Degree(j) == 1:
			halogens++
		case nb.Is("C") && nb.Hs == 3 && m.Degree(j) == 1:
			methyls++
		}
	}
	return halogens == 3 || methyls == 3
}

// isAmideBond reports whether c is a trivalent carbon double bonded to N, O
// or S and n a non-terminal N, O or S on it.
func isAmideBond(m *Molecule, c, n int) bool {
	ca := &m.Atoms[c]
	if !ca.Is("C") || m.Degree(c) != 3 || !m.doubleBondedTo(c, "N", "O", "S") {
		return false
	}
	na := &m.Atoms[n]
	return (na.Is("N") || na.Is("O") || na.Is("S")) && m.Degree(n) > 1
}

// FractionCSP3 is the fraction of carbons that are sp3 hybridized.
func FractionCSP3(m *Molecule) float64 {
	carbons, sp3 := 0, 0
	for i := range m.Atoms {
		if !m.Atoms[i].Is("C") {
			continue
		}
		carbons++
		if m.Hybridization(i) == HybridSP3 {
			sp3++
		}
	}
	if carbons == 0 {
		return 0
	}
	return float64(sp3) / float64(carbons)
}
