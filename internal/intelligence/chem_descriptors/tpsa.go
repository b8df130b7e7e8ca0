package chem_descriptors

// TPSA returns the topological polar surface area (Ertl et al.) over
// nitrogen and oxygen atoms, in square angstrom.
func TPSA(m *Molecule) float64 {
	total := 0.0
	for i := range m.Atoms {
		switch m.Atoms[i].Symbol() {
		case "N":
			total += tpsaNitrogen(m, i)
		case "O":
			total += tpsaOxygen(m, i)
		}
	}
	return total
}

type bondCounts struct {
	single, double, triple, aromatic int
}

func (m *Molecule) bondCounts(i int) bondCounts {
	var c bondCounts
	for _, b := range m.BondsOf(i) {
		switch b.Order {
		case BondSingle:
			c.single++
		case BondDouble:
			c.double++
		case BondTriple, BondQuadruple:
			c.triple++
		case BondAromatic:
			c.aromatic++
		}
	}
	return c
}

// inRingOfSize reports whether atom i belongs to a ring of exactly n atoms.
func (m *Molecule) inRingOfSize(i, n int) bool {
	for _, ring := range m.Rings {
		if len(ring) != n {
			continue
		}
		for _, k := range ring {
			if k == i {
				return true
			}
		}
	}
	return false
}

func tpsaNitrogen(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	c := m.bondCounts(i)
	h := a.Hs

	if c.aromatic > 0 {
		switch {
		case a.Charge == 0 && h == 0 && c.aromatic == 2 && c.single == 0 && c.double == 0:
			return 12.89
		case a.Charge == 0 && h == 0 && c.aromatic == 3:
			return 4.41
		case a.Charge == 0 && h == 0 && c.aromatic == 2 && c.single == 1:
			return 4.93
		case a.Charge == 0 && h == 0 && c.aromatic == 2 && c.double == 1:
			return 8.39
		case a.Charge == 0 && h == 1 && c.aromatic == 2:
			return 15.79
		case a.Charge == 1 && h == 0 && c.aromatic == 3:
			return 4.10
		case a.Charge == 1 && h == 0 && c.aromatic == 2 && c.single == 1:
			return 3.88
		case a.Charge == 1 && h == 1 && c.aromatic == 2:
			return 14.14
		}
		return tpsaFallback(30.5, 8.2, m.Degree(i), h)
	}

	switch a.Charge {
	case 0:
		switch {
		case h == 0 && c.single == 3:
			if m.inRingOfSize(i, 3) {
				return 3.01
			}
			return 3.24
		case h == 0 && c.single == 1 && c.double == 1:
			return 12.36
		case h == 0 && c.triple == 1:
			return 23.79
		case h == 0 && c.single == 1 && c.double == 2:
			return 11.68
		case h == 0 && c.double == 2:
			return 13.60
		case h == 1 && c.single == 2:
			if m.inRingOfSize(i, 3) {
				return 21.94
			}
			return 12.03
		case h == 1 && c.double == 1:
			return 23.85
		case h == 2 && c.single == 1:
			return 26.02
		}
	case 1:
		switch {
		case h == 0 && c.single == 4:
			return 0.0
		case h == 0 && c.single == 2 && c.double == 1:
			return 3.01
		case h == 0 && c.single == 1 && c.triple == 1:
			return 4.36
		case h == 1 && c.single == 3:
			return 4.44
		case h == 1 && c.single == 1 && c.double == 1:
			return 13.97
		case h == 2 && c.single == 2:
			return 16.61
		case h == 2 && c.double == 1:
			return 25.59
		case h == 3 && c.single == 1:
			return 27.64
		}
	}
	return tpsaFallback(30.5, 8.2, m.Degree(i), h)
}

func tpsaOxygen(m *Molecule, i int) float64 {
	a := &m.Atoms[i]
	c := m.bondCounts(i)
	h := a.Hs

	switch {
	case a.Aromatic:
		return 13.14
	case a.Charge == 0 && h == 0 && c.single == 2:
		if m.inRingOfSize(i, 3) {
			return 12.53
		}
		return 9.23
	case a.Charge == 0 && h == 0 && c.double == 1:
		return 17.07
	case a.Charge == 0 && h == 1 && c.single == 1:
		return 20.23
	case a.Charge == -1 && h == 0 && c.single == 1:
		return 23.06
	}
	return tpsaFallback(28.5, 8.6, m.Degree(i), h)
}

// tpsaFallback is the linear estimate for environments missing from the
// contribution table.
func tpsaFallback(base, perNeighbour float64, degree, hs int) float64 {
	v := base - perNeighbour*float64(degree) + 1.5*float64(hs)
	if v < 0 {
		return 0
	}
	return v
}
