package chem_descriptors

import (
	"github.com/turtacn/potencynet/pkg/errors"
)

// checkKekule verifies that the atoms written in lower case admit a Kekulé
// structure: every aromatic atom lies in a ring, and the atoms that need a
// ring double bond can be paired along aromatic bonds.  It must run after
// ring perception.
func (m *Molecule) checkKekule() error {
	need := make([]bool, len(m.Atoms))
	needed := false
	for i := range m.Atoms {
		if !m.Atoms[i].Aromatic {
			continue
		}
		if !m.inRing(i) {
			return errors.Newf(errors.ErrCodeMoleculeParsingFailed, "non-ring atom %d (%s) marked aromatic", i, m.Atoms[i].Symbol())
		}
		need[i] = m.needsDoubleBond(i)
		needed = needed || need[i]
	}
	if !needed {
		return nil
	}
	mate := make([]int, len(m.Atoms))
	for i := range mate {
		mate[i] = -1
	}
	if !m.pairAromatic(need, mate) {
		return errors.New(errors.ErrCodeMoleculeParsingFailed, "cannot kekulize aromatic system")
	}
	return nil
}

func (m *Molecule) inRing(i int) bool {
	for _, bi := range m.adj[i] {
		if m.Bonds[bi].InRing {
			return true
		}
	}
	return false
}

// needsDoubleBond reports whether aromatic atom i takes one of the
// alternating double bonds.  Lone-pair donors such as [nH], o and s and
// atoms that already carry a double bond do not.
func (m *Molecule) needsDoubleBond(i int) bool {
	if m.HasBond(i, BondDouble) {
		return false
	}
	a := &m.Atoms[i]
	neighbours := m.Degree(i) + a.Hs
	switch {
	case a.Is("C"):
		return a.Charge == 0
	case a.Is("N") || a.Is("P") || a.Is("As"):
		return neighbours == 2 || (neighbours == 3 && a.Charge > 0)
	case a.Is("O") || a.Is("S") || a.Is("Se") || a.Is("Te"):
		return a.Charge > 0 && neighbours == 2
	case a.Is("B"):
		return a.Charge < 0
	}
	return false
}

// pairAromatic finds a perfect matching of the needy atoms over aromatic
// bonds by backtracking, always extending the atom with the fewest free
// partners first.
func (m *Molecule) pairAromatic(need []bool, mate []int) bool {
	best, bestFree := -1, 0
	for i := range need {
		if !need[i] || mate[i] >= 0 {
			continue
		}
		free := len(m.partners(i, need, mate))
		if free == 0 {
			return false
		}
		if best < 0 || free < bestFree {
			best, bestFree = i, free
		}
	}
	if best < 0 {
		return true
	}
	for _, j := range m.partners(best, need, mate) {
		mate[best], mate[j] = j, best
		if m.pairAromatic(need, mate) {
			return true
		}
		mate[best], mate[j] = -1, -1
	}
	return false
}

func (m *Molecule) partners(i int, need []bool, mate []int) []int {
	var out []int
	for _, bi := range m.adj[i] {
		b := &m.Bonds[bi]
		if b.Order != BondAromatic {
			continue
		}
		if j := b.Other(i); need[j] && mate[j] < 0 {
			out = append(out, j)
		}
	}
	return out
}
