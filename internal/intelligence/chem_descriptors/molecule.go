package chem_descriptors

import (
	"sort"
)

// BondOrder is the multiplicity of a bond.
type BondOrder int

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondQuadruple
	BondAromatic
)

// Valence returns the bond's contribution to an atom's valence, counting
// aromatic bonds as 1.5.
func (o BondOrder) Valence() float64 {
	if o == BondAromatic {
		return 1.5
	}
	return float64(o)
}

// Hybridization of a heavy atom.
type Hybridization int

const (
	HybridSP Hybridization = iota + 1
	HybridSP2
	HybridSP3
)

// Atom is a heavy atom of a parsed molecule.  Hydrogens are folded into Hs.
type Atom struct {
	Element  *Element
	Aromatic bool
	Charge   int
	Isotope  int
	Hs       int // total attached hydrogens
	Bracket  bool
	Chiral   string
	Class    int
}

// Symbol returns the element symbol.
func (a *Atom) Symbol() string { return a.Element.Symbol }

// Is reports whether the atom is of the given element.
func (a *Atom) Is(symbol string) bool { return a.Element.Symbol == symbol }

// Bond joins two atoms by index.
type Bond struct {
	A, B   int
	Order  BondOrder
	InRing bool
}

// Other returns the atom at the opposite end of the bond from i.
func (b *Bond) Other(i int) int {
	if b.A == i {
		return b.B
	}
	return b.A
}

// Molecule is a hydrogen-suppressed molecular graph.
type Molecule struct {
	SMILES string
	Atoms  []Atom
	Bonds  []Bond

	// adjacency: atom index -> indices into Bonds
	adj [][]int

	// Rings is the smallest set of smallest rings, each an ordered list of
	// atom indices.
	Rings [][]int
}

func (m *Molecule) buildAdjacency() {
	m.adj = make([][]int, len(m.Atoms))
	for bi, b := range m.Bonds {
		m.adj[b.A] = append(m.adj[b.A], bi)
		m.adj[b.B] = append(m.adj[b.B], bi)
	}
}

// BondsOf returns the bonds incident to atom i.
func (m *Molecule) BondsOf(i int) []*Bond {
	out := make([]*Bond, len(m.adj[i]))
	for k, bi := range m.adj[i] {
		out[k] = &m.Bonds[bi]
	}
	return out
}

// Neighbors returns the heavy-atom neighbours of atom i.
func (m *Molecule) Neighbors(i int) []int {
	out := make([]int, len(m.adj[i]))
	for k, bi := range m.adj[i] {
		out[k] = m.Bonds[bi].Other(i)
	}
	return out
}

// Degree is the number of heavy-atom neighbours.
func (m *Molecule) Degree(i int) int { return len(m.adj[i]) }

// BondBetween returns the bond joining i and j, or nil.
func (m *Molecule) BondBetween(i, j int) *Bond {
	for _, bi := range m.adj[i] {
		if m.Bonds[bi].Other(i) == j {
			return &m.Bonds[bi]
		}
	}
	return nil
}

// HasBond reports whether atom i has a bond of the given order.
func (m *Molecule) HasBond(i int, order BondOrder) bool {
	for _, bi := range m.adj[i] {
		if m.Bonds[bi].Order == order {
			return true
		}
	}
	return false
}

// doubleBondedTo reports whether atom i is double bonded to an atom whose
// symbol is in symbols.
func (m *Molecule) doubleBondedTo(i int, symbols ...string) bool {
	for _, bi := range m.adj[i] {
		b := &m.Bonds[bi]
		if b.Order != BondDouble {
			continue
		}
		other := &m.Atoms[b.Other(i)]
		for _, s := range symbols {
			if other.Is(s) {
				return true
			}
		}
	}
	return false
}

// explicitValence sums bond orders, counting aromatic bonds as 1.
func (m *Molecule) explicitValence(i int) int {
	v := 0
	for _, bi := range m.adj[i] {
		o := m.Bonds[bi].Order
		if o == BondAromatic {
			v++
		} else {
			v += int(o)
		}
	}
	return v
}

// TotalValence is the bond-order sum (aromatic 1.5) plus hydrogens.
func (m *Molecule) TotalValence(i int) float64 {
	v := float64(m.Atoms[i].Hs)
	for _, bi := range m.adj[i] {
		v += m.Bonds[bi].Order.Valence()
	}
	return v
}

// Hybridization derives sp/sp2/sp3 from the bonding pattern.  Heteroatoms
// with a lone pair next to a pi system count as sp2.
func (m *Molecule) Hybridization(i int) Hybridization {
	a := &m.Atoms[i]
	doubles, triples := 0, 0
	for _, bi := range m.adj[i] {
		switch m.Bonds[bi].Order {
		case BondDouble:
			doubles++
		case BondTriple, BondQuadruple:
			triples++
		}
	}
	switch {
	case triples > 0 || doubles > 1:
		return HybridSP
	case doubles == 1 || a.Aromatic:
		return HybridSP2
	}
	if (a.Is("N") || a.Is("O")) && m.Degree(i) <= 3 {
		for _, j := range m.Neighbors(i) {
			if m.Atoms[j].Aromatic || m.HasBond(j, BondDouble) || m.HasBond(j, BondTriple) {
				return HybridSP2
			}
		}
	}
	return HybridSP3
}

// Components returns the connected components as sorted atom index lists.
func (m *Molecule) Components() [][]int {
	seen := make([]bool, len(m.Atoms))
	var comps [][]int
	for start := range m.Atoms {
		if seen[start] {
			continue
		}
		var comp []int
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, i)
			for _, j := range m.Neighbors(i) {
				if !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

// ─────────────────────────────────────────────────────────────────────────────
// Ring perception
// ─────────────────────────────────────────────────────────────────────────────

// perceiveRings marks ring bonds and computes a smallest set of smallest
// rings.  Candidate rings are the shortest cycles through each ring bond;
// a minimal independent subset over GF(2) is kept, up to the cyclomatic
// number.
func (m *Molecule) perceiveRings() {
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		b.InRing = m.shortestPath(b.A, b.B, bi) != nil
	}

	nComp := len(m.Components())
	cyclomatic := len(m.Bonds) - len(m.Atoms) + nComp
	if cyclomatic <= 0 {
		m.Rings = nil
		return
	}

	seen := map[string]bool{}
	var candidates [][]int
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		if !b.InRing {
			continue
		}
		ring := m.shortestPath(b.A, b.B, bi)
		key := ringKey(ring)
		if !seen[key] {
			seen[key] = true
			candidates = append(candidates, ring)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) < len(candidates[j]) })

	var basis []bitset
	var rings [][]int
	for _, ring := range candidates {
		v := m.ringBondVector(ring)
		if reduceAgainst(basis, v).empty() {
			continue
		}
		basis = insertReduced(basis, v)
		rings = append(rings, ring)
		if len(rings) == cyclomatic {
			break
		}
	}
	m.Rings = rings
}

// shortestPath returns the atoms of the shortest path from a to b that does
// not use bond skip, or nil.
func (m *Molecule) shortestPath(a, b, skip int) []int {
	prev := make([]int, len(m.Atoms))
	for i := range prev {
		prev[i] = -1
	}
	prev[a] = a
	queue := []int{a}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if i == b {
			break
		}
		for _, bi := range m.adj[i] {
			if bi == skip {
				continue
			}
			j := m.Bonds[bi].Other(i)
			if prev[j] == -1 {
				prev[j] = i
				queue = append(queue, j)
			}
		}
	}
	if prev[b] == -1 {
		return nil
	}
	var path []int
	for i := b; i != a; i = prev[i] {
		path = append(path, i)
	}
	path = append(path, a)
	return path
}

func ringKey(ring []int) string {
	s := append([]int(nil), ring...)
	sort.Ints(s)
	key := make([]byte, 0, len(s)*3)
	for _, v := range s {
		key = append(key, byte(v>>8), byte(v), ',')
	}
	return string(key)
}

func (m *Molecule) ringBondVector(ring []int) bitset {
	v := newBitset(len(m.Bonds))
	for k := range ring {
		a, b := ring[k], ring[(k+1)%len(ring)]
		for _, bi := range m.adj[a] {
			if m.Bonds[bi].Other(a) == b {
				v.set(bi)
			}
		}
	}
	return v
}

// RingCount returns the number of rings in the smallest set.
func (m *Molecule) RingCount() int { return len(m.Rings) }

// AromaticRingCount returns the number of rings whose atoms are all aromatic.
func (m *Molecule) AromaticRingCount() int {
	n := 0
	for _, ring := range m.Rings {
		if m.allAromatic(ring) {
			n++
		}
	}
	return n
}

func (m *Molecule) allAromatic(ring []int) bool {
	for _, i := range ring {
		if !m.Atoms[i].Aromatic {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Aromaticity
// ─────────────────────────────────────────────────────────────────────────────

// perceiveAromaticity marks Kekulé rings that satisfy the 4n+2 rule as
// aromatic.  Rings written with lower-case atoms are already aromatic.
func (m *Molecule) perceiveAromaticity() {
	changed := true
	for changed {
		changed = false
		for _, ring := range m.Rings {
			if m.allAromatic(ring) || len(ring) < 5 || len(ring) > 7 {
				continue
			}
			if !m.huckel(ring) {
				continue
			}
			for k, i := range ring {
				m.Atoms[i].Aromatic = true
				if b := m.BondBetween(i, ring[(k+1)%len(ring)]); b != nil {
					b.Order = BondAromatic
				}
			}
			changed = true
		}
	}
}

// huckel counts pi electrons contributed by the ring atoms.
func (m *Molecule) huckel(ring []int) bool {
	electrons := 0
	for _, i := range ring {
		e, ok := m.piElectrons(i)
		if !ok {
			return false
		}
		electrons += e
	}
	return electrons >= 2 && (electrons-2)%4 == 0
}

func (m *Molecule) piElectrons(i int) (int, bool) {
	a := &m.Atoms[i]
	if a.Aromatic {
		if a.Is("C") || a.Is("B") {
			return 1, true
		}
		if m.Degree(i)+a.Hs == 3 && !a.Is("O") {
			if a.Is("N") && a.Charge > 0 {
				return 1, true
			}
			return 2, true
		}
		if a.Is("O") || a.Is("S") || a.Is("Se") || a.Is("Te") {
			return 2, true
		}
		return 1, true
	}
	for _, bi := range m.adj[i] {
		b := &m.Bonds[bi]
		if b.Order != BondDouble {
			continue
		}
		if m.Bonds[bi].InRing {
			return 1, true
		}
		// exocyclic C=X contributes nothing
		if a.Is("C") && !m.Atoms[b.Other(i)].Is("C") {
			return 0, true
		}
		return 0, false
	}
	if m.HasBond(i, BondTriple) {
		return 0, false
	}
	switch {
	case (a.Is("N") || a.Is("P")) && a.Charge == 0 && m.Degree(i)+a.Hs == 3:
		return 2, true
	case (a.Is("O") || a.Is("S") || a.Is("Se")) && a.Charge == 0 && m.Degree(i) == 2:
		return 2, true
	case a.Is("C") && a.Charge < 0:
		return 2, true
	}
	return 0, false
}

// ─────────────────────────────────────────────────────────────────────────────
// bitset
// ─────────────────────────────────────────────────────────────────────────────

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int) { b[i/64] |= 1 << (uint(i) % 64) }

func (b bitset) empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

func (b bitset) lowest() int {
	for wi, w := range b {
		if w == 0 {
			continue
		}
		for bit := 0; bit < 64; bit++ {
			if w&(1<<uint(bit)) != 0 {
				return wi*64 + bit
			}
		}
	}
	return -1
}

func (b bitset) has(i int) bool { return b[i/64]&(1<<(uint(i)%64)) != 0 }

func (b bitset) xor(o bitset) bitset {
	out := make(bitset, len(b))
	for i := range b {
		out[i] = b[i] ^ o[i]
	}
	return out
}

// reduceAgainst eliminates v against an echelon basis keyed by lowest bit.
func reduceAgainst(basis []bitset, v bitset) bitset {
	for _, row := range basis {
		if p := row.lowest(); p >= 0 && v.has(p) {
			v = v.xor(row)
		}
	}
	return v
}

func insertReduced(basis []bitset, v bitset) []bitset {
	v = reduceAgainst(basis, v)
	p := v.lowest()
	for k := range basis {
		if basis[k].has(p) {
			basis[k] = basis[k].xor(v)
		}
	}
	return append(basis, v)
}
