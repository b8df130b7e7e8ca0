package chem_descriptors

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/turtacn/potencynet/pkg/errors"
)

// ---------------------------------------------------------------------------
// SMILES parser
// ---------------------------------------------------------------------------

type ringOpening struct {
	atom  int
	order BondOrder // zero when no bond symbol preceded the digit
}

type parser struct {
	src   []rune
	pos   int
	mol   *Molecule
	prev  int
	bond  BondOrder // pending bond symbol, zero if none
	stack []int
	rings map[int]ringOpening
}

// Parse reads a SMILES string into a hydrogen-suppressed Molecule with
// implicit hydrogens assigned, rings perceived and Kekulé rings aromatised.
// Malformed strings fail with MOL_001, chemically impossible ones (valence
// violations, unknown elements, aromatic systems without a Kekulé form) with
// MOL_006 or MOL_012.
func Parse(smiles string) (*Molecule, error) {
	trimmed := strings.TrimSpace(smiles)
	if trimmed == "" {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidSMILES, "empty SMILES")
	}
	p := &parser{
		src:   []rune(trimmed),
		mol:   &Molecule{SMILES: trimmed},
		prev:  -1,
		rings: map[int]ringOpening{},
	}
	if err := p.run(); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "parse SMILES").WithDetail(trimmed)
	}

	m := p.mol
	m.buildAdjacency()
	if err := m.assignHydrogens(); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "parse SMILES").WithDetail(trimmed)
	}
	m.foldExplicitHydrogens()
	m.perceiveRings()
	if err := m.checkKekule(); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "parse SMILES").WithDetail(trimmed)
	}
	m.perceiveAromaticity()
	return m, nil
}

func (p *parser) syntaxErr(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeMoleculeInvalidSMILES, "%s at position %d", fmt.Sprintf(format, args...), p.pos)
}

func (p *parser) run() error {
	lastOpen := false
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		wasOpen := lastOpen
		lastOpen = false

		switch {
		case ch == '(':
			if p.prev < 0 {
				return p.syntaxErr("branch without a preceding atom")
			}
			if p.bond != 0 {
				return p.syntaxErr("bond symbol before branch")
			}
			p.stack = append(p.stack, p.prev)
			lastOpen = true
			p.pos++

		case ch == ')':
			if len(p.stack) == 0 {
				return p.syntaxErr("unbalanced ')'")
			}
			if wasOpen {
				return p.syntaxErr("empty branch")
			}
			if p.bond != 0 {
				return p.syntaxErr("dangling bond")
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++

		case strings.ContainsRune("-=#$:/\\", ch):
			if p.prev < 0 {
				return p.syntaxErr("bond without a preceding atom")
			}
			if p.bond != 0 {
				return p.syntaxErr("consecutive bond symbols")
			}
			p.bond = bondSymbol(ch)
			p.pos++

		case ch == '.':
			if p.bond != 0 {
				return p.syntaxErr("dangling bond before '.'")
			}
			p.prev = -1
			p.pos++

		case ch == '%' || unicode.IsDigit(ch):
			if err := p.ringClosure(); err != nil {
				return err
			}

		case ch == '[':
			atom, err := p.bracketAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(atom); err != nil {
				return err
			}

		case ch == '*' || unicode.IsLetter(ch):
			atom, err := p.organicAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(atom); err != nil {
				return err
			}

		default:
			return p.syntaxErr("unexpected character %q", ch)
		}
	}

	switch {
	case p.bond != 0:
		return p.syntaxErr("dangling bond at end of input")
	case len(p.stack) > 0:
		return p.syntaxErr("unbalanced '('")
	case len(p.rings) > 0:
		for n := range p.rings {
			return p.syntaxErr("unclosed ring %d", n)
		}
	case len(p.mol.Atoms) == 0:
		return p.syntaxErr("no atoms")
	}
	return nil
}

func bondSymbol(ch rune) BondOrder {
	switch ch {
	case '=':
		return BondDouble
	case '#':
		return BondTriple
	case '$':
		return BondQuadruple
	case ':':
		return BondAromatic
	default: // '-', '/', '\'
		return BondSingle
	}
}

func (p *parser) addAtom(a Atom) error {
	idx := len(p.mol.Atoms)
	p.mol.Atoms = append(p.mol.Atoms, a)
	if p.prev >= 0 {
		if err := p.addBond(p.prev, idx, p.bond); err != nil {
			return err
		}
	}
	p.bond = 0
	p.prev = idx
	return nil
}

func (p *parser) addBond(a, b int, order BondOrder) error {
	if a == b {
		return p.syntaxErr("atom bonded to itself")
	}
	for _, existing := range p.mol.Bonds {
		if (existing.A == a && existing.B == b) || (existing.A == b && existing.B == a) {
			return p.syntaxErr("duplicate bond between atoms %d and %d", a, b)
		}
	}
	if order == 0 {
		order = BondSingle
		if p.mol.Atoms[a].Aromatic && p.mol.Atoms[b].Aromatic {
			order = BondAromatic
		}
	}
	p.mol.Bonds = append(p.mol.Bonds, Bond{A: a, B: b, Order: order})
	return nil
}

func (p *parser) ringClosure() error {
	if p.prev < 0 {
		return p.syntaxErr("ring closure without a preceding atom")
	}
	var n int
	if p.src[p.pos] == '%' {
		if p.pos+2 >= len(p.src) || !unicode.IsDigit(p.src[p.pos+1]) || !unicode.IsDigit(p.src[p.pos+2]) {
			return p.syntaxErr("'%%' must be followed by two digits")
		}
		n = int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
		p.pos += 3
	} else {
		n = int(p.src[p.pos] - '0')
		p.pos++
	}

	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringOpening{atom: p.prev, order: p.bond}
		p.bond = 0
		return nil
	}
	delete(p.rings, n)

	order := p.bond
	if open.order != 0 {
		if order != 0 && order != open.order {
			return p.syntaxErr("conflicting bond orders for ring %d", n)
		}
		order = open.order
	}
	p.bond = 0
	return p.addBond(open.atom, p.prev, order)
}

func (p *parser) organicAtom() (Atom, error) {
	ch := p.src[p.pos]
	if ch == '*' {
		p.pos++
		return Atom{Element: wildcard}, nil
	}

	// Two-letter organic symbols first: Cl, Br.
	if p.pos+1 < len(p.src) {
		two := string(p.src[p.pos : p.pos+2])
		if two == "Cl" || two == "Br" {
			p.pos += 2
			e, _ := LookupElement(two)
			return Atom{Element: e}, nil
		}
	}

	sym := string(ch)
	if upper, ok := aromaticSymbols[sym]; ok {
		if !organicSubset[upper] {
			return Atom{}, p.syntaxErr("aromatic %q must be bracketed", sym)
		}
		p.pos++
		e, _ := LookupElement(upper)
		return Atom{Element: e, Aromatic: true}, nil
	}
	if organicSubset[sym] {
		p.pos++
		e, _ := LookupElement(sym)
		return Atom{Element: e}, nil
	}
	return Atom{}, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "unknown organic-subset atom %q at position %d", sym, p.pos)
}

// bracketAtom parses [isotope? symbol chiral? hcount? charge? class?].
func (p *parser) bracketAtom() (Atom, error) {
	start := p.pos
	end := start + 1
	for end < len(p.src) && p.src[end] != ']' {
		if p.src[end] == '[' {
			return Atom{}, p.syntaxErr("nested '['")
		}
		end++
	}
	if end >= len(p.src) {
		return Atom{}, p.syntaxErr("unclosed bracket")
	}
	body := p.src[start+1 : end]
	p.pos = end + 1

	atom := Atom{Bracket: true}
	i := 0

	// isotope
	for i < len(body) && unicode.IsDigit(body[i]) {
		atom.Isotope = atom.Isotope*10 + int(body[i]-'0')
		i++
	}

	// element symbol
	if i >= len(body) {
		return Atom{}, errors.Newf(errors.ErrCodeMoleculeInvalidSMILES, "bracket atom without symbol at position %d", start)
	}
	switch {
	case body[i] == '*':
		atom.Element = wildcard
		i++
	case unicode.IsLower(body[i]):
		// aromatic: try two-letter (se, as, te) before one-letter
		if i+1 < len(body) {
			if upper, ok := aromaticSymbols[string(body[i:i+2])]; ok {
				atom.Element, _ = LookupElement(upper)
				atom.Aromatic = true
				i += 2
				break
			}
		}
		upper, ok := aromaticSymbols[string(body[i])]
		if !ok {
			return Atom{}, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "unknown aromatic atom %q at position %d", string(body[i]), start)
		}
		atom.Element, _ = LookupElement(upper)
		atom.Aromatic = true
		i++
	case unicode.IsUpper(body[i]):
		sym := string(body[i])
		if i+1 < len(body) && unicode.IsLower(body[i+1]) {
			if e, ok := LookupElement(sym + string(body[i+1])); ok {
				atom.Element = e
				i += 2
				break
			}
		}
		e, ok := LookupElement(sym)
		if !ok {
			return Atom{}, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "unknown element %q at position %d", sym, start)
		}
		atom.Element = e
		i++
	default:
		return Atom{}, errors.Newf(errors.ErrCodeMoleculeInvalidSMILES, "invalid bracket atom %q at position %d", string(body), start)
	}

	// chirality: @, @@, @TH1, @AL2, @SP3, @TB12, @OH25
	if i < len(body) && body[i] == '@' {
		j := i + 1
		if j < len(body) && body[j] == '@' {
			j++
		} else if j+1 < len(body) {
			switch string(body[j : j+2]) {
			case "TH", "AL", "SP", "TB", "OH":
				j += 2
				for j < len(body) && unicode.IsDigit(body[j]) {
					j++
				}
			}
		}
		atom.Chiral = string(body[i:j])
		i = j
	}

	// hydrogen count
	if i < len(body) && body[i] == 'H' {
		i++
		atom.Hs = 1
		if i < len(body) && unicode.IsDigit(body[i]) {
			atom.Hs = int(body[i] - '0')
			i++
		}
	}

	// charge
	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		sym := body[i]
		i++
		mag := 1
		if i < len(body) && unicode.IsDigit(body[i]) {
			mag = 0
			for i < len(body) && unicode.IsDigit(body[i]) {
				mag = mag*10 + int(body[i]-'0')
				i++
			}
		} else {
			for i < len(body) && body[i] == sym {
				mag++
				i++
			}
		}
		atom.Charge = sign * mag
	}

	// atom class
	if i < len(body) && body[i] == ':' {
		i++
		if i >= len(body) || !unicode.IsDigit(body[i]) {
			return Atom{}, errors.Newf(errors.ErrCodeMoleculeInvalidSMILES, "atom class without digits at position %d", start)
		}
		for i < len(body) && unicode.IsDigit(body[i]) {
			atom.Class = atom.Class*10 + int(body[i]-'0')
			i++
		}
	}

	if i != len(body) {
		return Atom{}, errors.Newf(errors.ErrCodeMoleculeInvalidSMILES, "unexpected %q in bracket atom at position %d", string(body[i:]), start)
	}
	return atom, nil
}

// ---------------------------------------------------------------------------
// Hydrogens and valence
// ---------------------------------------------------------------------------

// assignHydrogens gives organic-subset atoms their implicit hydrogens and
// rejects atoms whose bonding exceeds every allowed valence.
func (m *Molecule) assignHydrogens() error {
	for i := range m.Atoms {
		a := &m.Atoms[i]
		if a.Element == wildcard {
			continue
		}
		bonded := m.explicitValence(i)
		valences := valencesFor(a.Element, a.Charge)

		if a.Bracket {
			if valences == nil {
				continue
			}
			// hydrogens cannot reach the hypervalent states, so they are
			// bounded by the lowest valence
			total := bonded + a.Hs
			if total > valences[len(valences)-1] || a.Hs > valences[0] {
				return valenceError(a, i, total)
			}
			continue
		}

		if a.Aromatic {
			if bonded > valences[len(valences)-1] {
				return valenceError(a, i, bonded)
			}
			// one valence unit goes to the delocalised pi system
			h := valences[0] - bonded - 1
			if h < 0 {
				h = 0
			}
			a.Hs = h
			continue
		}

		v := smallestAtLeast(valences, bonded)
		if v < 0 {
			return valenceError(a, i, bonded)
		}
		a.Hs = v - bonded
	}
	return nil
}

func smallestAtLeast(valences []int, n int) int {
	for _, v := range valences {
		if v >= n {
			return v
		}
	}
	return -1
}

func valenceError(a *Atom, idx, valence int) error {
	return errors.Newf(errors.ErrCodeValenceViolation, "explicit valence %d of atom %d (%s) exceeds the allowed maximum", valence, idx, a.Symbol())
}

// foldExplicitHydrogens turns neutral, isotope-free [H] atoms bonded to a
// single heavy atom into hydrogen counts on that atom.
func (m *Molecule) foldExplicitHydrogens() {
	remove := make([]bool, len(m.Atoms))
	found := false
	for i := range m.Atoms {
		a := &m.Atoms[i]
		if !a.Is("H") || a.Charge != 0 || a.Isotope != 0 || m.Degree(i) != 1 {
			continue
		}
		j := m.Neighbors(i)[0]
		if m.Atoms[j].Is("H") {
			continue
		}
		// the bond to [H] already lowered the implicit count, so one
		// increment restores the total either way
		m.Atoms[j].Hs++
		remove[i] = true
		found = true
	}
	if !found {
		return
	}

	remap := make([]int, len(m.Atoms))
	atoms := m.Atoms[:0:0]
	for i, a := range m.Atoms {
		if remove[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(atoms)
		atoms = append(atoms, a)
	}
	bonds := m.Bonds[:0:0]
	for _, b := range m.Bonds {
		if remap[b.A] < 0 || remap[b.B] < 0 {
			continue
		}
		bonds = append(bonds, Bond{A: remap[b.A], B: remap[b.B], Order: b.Order})
	}
	m.Atoms = atoms
	m.Bonds = bonds
	m.buildAdjacency()
}
