package chem_descriptors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// carbonSP3Radius is the covalent radius Hall-Kier alpha is relative to.
const carbonSP3Radius = 0.77

// hallKierTable holds alpha corrections indexed by [sp, sp2, sp3].  NaN marks
// a combination with no published value.
var hallKierTable = map[string][3]float64{
	"C":  {-0.22, -0.13, 0},
	"N":  {-0.29, -0.20, -0.04},
	"O":  {math.NaN(), -0.20, -0.04},
	"F":  {math.NaN(), math.NaN(), -0.07},
	"Cl": {math.NaN(), math.NaN(), 0.29},
	"Br": {math.NaN(), math.NaN(), 0.48},
	"I":  {math.NaN(), math.NaN(), 0.73},
	"P":  {math.NaN(), 0.30, 0.43},
	"S":  {math.NaN(), 0.22, 0.35},
}

// HallKierAlpha sums the per-atom size and hybridization corrections of the
// kappa shape indices.
func HallKierAlpha(m *Molecule) float64 {
	alpha := 0.0
	for i := range m.Atoms {
		a := &m.Atoms[i]
		v := math.NaN()
		if row, ok := hallKierTable[a.Symbol()]; ok {
			switch m.Hybridization(i) {
			case HybridSP:
				v = row[0]
			case HybridSP2:
				v = row[1]
			default:
				v = row[2]
			}
		}
		if math.IsNaN(v) {
			v = a.Element.Radius/carbonSP3Radius - 1
		}
		alpha += v
	}
	return alpha
}

// BertzCT is a complexity index combining the information content of the
// bond-connection classes and of the element classes of the heavy atoms.
func BertzCT(m *Molecule) float64 {
	connections := map[string]int{}
	total := 0
	for i := range m.Atoms {
		bonds := m.BondsOf(i)
		for x := 0; x < len(bonds); x++ {
			for y := x + 1; y < len(bonds); y++ {
				ends := []string{
					bondClass(m, bonds[x], i),
					bondClass(m, bonds[y], i),
				}
				sort.Strings(ends)
				key := fmt.Sprintf("%s|%s|%s", m.Atoms[i].Symbol(), ends[0], ends[1])
				w := multiplicity(bonds[x].Order) * multiplicity(bonds[y].Order)
				connections[key] += w
				total += w
			}
		}
	}

	elements := map[string]int{}
	for i := range m.Atoms {
		elements[m.Atoms[i].Symbol()]++
	}

	return informationContent(total, connections) + informationContent(len(m.Atoms), elements)
}

func bondClass(m *Molecule, b *Bond, from int) string {
	return fmt.Sprintf("%d%s", b.Order, m.Atoms[b.Other(from)].Symbol())
}

func multiplicity(o BondOrder) int {
	switch o {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondQuadruple:
		return 4
	}
	return 1
}

// informationContent is n*log2(n) - sum(n_k*log2(n_k)), scaled by two for
// the total term as in Bertz's formulation.
func informationContent(n int, classes map[string]int) float64 {
	if n <= 1 {
		return 0
	}
	v := 2 * float64(n) * math.Log2(float64(n))
	for _, c := range classes {
		if c > 0 {
			v -= float64(c) * math.Log2(float64(c))
		}
	}
	return v
}

// BalabanJ is Balaban's distance connectivity index computed on the
// largest connected component with bond-order weighted distances.
func BalabanJ(m *Molecule) float64 {
	if len(m.Bonds) == 0 {
		return 0
	}
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := range m.Atoms {
		g.AddNode(simple.Node(i))
	}
	for _, b := range m.Bonds {
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(b.A), simple.Node(b.B), 1/b.Order.Valence()))
	}

	comp := largestComponent(topo.ConnectedComponents(g))
	inComp := make(map[int64]bool, len(comp))
	for _, n := range comp {
		inComp[n.ID()] = true
	}

	paths, _ := path.FloydWarshall(g)
	distSum := make(map[int64]float64, len(comp))
	for _, u := range comp {
		s := 0.0
		for _, v := range comp {
			if u.ID() != v.ID() {
				s += paths.Weight(u.ID(), v.ID())
			}
		}
		distSum[u.ID()] = s
	}

	edges, sum := 0, 0.0
	for _, b := range m.Bonds {
		if !inComp[int64(b.A)] {
			continue
		}
		edges++
		sum += 1 / math.Sqrt(distSum[int64(b.A)]*distSum[int64(b.B)])
	}
	mu := edges - len(comp) + 1
	return float64(edges) / float64(mu+1) * sum
}

func largestComponent(comps [][]graph.Node) []graph.Node {
	var best []graph.Node
	for _, c := range comps {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}
