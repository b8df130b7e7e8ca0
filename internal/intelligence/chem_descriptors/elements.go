package chem_descriptors

// Element is one entry of the periodic table subset the parser accepts.
type Element struct {
	Number         int
	Symbol         string
	Mass           float64 // average atomic mass
	OuterElectrons int
	// Valences lists the allowed neutral valences in increasing order.  Nil
	// disables valence checking (metals).
	Valences []int
	// Radius is the covalent radius in angstrom used by Hall-Kier alpha.
	Radius float64
}

var elementTable = []Element{
	{1, "H", 1.008, 1, []int{1}, 0.23},
	{3, "Li", 6.941, 1, nil, 1.34},
	{5, "B", 10.812, 3, []int{3}, 0.82},
	{6, "C", 12.011, 4, []int{4}, 0.77},
	{7, "N", 14.007, 5, []int{3, 5}, 0.70},
	{8, "O", 15.999, 6, []int{2}, 0.66},
	{9, "F", 18.998, 7, []int{1}, 0.64},
	{11, "Na", 22.990, 1, nil, 1.54},
	{12, "Mg", 24.305, 2, nil, 1.45},
	{13, "Al", 26.982, 3, nil, 1.18},
	{14, "Si", 28.086, 4, []int{4}, 1.17},
	{15, "P", 30.974, 5, []int{3, 5}, 1.10},
	{16, "S", 32.067, 6, []int{2, 4, 6}, 1.04},
	{17, "Cl", 35.453, 7, []int{1, 3, 5, 7}, 0.99},
	{19, "K", 39.098, 1, nil, 1.96},
	{20, "Ca", 40.078, 2, nil, 1.74},
	{25, "Mn", 54.938, 7, nil, 1.39},
	{26, "Fe", 55.845, 8, nil, 1.25},
	{27, "Co", 58.933, 9, nil, 1.26},
	{28, "Ni", 58.693, 10, nil, 1.21},
	{29, "Cu", 63.546, 11, nil, 1.38},
	{30, "Zn", 65.390, 2, nil, 1.31},
	{32, "Ge", 72.610, 4, []int{4}, 1.22},
	{33, "As", 74.922, 5, []int{3, 5}, 1.19},
	{34, "Se", 78.960, 6, []int{2, 4, 6}, 1.17},
	{35, "Br", 79.904, 7, []int{1, 3, 5}, 1.14},
	{46, "Pd", 106.42, 10, nil, 1.31},
	{47, "Ag", 107.868, 11, nil, 1.53},
	{50, "Sn", 118.710, 4, []int{2, 4}, 1.40},
	{52, "Te", 127.600, 6, []int{2, 4, 6}, 1.35},
	{53, "I", 126.904, 7, []int{1, 3, 5}, 1.33},
	{78, "Pt", 195.078, 10, nil, 1.28},
	{79, "Au", 196.967, 11, nil, 1.44},
	{80, "Hg", 200.590, 2, nil, 1.49},
}

var (
	elementsBySymbol = map[string]*Element{}
	elementsByNumber = map[int]*Element{}
)

func init() {
	for i := range elementTable {
		e := &elementTable[i]
		elementsBySymbol[e.Symbol] = e
		elementsByNumber[e.Number] = e
	}
}

// wildcard is the element of the '*' atom.
var wildcard = &Element{Number: 0, Symbol: "*"}

// LookupElement returns the element for a symbol such as "C" or "Cl".
func LookupElement(symbol string) (*Element, bool) {
	e, ok := elementsBySymbol[symbol]
	return e, ok
}

// organicSubset lists the symbols that may appear outside brackets.
var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

// aromaticSymbols maps lower-case aromatic symbols to their element.
var aromaticSymbols = map[string]string{
	"b": "B", "c": "C", "n": "N", "o": "O", "p": "P", "s": "S",
	"se": "Se", "as": "As", "te": "Te",
}

// valencesFor returns the allowed valences of element e carrying formal
// charge q.  Charged atoms take the valences of their isoelectronic neutral
// neighbour in the table (N+ behaves like C, O- like F).
func valencesFor(e *Element, q int) []int {
	if e.Valences == nil {
		return nil
	}
	if q == 0 {
		return e.Valences
	}
	iso, ok := elementsByNumber[e.Number-q]
	if !ok {
		return nil
	}
	return iso.Valences
}
