package chem_descriptors

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/potencynet/pkg/errors"
)

func mustParse(t *testing.T, smiles string) *Molecule {
	t.Helper()
	m, err := Parse(smiles)
	require.NoError(t, err, smiles)
	return m
}

func TestCrippenLogP(t *testing.T) {
	tests := []struct {
		smiles string
		want   float64
	}{
		{"C", 0.6361},
		{"CCO", -0.0014},
		{"CC(=O)O", 0.0909},
		{"c1ccccc1", 1.6866},
		{"C1=CC=CC=C1", 1.6866},
	}
	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			assert.InDelta(t, tt.want, CrippenLogP(mustParse(t, tt.smiles)), 1e-4)
		})
	}
}

func TestTPSA(t *testing.T) {
	tests := []struct {
		smiles string
		want   float64
	}{
		{"CCCC", 0},
		{"CCO", 20.23},
		{"CC(=O)O", 37.30},
		{"CCN", 26.02},
		{"c1ccncc1", 12.89},
		{"COC", 9.23},
		{"CC#N", 23.79},
	}
	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			assert.InDelta(t, tt.want, TPSA(mustParse(t, tt.smiles)), 1e-6)
		})
	}
}

func TestLipinskiCounts_AceticAcid(t *testing.T) {
	m := mustParse(t, "CC(=O)O")
	assert.InDelta(t, 60.052, MolWt(m), 1e-6)
	assert.Equal(t, 24, NumValenceElectrons(m))
	assert.Equal(t, 1, NumHDonors(m))
	assert.Equal(t, 1, NumHAcceptors(m))
	assert.Equal(t, 0, NumRotatableBonds(m))
	assert.InDelta(t, 0.5, FractionCSP3(m), 1e-12)
}

func TestNumRotatableBonds(t *testing.T) {
	tests := []struct {
		smiles string
		want   int
	}{
		{"CC", 0},
		{"CCCC", 1},
		{"CCCCC", 2},
		{"c1ccccc1CC", 1},
		{"CC(C)(C)CCC", 1},
		{"FC(F)(F)CCC", 1},
		{"CC(=O)NC", 0},
		{"C1CCCCC1", 0},
		{"CC#CC", 0},
	}
	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			assert.Equal(t, tt.want, NumRotatableBonds(mustParse(t, tt.smiles)))
		})
	}
}

func TestHBondCounts(t *testing.T) {
	tests := []struct {
		smiles    string
		donors    int
		acceptors int
	}{
		{"CCN", 1, 1},
		{"c1ccncc1", 0, 1},
		{"c1cc[nH]c1", 1, 0},
		{"CC(=O)N", 1, 1},
		{"CF", 0, 1},
		{"CS", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			m := mustParse(t, tt.smiles)
			assert.Equal(t, tt.donors, NumHDonors(m))
			assert.Equal(t, tt.acceptors, NumHAcceptors(m))
		})
	}
}

func TestHallKierAlpha(t *testing.T) {
	assert.InDelta(t, -0.78, HallKierAlpha(mustParse(t, "c1ccccc1")), 1e-9)
	assert.InDelta(t, 0.0, HallKierAlpha(mustParse(t, "CCCC")), 1e-9)
	assert.InDelta(t, -0.04, HallKierAlpha(mustParse(t, "CCO")), 1e-9)
}

func TestBalabanJ(t *testing.T) {
	assert.Equal(t, 0.0, BalabanJ(mustParse(t, "C")))

	// ethane: one bond, distance sums 1 and 1, mu 0
	assert.InDelta(t, 1.0, BalabanJ(mustParse(t, "CC")), 1e-9)

	// propane: sums 3, 2, 3; two bonds
	want := 2.0 * (2 / math.Sqrt(6))
	assert.InDelta(t, want, BalabanJ(mustParse(t, "CCC")), 1e-9)

	// a counter-ion does not change the index of the main component
	assert.InDelta(t, BalabanJ(mustParse(t, "CCC")), BalabanJ(mustParse(t, "CCC.[Na+]")), 1e-9)
}

func TestBertzCT(t *testing.T) {
	assert.Equal(t, 0.0, BertzCT(mustParse(t, "C")))
	small := BertzCT(mustParse(t, "CCO"))
	large := BertzCT(mustParse(t, "c1ccc2ccccc2c1C(=O)O"))
	assert.Greater(t, small, 0.0)
	assert.Greater(t, large, small)
}

func TestGasteigerCharges(t *testing.T) {
	m := mustParse(t, "CC(=O)O")
	q, err := GasteigerCharges(m)
	require.NoError(t, err)
	require.Len(t, q, 4)

	// carbonyl carbon is the most positive heavy atom, oxygens negative
	assert.Greater(t, q[1], 0.0)
	assert.Less(t, q[2], 0.0)
	assert.Less(t, q[3], 0.0)

	// carbon draws charge from its hydrogens
	q, err = GasteigerCharges(mustParse(t, "C"))
	require.NoError(t, err)
	assert.Less(t, q[0], 0.0)
}

func TestQED(t *testing.T) {
	aspirin := QED(QEDPropertiesOf(mustParse(t, "CC(=O)Oc1ccccc1C(=O)O")))
	assert.Greater(t, aspirin, 0.4)
	assert.Less(t, aspirin, 0.7)

	withAlert := QEDPropertiesOf(mustParse(t, "CCCC=O"))
	assert.Equal(t, 1, withAlert.Alerts)
	noAlert := QEDPropertiesOf(mustParse(t, "CCCCO"))
	assert.Equal(t, 0, noAlert.Alerts)
}

func TestStructuralAlerts(t *testing.T) {
	tests := []struct {
		smiles string
		want   int
	}{
		{"CCO", 0},
		{"CC=O", 1},
		{"CCS", 1},
		{"COOC", 1},
		{"CN=NC", 1},
		{"CC(=O)Cl", 1},
		{"CN=C=O", 1},
		{"O=CCS", 2},
	}
	for _, tt := range tests {
		t.Run(tt.smiles, func(t *testing.T) {
			assert.Equal(t, tt.want, StructuralAlerts(mustParse(t, tt.smiles)))
		})
	}
}

func TestCompute_LengthAndOrder(t *testing.T) {
	for _, s := range []string{"C", "CC(=O)O", "c1ccccc1", "CC(C)Cc1ccc(cc1)C(C)C(=O)O", "C[N+](C)(C)C.[Cl-]"} {
		v, err := Compute(mustParse(t, s))
		require.NoError(t, err, s)
		assert.Len(t, v, Count, s)
	}
	assert.Equal(t, 14, Count)

	v, err := Compute(mustParse(t, "CC(=O)O"))
	require.NoError(t, err)
	mw, ok := v.Get("MolWt")
	require.True(t, ok)
	assert.InDelta(t, 60.052, mw, 1e-6)
	tpsa, _ := v.Get("TPSA")
	assert.InDelta(t, 37.30, tpsa, 1e-6)
	_, ok = v.Get("Unknown")
	assert.False(t, ok)
}

func TestCompute_Empty(t *testing.T) {
	_, err := Compute(&Molecule{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDescriptorFailed))
}

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]float64
	gets    int
	sets    int
	failGet bool
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]float64{}} }

func (c *memoryCache) GetVector(_ context.Context, smiles string) ([]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return nil, false, fmt.Errorf("connection refused")
	}
	v, ok := c.data[smiles]
	return v, ok, nil
}

func (c *memoryCache) SetVector(_ context.Context, smiles string, v []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[smiles] = append([]float64(nil), v...)
	return nil
}

func TestExtractor_Extract(t *testing.T) {
	e := NewExtractor()
	v, err := e.Extract(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Len(t, v, Count)

	_, err = e.Extract(context.Background(), "C1CC")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidSMILES))
}

func TestExtractor_ReadThroughCache(t *testing.T) {
	cache := newMemoryCache()
	e := NewExtractor(WithCache(cache))

	first, err := e.Extract(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := e.Extract(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 2, cache.gets)
}

func TestExtractor_CacheFaultFallsBack(t *testing.T) {
	cache := newMemoryCache()
	cache.failGet = true
	e := NewExtractor(WithCache(cache))

	v, err := e.Extract(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Len(t, v, Count)
}

func TestExtractor_ExtractAll(t *testing.T) {
	e := NewExtractor(WithWorkers(3))
	smiles := []string{"C", "CCO", "bad(", "c1ccccc1", "CC(=O)O"}

	vectors, failures, err := e.ExtractAll(context.Background(), smiles)
	require.NoError(t, err)
	require.Len(t, vectors, len(smiles))
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)
	assert.Equal(t, "bad(", failures[0].SMILES)
	assert.Nil(t, vectors[2])

	for i, s := range smiles {
		if i == 2 {
			continue
		}
		want, err := e.Extract(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, want, vectors[i], s)
	}
}
