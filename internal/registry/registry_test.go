package registry

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const limsFixture = `
CREATE TABLE organisms (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE projects (id INTEGER PRIMARY KEY, code TEXT);
CREATE TABLE structures (id INTEGER PRIMARY KEY, acronym TEXT);
CREATE TABLE donors (id INTEGER PRIMARY KEY, external_donor_name TEXT, full_genotype TEXT, organism_id INTEGER);
CREATE TABLE specimens (id INTEGER PRIMARY KEY, name TEXT, patched_cell_container TEXT,
	donor_id INTEGER, project_id INTEGER, structure_id INTEGER);

INSERT INTO organisms VALUES (1, 'Mus musculus');
INSERT INTO projects VALUES (1, 'mIVSCC-MET');
INSERT INTO structures VALUES (1, 'VISp5');
INSERT INTO donors VALUES (1, '384010', 'Sst-IRES-Cre/wt;Ai14/wt', 1);
INSERT INTO donors VALUES (2, '390001', NULL, NULL);
INSERT INTO specimens VALUES (1, 'Sst-IRES-Cre;Ai14-384010.05.01.01', 'P1S4_180314_007_A01', 1, 1, 1);
INSERT INTO specimens VALUES (2, 'Sst-IRES-Cre;Ai14-384010.05.01.02', 'P1S4_180314_008_A01', 1, 1, NULL);
INSERT INTO specimens VALUES (3, 'Vip-IRES-Cre-390001.03.02.01', 'P2S4_180402_001_A01', 2, NULL, NULL);
`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "lims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(limsFixture)
	require.NoError(t, err)
	return New(db, "sqlite3")
}

// ============================================================================
// Queries
// ============================================================================

func TestSamplesByDateRange(t *testing.T) {
	r := newTestRegistry(t)

	samples, err := r.SamplesByDateRange(context.Background(), "180301", "180331")
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, Sample{
		Container:  "P1S4_180314_007_A01",
		CellName:   "Sst-IRES-Cre;Ai14-384010.05.01.01",
		SpecimenID: "384010",
		Genotype:   "Sst-IRES-Cre/wt;Ai14/wt",
		Species:    "Mus musculus",
		Project:    "mIVSCC-MET",
		Structure:  "VISp5",
	}, samples[0])
	assert.Equal(t, "P1S4_180314_008_A01", samples[1].Container)
	assert.Empty(t, samples[1].Structure)
}

func TestSamplesByDateRange_RejectsBadDates(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.SamplesByDateRange(context.Background(), "2018-03-01", "180331")
	assert.Error(t, err)
}

func TestSampleByContainer(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	s, err := r.SampleByContainer(ctx, "P2S4_180402_001_A01")
	require.NoError(t, err)
	assert.Equal(t, "Vip-IRES-Cre-390001.03.02.01", s.CellName)
	assert.Empty(t, s.Species)

	_, err = r.SampleByContainer(ctx, "P9S4_180402_001_A01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, DriverPostgres, "")
	assert.Error(t, err)

	_, err = Open(ctx, "oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported")
}

func TestNew_Placeholders(t *testing.T) {
	assert.Equal(t, "$2", New(nil, DriverPostgres).placeholder(2))
	assert.Equal(t, "?", New(nil, DriverMySQL).placeholder(2))
}

// ============================================================================
// Reconcile
// ============================================================================

func TestReconcile(t *testing.T) {
	entries := []Entry{
		{Container: "P1S4_180314_008_A01", Specimen: "wrong-name", Source: "b.json"},
		{Container: "P1S4_180314_007_A01", Specimen: "Sst-IRES-Cre;Ai14-384010.05.01.01", Source: "a.json"},
		{Container: "P3S4_180320_004_A01", Specimen: "Pvalb-001.01.01.01", Source: "c.json"},
	}
	samples := []Sample{
		{Container: "P2S4_180402_001_A01", CellName: "Vip-IRES-Cre-390001.03.02.01"},
		{Container: "P1S4_180314_007_A01", CellName: "Sst-IRES-Cre;Ai14-384010.05.01.01"},
		{Container: "P1S4_180314_008_A01", CellName: "Sst-IRES-Cre;Ai14-384010.05.01.02"},
	}

	rep := Reconcile(entries, samples)

	assert.Equal(t, []Match{{
		Container:    "P1S4_180314_007_A01",
		JEMSpecimen:  "Sst-IRES-Cre;Ai14-384010.05.01.01",
		LIMSSpecimen: "Sst-IRES-Cre;Ai14-384010.05.01.01",
		Source:       "a.json",
	}}, rep.Matched)
	require.Len(t, rep.Mismatched, 1)
	assert.Equal(t, "wrong-name", rep.Mismatched[0].JEMSpecimen)
	assert.Equal(t, []Entry{entries[2]}, rep.OnlyJEM)
	assert.Equal(t, []Sample{samples[0]}, rep.OnlyLIMS)
	assert.False(t, rep.Consistent())
}

func TestReconcile_Empty(t *testing.T) {
	rep := Reconcile(nil, nil)
	assert.True(t, rep.Consistent())
	assert.NotNil(t, rep.Matched)
	assert.NotNil(t, rep.OnlyLIMS)
}

func TestDateRange(t *testing.T) {
	from, to, ok := DateRange([]Entry{
		{Container: "P1S4_180314_007_A01"},
		{Container: "NA"},
		{Container: "P2S4_171130_001_A01"},
		{Container: "P2S4_180402_001_A01"},
	})
	require.True(t, ok)
	assert.Equal(t, "171130", from)
	assert.Equal(t, "180402", to)

	_, _, ok = DateRange([]Entry{{Container: "NA"}})
	assert.False(t, ok)
}
