package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"simflow/internal/services"
)

const grid = `
engines: [mcccs, lammps-UD]
replicas: 2
defaults:
  r_cut: 1.4
  cutoff_style: hard
  long_range_correction: energy_pressure
  pdamp: 1000
molecules:
  - name: methane
    engines: [mcccs]
    forcefield_name: trappe-ua
    n_compounds: 1230
    box_length: 45
    state_points:
      - {temperature: 140, pressure: 1318}
      - {temperature: 170, pressure: 2255}
  - name: waterSPCE
    forcefield_name: spce
    r_cut: 0.9
    cutoff_style: shift
    state_points:
      - {temperature: 280, pressure: 101.325}
`

func TestExpandCrossesGrid(t *testing.T) {
	m, err := Parse([]byte(grid))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sps, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// methane: 1 engine x 2 points x 2 replicas; water: 2 engines x 1 point x 2 replicas
	if len(sps) != 8 {
		t.Fatalf("expanded %d statepoints, want 8", len(sps))
	}
	first := sps[0]
	if first.Molecule != "methane" || first.Engine != "mcccs" || first.Temperature != 140 || first.Replica != 0 {
		t.Fatalf("unexpected first statepoint %+v", first)
	}
	if first.RCut != 1.4 || first.ForcefieldName != "trappe-ua" || first.NCompounds != 1230 || first.BoxLength != 45 {
		t.Fatalf("defaults not applied: %+v", first)
	}
	water := sps[4]
	if water.Molecule != "waterSPCE" || water.RCut != 0.9 || water.CutoffStyle != "shift" || water.PDamp != 1000 {
		t.Fatalf("overrides not applied: %+v", water)
	}
	if sps[6].Engine != "lammps-UD" {
		t.Fatalf("engine order not preserved: %+v", sps[6])
	}
}

func TestExpandSkipsDuplicates(t *testing.T) {
	m, err := Parse([]byte(`
engines: [mcccs]
molecules:
  - name: methane
    state_points:
      - {temperature: 140, pressure: 1318}
      - {temperature: 140, pressure: 1318}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sps, err := m.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(sps) != 1 {
		t.Fatalf("expected duplicates collapsed, got %d", len(sps))
	}
}

func TestExpandValidatesStatepoints(t *testing.T) {
	m, err := Parse([]byte(`
engines: [mcccs]
molecules:
  - name: methane
    state_points:
      - {temperature: -5, pressure: 1}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := m.Expand(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":         "   \n",
		"no molecules":  "engines: [mcccs]\n",
		"unknown field": "engines: [mcccs]\nmolecule: methane\n",
		"negative":      "replicas: -1\nmolecules: [{name: methane}]\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.yaml")
	if err := os.WriteFile(path, []byte(grid), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Replicas != 2 || len(m.Molecules) != 2 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
