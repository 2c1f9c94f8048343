// Package manifest loads YAML job grids and expands them into statepoints.
package manifest

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"simflow/internal/job"
	"simflow/internal/services"
)

// Manifest describes a parameter grid: every molecule's state points are
// crossed with its engines and the replica count.
type Manifest struct {
	Engines   []string   `yaml:"engines"`
	Replicas  int        `yaml:"replicas"`
	Defaults  Defaults   `yaml:"defaults"`
	Molecules []Molecule `yaml:"molecules"`
}

// Defaults apply to every molecule unless it overrides them.
type Defaults struct {
	RCut                float64 `yaml:"r_cut"`
	CutoffStyle         string  `yaml:"cutoff_style"`
	LongRangeCorrection string  `yaml:"long_range_correction"`
	PDamp               float64 `yaml:"pdamp"`
	ForcefieldName      string  `yaml:"forcefield_name"`
}

// Molecule is one entry of the grid.
type Molecule struct {
	Name                string       `yaml:"name"`
	Engines             []string     `yaml:"engines"`
	ForcefieldName      string       `yaml:"forcefield_name"`
	RCut                *float64     `yaml:"r_cut"`
	CutoffStyle         string       `yaml:"cutoff_style"`
	LongRangeCorrection string       `yaml:"long_range_correction"`
	PDamp               *float64     `yaml:"pdamp"`
	NCompounds          int          `yaml:"n_compounds"`
	BoxLength           float64      `yaml:"box_length"`
	StatePoints         []StatePoint `yaml:"state_points"`
}

// StatePoint is a thermodynamic condition.
type StatePoint struct {
	Temperature float64 `yaml:"temperature"`
	Pressure    float64 `yaml:"pressure"`
}

// Parse decodes a manifest from YAML.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "manifest is empty", nil)
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "decode yaml", err)
	}
	if m.Replicas == 0 {
		m.Replicas = 1
	}
	if m.Replicas < 0 {
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", fmt.Sprintf("replicas must be positive, got %d", m.Replicas), nil)
	}
	if len(m.Molecules) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "no molecules listed", nil)
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Expand returns every statepoint of the grid in manifest order. Duplicate
// combinations are emitted once and every statepoint is validated.
func (m *Manifest) Expand() ([]job.Statepoint, error) {
	seen := make(map[string]struct{})
	var out []job.Statepoint
	for _, mol := range m.Molecules {
		if mol.Name == "" {
			return nil, services.Wrap(services.ErrValidation, "", "expand manifest", "molecule without name", nil)
		}
		engines := mol.Engines
		if len(engines) == 0 {
			engines = m.Engines
		}
		if len(engines) == 0 {
			return nil, services.Wrap(services.ErrValidation, "", "expand manifest", "no engines for "+mol.Name, nil)
		}
		if len(mol.StatePoints) == 0 {
			return nil, services.Wrap(services.ErrValidation, "", "expand manifest", "no state points for "+mol.Name, nil)
		}
		for _, engine := range engines {
			for _, point := range mol.StatePoints {
				for replica := 0; replica < m.Replicas; replica++ {
					sp := m.statepoint(mol, engine, point, replica)
					if err := sp.Validate(); err != nil {
						return nil, fmt.Errorf("%s: %w", sp.Label(), err)
					}
					id, err := sp.ID()
					if err != nil {
						return nil, err
					}
					if _, dup := seen[id]; dup {
						continue
					}
					seen[id] = struct{}{}
					out = append(out, sp)
				}
			}
		}
	}
	return out, nil
}

func (m *Manifest) statepoint(mol Molecule, engine string, point StatePoint, replica int) job.Statepoint {
	sp := job.Statepoint{
		Molecule:            mol.Name,
		Engine:              engine,
		Temperature:         point.Temperature,
		Pressure:            point.Pressure,
		Replica:             replica,
		RCut:                m.Defaults.RCut,
		CutoffStyle:         m.Defaults.CutoffStyle,
		LongRangeCorrection: m.Defaults.LongRangeCorrection,
		PDamp:               m.Defaults.PDamp,
		ForcefieldName:      m.Defaults.ForcefieldName,
		NCompounds:          mol.NCompounds,
		BoxLength:           mol.BoxLength,
	}
	if mol.RCut != nil {
		sp.RCut = *mol.RCut
	}
	if mol.PDamp != nil {
		sp.PDamp = *mol.PDamp
	}
	if mol.CutoffStyle != "" {
		sp.CutoffStyle = mol.CutoffStyle
	}
	if mol.LongRangeCorrection != "" {
		sp.LongRangeCorrection = mol.LongRangeCorrection
	}
	if mol.ForcefieldName != "" {
		sp.ForcefieldName = mol.ForcefieldName
	}
	return sp
}
