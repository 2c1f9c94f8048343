package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"simflow/internal/services"
)

// Statepoint is the immutable parameter set that identifies a job.
type Statepoint struct {
	Molecule            string  `json:"molecule" yaml:"molecule" validate:"required"`
	Engine              string  `json:"engine" yaml:"engine" validate:"required"`
	Temperature         float64 `json:"temperature" yaml:"temperature" validate:"gt=0"`
	Pressure            float64 `json:"pressure" yaml:"pressure" validate:"gte=0"`
	Replica             int     `json:"replica" yaml:"replica" validate:"gte=0"`
	RCut                float64 `json:"r_cut,omitempty" yaml:"r_cut" validate:"gte=0"`
	CutoffStyle         string  `json:"cutoff_style,omitempty" yaml:"cutoff_style" validate:"omitempty,oneof=hard shift"`
	LongRangeCorrection string  `json:"long_range_correction,omitempty" yaml:"long_range_correction" validate:"omitempty,oneof=none energy_pressure"`
	PDamp               float64 `json:"pdamp,omitempty" yaml:"pdamp" validate:"gte=0"`
	ForcefieldName      string  `json:"forcefield_name,omitempty" yaml:"forcefield_name"`
	NCompounds          int     `json:"n_compounds,omitempty" yaml:"n_compounds" validate:"gte=0"`
	BoxLength           float64 `json:"box_length,omitempty" yaml:"box_length" validate:"gte=0"`
}

var validate = validator.New()

// Validate checks field constraints and returns an ErrValidation-classified
// error naming every failing field.
func (sp Statepoint) Validate() error {
	err := validate.Struct(sp)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return services.Wrap(services.ErrValidation, "", "validate statepoint", "", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return services.Wrap(services.ErrValidation, "", "validate statepoint", strings.Join(problems, ", "), nil)
}

// ID returns the stable job identifier for the statepoint.
func (sp Statepoint) ID() (string, error) {
	data, err := json.Marshal(sp)
	if err != nil {
		return "", fmt.Errorf("encode statepoint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Label renders a short human-readable description of the statepoint.
func (sp Statepoint) Label() string {
	return fmt.Sprintf("%s/%s T=%g P=%g replica=%d", sp.Engine, sp.Molecule, sp.Temperature, sp.Pressure, sp.Replica)
}
