package job

import (
	"errors"
	"strings"
	"testing"

	"simflow/internal/services"
)

func sampleStatepoint() Statepoint {
	return Statepoint{
		Molecule:            "methaneUA",
		Engine:              "mcccs",
		Temperature:         140,
		Pressure:            1318,
		Replica:             0,
		RCut:                1.4,
		CutoffStyle:         "hard",
		LongRangeCorrection: "energy_pressure",
		ForcefieldName:      "trappe-ua",
	}
}

func TestStatepointIDStable(t *testing.T) {
	a, err := sampleStatepoint().ID()
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	b, _ := sampleStatepoint().ID()
	if a != b {
		t.Fatalf("ids differ for identical statepoints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}

	other := sampleStatepoint()
	other.Replica = 1
	c, _ := other.ID()
	if c == a {
		t.Fatal("replica change should alter id")
	}
}

func TestStatepointValidate(t *testing.T) {
	if err := sampleStatepoint().Validate(); err != nil {
		t.Fatalf("valid statepoint rejected: %v", err)
	}

	bad := sampleStatepoint()
	bad.Molecule = ""
	bad.CutoffStyle = "smooth"
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "Molecule") || !strings.Contains(msg, "CutoffStyle") {
		t.Fatalf("expected both failing fields in %q", msg)
	}
}
