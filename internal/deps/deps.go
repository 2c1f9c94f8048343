package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"simflow/internal/config"
)

// Requirement defines an external program a pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Command may be a full command line; only its first field is looked up.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := commandBinary(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// EngineRequirements lists the programs the configured pipelines call.
// Helpers that only some projects use are optional.
func EngineRequirements(cfg *config.Config) []Requirement {
	mc := cfg.Engines.MCCCS
	lmp := cfg.Engines.LAMMPS
	reqs := []Requirement{
		{Name: "topmon", Command: mc.TopmonBinary, Description: "MCCCS-MN Monte Carlo engine"},
		{Name: "topmon (production)", Command: mc.ProdBinary, Description: "MCCCS-MN production build", Optional: true},
		{Name: "fort77 maker", Command: mc.Fort77Command, Description: "Builds the initial MCCCS restart file", Optional: true},
		{Name: "batch submit", Command: lmp.SubmitCommand, Description: "Queues LAMMPS runs"},
		{Name: "box builder", Command: lmp.BuilderCommand, Description: "Builds initial LAMMPS configurations", Optional: true},
		{Name: "thermo reformatter", Command: lmp.ReformatCommand, Description: "Converts LAMMPS thermo logs", Optional: true},
	}
	if cfg.Equilibration.Method == "external" {
		reqs = append(reqs, Requirement{Name: "equilibration classifier", Command: cfg.Equilibration.Command, Description: "Judges equilibration of thermo series"})
	}
	return reqs
}

func commandBinary(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
