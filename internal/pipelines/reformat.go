package pipelines

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"simflow/internal/fileutil"
	"simflow/internal/services"
)

// Unit conversions from LAMMPS real units to project units.
const (
	kcalToKJ = 4.184
	atmToMPa = 0.101325
)

type thermoColumn struct {
	source string
	target string
	scale  float64
}

var thermoColumns = []thermoColumn{
	{"step", "timestep", 1},
	{"pe", "potential_energy", kcalToKJ},
	{"ke", "kinetic_energy", kcalToKJ},
	{"press", "pressure", atmToMPa},
	{"temp", "temperature", 1},
	{"density", "density", 1},
}

// ReformatThermo rewrites a space-delimited LAMMPS thermo log with a header
// row into the project log format: energies in kJ/mol and pressure in MPa.
func ReformatThermo(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open thermo log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var (
		index  []int
		out    strings.Builder
		lineNo int
	)
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if index == nil {
			index, err = thermoHeader(src, fields)
			if err != nil {
				return err
			}
			for i, col := range thermoColumns {
				if i > 0 {
					out.WriteByte(' ')
				}
				out.WriteString(col.target)
			}
			out.WriteByte('\n')
			continue
		}
		for i, col := range thermoColumns {
			pos := index[i]
			if pos >= len(fields) {
				return services.Wrap(services.ErrCorruptArtifact, "reformat_data", "reformat thermo log",
					fmt.Sprintf("%s line %d: missing %s", src, lineNo, col.source), nil)
			}
			v, err := strconv.ParseFloat(fields[pos], 64)
			if err != nil {
				return services.Wrap(services.ErrCorruptArtifact, "reformat_data", "reformat thermo log",
					fmt.Sprintf("%s line %d: %s", src, lineNo, col.source), err)
			}
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(strconv.FormatFloat(v*col.scale, 'g', -1, 64))
		}
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read thermo log: %w", err)
	}
	if index == nil {
		return services.Wrap(services.ErrCorruptArtifact, "reformat_data", "reformat thermo log", src+" is empty", nil)
	}
	return fileutil.WriteFileAtomic(dst, []byte(out.String()), 0o644)
}

func thermoHeader(src string, fields []string) ([]int, error) {
	positions := make(map[string]int, len(fields))
	for i, name := range fields {
		positions[strings.ToLower(name)] = i
	}
	index := make([]int, len(thermoColumns))
	var missing []string
	for i, col := range thermoColumns {
		pos, ok := positions[col.source]
		if !ok {
			missing = append(missing, col.source)
			continue
		}
		index[i] = pos
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrCorruptArtifact, "reformat_data", "reformat thermo log",
			fmt.Sprintf("%s header lacks %s", src, strings.Join(missing, ", ")), nil)
	}
	return index, nil
}
