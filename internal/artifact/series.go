package artifact

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"simflow/internal/services"
)

// ReadColumns reads the zero-based columns of a whitespace-separated numeric
// table. Blank lines, `#` comments, and header rows whose first field is not
// numeric are skipped. Each returned series has one value per data row.
func ReadColumns(path string, columns ...int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series %s: %w", path, err)
	}
	defer f.Close()

	series := make([][]float64, len(columns))
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
			continue
		}
		for i, col := range columns {
			if col < 0 || col >= len(fields) {
				return nil, services.Wrap(services.ErrCorruptArtifact, "", "read series",
					fmt.Sprintf("%s:%d has %d fields, column %d requested", path, lineNo, len(fields), col), nil)
			}
			v, err := strconv.ParseFloat(fields[col], 64)
			if err != nil {
				return nil, services.Wrap(services.ErrCorruptArtifact, "", "read series",
					fmt.Sprintf("%s:%d column %d", path, lineNo, col), err)
			}
			series[i] = append(series[i], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan series %s: %w", path, err)
	}
	return series, nil
}
