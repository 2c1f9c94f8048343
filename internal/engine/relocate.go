package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"simflow/internal/fileutil"
)

// Relocation moves one fixed-name engine output to its stage-qualified name.
// An empty To means "<From>.<stage>". Copy keeps the source in place, which
// is how a final configuration is chained into the next stage's restart
// file. Optional outputs are skipped silently when absent.
type Relocation struct {
	From     string
	To       string
	Copy     bool
	Optional bool
}

// Relocate applies relocations inside dir. Every required output is checked
// before anything moves so a partial run is left untouched for diagnosis.
func Relocate(dir, stage string, relocations []Relocation) error {
	var missing []string
	for _, rel := range relocations {
		if rel.Optional {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, rel.From)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, rel.From)
				continue
			}
			return fmt.Errorf("stat %s: %w", rel.From, err)
		}
	}
	if len(missing) > 0 {
		return &IncompleteStageOutputError{Stage: stage, Missing: missing}
	}

	for _, rel := range relocations {
		src := filepath.Join(dir, rel.From)
		if _, err := os.Stat(src); err != nil {
			if rel.Optional && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", rel.From, err)
		}
		target := rel.To
		if target == "" {
			target = rel.From + "." + stage
		}
		dst := filepath.Join(dir, target)
		if rel.Copy {
			if err := fileutil.CopyFile(src, dst); err != nil {
				return fmt.Errorf("copy %s to %s: %w", rel.From, target, err)
			}
			continue
		}
		if err := fileutil.MoveFile(src, dst); err != nil {
			return fmt.Errorf("move %s to %s: %w", rel.From, target, err)
		}
	}
	return nil
}
