package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"simflow/internal/fileutil"
)

// RenderTemplate copies src to dst replacing every placeholder key in values
// with its value. Keys are replaced longest first so a key that prefixes
// another cannot clobber it. src and dst may be the same file.
func RenderTemplate(src, dst string, values map[string]string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read template %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat template %s: %w", src, err)
	}
	rendered := Substitute(string(data), values)
	if err := fileutil.WriteFileAtomic(dst, []byte(rendered), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write rendered %s: %w", dst, err)
	}
	return nil
}

// Substitute replaces every placeholder key in text.
func Substitute(text string, values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, values[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
