package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"simflow/internal/job"
)

// FileExists reports whether rel exists in the job workspace.
func FileExists(j *job.Job, rel string) bool {
	_, err := os.Stat(j.Path(rel))
	return err == nil
}

// AllExist reports whether every rel exists in the job workspace.
func AllExist(j *job.Job, rels ...string) bool {
	for _, rel := range rels {
		if !FileExists(j, rel) {
			return false
		}
	}
	return true
}

// LogIndicatesCompletion reports whether the log at rel contains marker
// verbatim. An absent or empty log is incomplete, never an error.
func LogIndicatesCompletion(j *job.Job, rel, marker string) bool {
	if marker == "" {
		return false
	}
	data, err := os.ReadFile(j.Path(rel))
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte(marker))
}

// ContainsAny reports whether the file at rel still holds any of keywords.
func ContainsAny(j *job.Job, rel string, keywords ...string) (bool, error) {
	data, err := os.ReadFile(j.Path(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", rel, err)
	}
	text := string(data)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true, nil
		}
	}
	return false, nil
}

// Exists is the predicate form of AllExist.
func Exists(rels ...string) Predicate {
	return New("exists("+strings.Join(rels, ",")+")", func(_ context.Context, j *job.Job) (bool, error) {
		return AllExist(j, rels...), nil
	})
}

// LogMarker is the predicate form of LogIndicatesCompletion.
func LogMarker(rel, marker string) Predicate {
	return New("log_marker("+rel+")", func(_ context.Context, j *job.Job) (bool, error) {
		return LogIndicatesCompletion(j, rel, marker), nil
	})
}

// NoPlaceholders holds when every file in rels exists and none of them
// contains any keyword.
func NoPlaceholders(keywords []string, rels ...string) Predicate {
	return New("no_placeholders", func(_ context.Context, j *job.Job) (bool, error) {
		for _, rel := range rels {
			if !FileExists(j, rel) {
				return false, nil
			}
			found, err := ContainsAny(j, rel, keywords...)
			if err != nil {
				return false, err
			}
			if found {
				return false, nil
			}
		}
		return true, nil
	})
}

// StatepointMatch holds when match accepts the job's statepoint.
func StatepointMatch(name string, match func(job.Statepoint) bool) Predicate {
	return New(name, func(_ context.Context, j *job.Job) (bool, error) {
		return match(j.Statepoint), nil
	})
}

// DocumentInt holds when the State Document stores key as an integer that
// satisfies cmp.
func DocumentInt(name, key string, cmp func(int) bool) Predicate {
	return New(name, func(_ context.Context, j *job.Job) (bool, error) {
		values, err := j.Document().Load()
		if err != nil {
			return false, err
		}
		n, ok := values.Int(key)
		if !ok {
			return false, nil
		}
		return cmp(n), nil
	})
}

// Outstanding holds while marker exists and output is absent or older than
// marker. It models a submission whose result has not landed yet.
func Outstanding(marker, output string) Predicate {
	return New("outstanding("+marker+")", func(_ context.Context, j *job.Job) (bool, error) {
		markerInfo, err := os.Stat(j.Path(marker))
		if err != nil {
			return false, nil
		}
		outInfo, err := os.Stat(j.Path(output))
		if err != nil {
			return true, nil
		}
		return outInfo.ModTime().Before(markerInfo.ModTime()), nil
	})
}
