package job

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/xeipuuv/gojsonschema"

	"simflow/internal/fileutil"
	"simflow/internal/services"
)

// Reserved State Document keys used by the replicate controller.
const (
	KeyNumTargetReplicates = "num_target_replicates"
	KeyReplicatesCompleted = "replicates_completed"
)

const lockRetryDelay = 25 * time.Millisecond

//go:embed document.schema.json
var documentSchema string

var documentSchemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Values is a decoded State Document. Values are int64, float64, bool, or string.
type Values map[string]any

// Int returns key as an integer. Floats with an integral value are accepted.
func (v Values) Int(key string) (int, bool) {
	switch val := v[key].(type) {
	case int64:
		return int(val), true
	case int:
		return val, true
	case float64:
		if val == math.Trunc(val) {
			return int(val), true
		}
	}
	return 0, false
}

// Bool returns key as a boolean.
func (v Values) Bool(key string) (bool, bool) {
	b, ok := v[key].(bool)
	return b, ok
}

// String returns key as a string.
func (v Values) String(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

// Keys returns the document keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Document is the durable key/value State Document of one job.
type Document struct {
	path string
	lock *flock.Flock
}

func newDocument(path string) *Document {
	return &Document{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the document location on disk.
func (d *Document) Path() string {
	return d.path
}

// Load reads the document. A missing document decodes as empty.
func (d *Document) Load() (Values, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Values{}, nil
		}
		return nil, fmt.Errorf("read state document: %w", err)
	}
	return decodeValues(d.path, data)
}

// Update applies mutate to the current document under the job's document
// lock and atomically replaces the file with the result. When mutate returns
// an error nothing is written.
func (d *Document) Update(ctx context.Context, mutate func(Values) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	locked, err := d.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock state document: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock state document: %s is held by another process", d.lock.Path())
	}
	defer func() { _ = d.lock.Unlock() }()

	values, err := d.Load()
	if err != nil {
		return err
	}
	if err := mutate(values); err != nil {
		return err
	}
	if err := checkInvariants(values); err != nil {
		return services.Wrap(services.ErrReplicateOverrun, "", "update state document", "", err)
	}
	data, err := encodeValues(values)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(d.path, data, 0o644)
}

// Set stores a single key.
func (d *Document) Set(ctx context.Context, key string, value any) error {
	return d.Update(ctx, func(v Values) error {
		normalized, err := normalizeScalar(value)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		v[key] = normalized
		return nil
	})
}

func decodeValues(path string, data []byte) (Values, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Values{}, nil
	}
	result, err := gojsonschema.Validate(documentSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptArtifact, "", "decode state document", path, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, services.Wrap(services.ErrCorruptArtifact, "", "decode state document", path+": "+strings.Join(problems, "; "), nil)
	}

	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, services.Wrap(services.ErrCorruptArtifact, "", "decode state document", path, err)
	}
	values := make(Values, len(raw))
	for key, value := range raw {
		normalized, err := normalizeScalar(value)
		if err != nil {
			return nil, services.Wrap(services.ErrCorruptArtifact, "", "decode state document", key, err)
		}
		values[key] = normalized
	}
	return values, nil
}

func encodeValues(values Values) ([]byte, error) {
	data, err := json.MarshalIndent(map[string]any(values), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state document: %w", err)
	}
	return append(data, '\n'), nil
}

func normalizeScalar(value any) (any, error) {
	switch val := value.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val.String())
		}
		return f, nil
	case int:
		return int64(val), nil
	case int64, float64, bool, string:
		return val, nil
	case float32:
		return float64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

func checkInvariants(values Values) error {
	completed, hasCompleted := values.Int(KeyReplicatesCompleted)
	target, hasTarget := values.Int(KeyNumTargetReplicates)
	if hasCompleted && completed < 0 {
		return fmt.Errorf("%s is negative (%d)", KeyReplicatesCompleted, completed)
	}
	if hasCompleted && hasTarget && completed > target {
		return fmt.Errorf("%s=%d exceeds %s=%d", KeyReplicatesCompleted, completed, KeyNumTargetReplicates, target)
	}
	return nil
}
