package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"simflow/internal/fileutil"
	"simflow/internal/logging"
	"simflow/internal/services"
)

// Store manages the workspace directory that holds one subdirectory per job.
type Store struct {
	root   string
	logger *slog.Logger
}

// Open prepares the workspace root.
func Open(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "open job store", "workspace directory required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{root: root, logger: logging.NewComponentLogger(logger, "job-store")}, nil
}

// Root returns the workspace root directory.
func (s *Store) Root() string {
	return s.root
}

// Init creates the job for sp if it does not exist yet. The returned bool
// reports whether a new workspace was created.
func (s *Store) Init(sp Statepoint) (*Job, bool, error) {
	if err := sp.Validate(); err != nil {
		return nil, false, err
	}
	id, err := sp.ID()
	if err != nil {
		return nil, false, err
	}
	j := &Job{ID: id, Statepoint: sp, Workspace: filepath.Join(s.root, id)}

	if _, err := os.Stat(j.Path(statepointFile)); err == nil {
		return j, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("stat statepoint: %w", err)
	}

	if err := os.MkdirAll(j.Workspace, 0o755); err != nil {
		return nil, false, fmt.Errorf("create job workspace: %w", err)
	}
	if err := writeStatepoint(j); err != nil {
		return nil, false, err
	}
	return j, true, nil
}

// Get loads a job by id. Unknown ids return an ErrNotFound-classified error.
func (s *Store) Get(id string) (*Job, error) {
	dir := filepath.Join(s.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", id, err)
	}
	return loadJob(dir)
}

// Resolve returns the unique job whose id starts with prefix.
func (s *Store) Resolve(prefix string) (*Job, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	var match *Job
	for _, j := range jobs {
		if len(prefix) > len(j.ID) || j.ID[:len(prefix)] != prefix {
			continue
		}
		if match != nil {
			return nil, services.Wrap(services.ErrValidation, "", "resolve job", fmt.Sprintf("prefix %q is ambiguous", prefix), nil)
		}
		match = j
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "resolve job", prefix, nil)
	}
	return match, nil
}

// List returns every job in the workspace sorted by id. Directories whose
// statepoint is unreadable or does not hash to the directory name are
// skipped and logged so one damaged workspace never hides the others.
func (s *Store) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}
	jobs := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		j, err := loadJob(filepath.Join(s.root, entry.Name()))
		if err != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable job workspace", "job_workspace_skipped",
				logging.String("workspace", entry.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect statepoint.json in the workspace"),
				logging.String(logging.FieldImpact, "job is excluded from scheduling"),
			)
			continue
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
	return jobs, nil
}

// Find returns the jobs whose statepoint satisfies match.
func (s *Store) Find(match func(Statepoint) bool) ([]*Job, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	out := jobs[:0]
	for _, j := range jobs {
		if match == nil || match(j.Statepoint) {
			out = append(out, j)
		}
	}
	return out, nil
}

// UpdateStatepoint re-keys a job after mutate edits its parameters. The
// workspace directory is renamed to the new id, keeping every artifact and
// the State Document. It refuses to overwrite an existing job. When the new
// statepoint cannot be written the workspace is moved back under the old id.
func (s *Store) UpdateStatepoint(j *Job, mutate func(*Statepoint)) (*Job, error) {
	updated := j.Statepoint
	mutate(&updated)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	id, err := updated.ID()
	if err != nil {
		return nil, err
	}
	if id == j.ID {
		return j, nil
	}
	target := filepath.Join(s.root, id)
	if _, err := os.Stat(target); err == nil {
		return nil, services.Wrap(services.ErrValidation, "", "update statepoint", fmt.Sprintf("job %s already exists", id), nil)
	}
	if err := os.Rename(j.Workspace, target); err != nil {
		return nil, fmt.Errorf("rename workspace: %w", err)
	}
	next := &Job{ID: id, Statepoint: updated, Workspace: target}
	if err := writeStatepoint(next); err != nil {
		// The directory name must keep matching its statepoint hash.
		if rerr := os.Rename(target, j.Workspace); rerr != nil {
			return nil, fmt.Errorf("%w (restoring workspace %s: %v)", err, j.ID, rerr)
		}
		return nil, err
	}
	return next, nil
}

func loadJob(dir string) (*Job, error) {
	data, err := os.ReadFile(filepath.Join(dir, statepointFile))
	if err != nil {
		return nil, fmt.Errorf("read statepoint: %w", err)
	}
	var sp Statepoint
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, services.Wrap(services.ErrCorruptArtifact, "", "decode statepoint", dir, err)
	}
	id, err := sp.ID()
	if err != nil {
		return nil, err
	}
	if id != filepath.Base(dir) {
		return nil, services.Wrap(services.ErrCorruptArtifact, "", "verify statepoint", fmt.Sprintf("statepoint hashes to %s", id), nil)
	}
	return &Job{ID: id, Statepoint: sp, Workspace: dir}, nil
}

func writeStatepoint(j *Job) error {
	data, err := json.MarshalIndent(j.Statepoint, "", "  ")
	if err != nil {
		return fmt.Errorf("encode statepoint: %w", err)
	}
	if err := fileutil.WriteFileAtomic(j.Path(statepointFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write statepoint: %w", err)
	}
	return nil
}
