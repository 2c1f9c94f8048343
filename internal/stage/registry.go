package stage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"simflow/internal/services"
)

// Wildcard is the molecule part of a discriminator that matches any
// molecule of its engine.
const Wildcard = "*"

// Discriminator keys a pipeline variant by engine and molecule.
func Discriminator(engine, molecule string) string {
	return engine + "/" + molecule
}

// DuplicateStageError reports a stage name registered twice for one
// discriminator. It is a startup misconfiguration.
type DuplicateStageError struct {
	Discriminator string
	Name          string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("stage %q already registered for %s", e.Name, e.Discriminator)
}

func (e *DuplicateStageError) Is(target error) bool {
	return target == services.ErrDuplicateStage
}

// Registry holds stage definitions per discriminator in declaration order.
type Registry struct {
	mu     sync.RWMutex
	stages map[string][]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string][]Definition)}
}

// Register appends def to the discriminator's pipeline.
func (r *Registry) Register(discriminator string, def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return services.Wrap(services.ErrConfiguration, "", "register stage", "stage name required", nil)
	}
	if def.Action == nil {
		return services.Wrap(services.ErrConfiguration, def.Name, "register stage", "stage action required", nil)
	}
	if def.Post.IsZero() {
		return services.Wrap(services.ErrConfiguration, def.Name, "register stage", "stage postcondition required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.stages[discriminator] {
		if existing.Name == def.Name {
			return &DuplicateStageError{Discriminator: discriminator, Name: def.Name}
		}
	}
	r.stages[discriminator] = append(r.stages[discriminator], def)
	return nil
}

// MustRegister registers every def and panics on the first error.
func (r *Registry) MustRegister(discriminator string, defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(discriminator, def); err != nil {
			panic(err)
		}
	}
}

// StagesFor returns the discriminator's stages in declaration order.
func (r *Registry) StagesFor(discriminator string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := r.stages[discriminator]
	out := make([]Definition, len(defs))
	copy(out, defs)
	return out
}

// Resolve returns the pipeline for engine and molecule, falling back to the
// engine's wildcard pipeline. The returned discriminator is the one matched.
func (r *Registry) Resolve(engine, molecule string) (string, []Definition) {
	exact := Discriminator(engine, molecule)
	if defs := r.StagesFor(exact); len(defs) > 0 {
		return exact, defs
	}
	wildcard := Discriminator(engine, Wildcard)
	if defs := r.StagesFor(wildcard); len(defs) > 0 {
		return wildcard, defs
	}
	return "", nil
}

// Discriminators lists registered discriminators in sorted order.
func (r *Registry) Discriminators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.stages))
	for k := range r.stages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
