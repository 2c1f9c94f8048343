package artifact

import (
	"context"
	"strings"

	"simflow/internal/job"
)

// Func evaluates a condition against one job.
type Func func(ctx context.Context, j *job.Job) (bool, error)

// Predicate is a named boolean condition. Composite predicates keep their
// parts so Evaluate can report the first one that failed.
type Predicate struct {
	Name  string
	Fn    Func
	parts []Predicate
}

// New builds a leaf predicate.
func New(name string, fn Func) Predicate {
	return Predicate{Name: name, Fn: fn}
}

// Eval runs the predicate. A zero Predicate is true.
func (p Predicate) Eval(ctx context.Context, j *job.Job) (bool, error) {
	ok, _, err := Evaluate(ctx, j, p)
	return ok, err
}

// Parts returns the direct sub-predicates of a composite predicate.
func (p Predicate) Parts() []Predicate {
	out := make([]Predicate, len(p.parts))
	copy(out, p.parts)
	return out
}

// All is the logical AND of preds. It short-circuits on the first false or
// erroring part.
func All(name string, preds ...Predicate) Predicate {
	if name == "" {
		names := make([]string, 0, len(preds))
		for _, p := range preds {
			names = append(names, p.Name)
		}
		name = strings.Join(names, "&")
	}
	return Predicate{Name: name, parts: append([]Predicate(nil), preds...)}
}

// IsZero reports whether p is the zero Predicate.
func (p Predicate) IsZero() bool {
	return p.Fn == nil && len(p.parts) == 0
}

// Not negates p.
func Not(p Predicate) Predicate {
	return Predicate{
		Name: "!" + p.Name,
		Fn: func(ctx context.Context, j *job.Job) (bool, error) {
			ok, err := p.Eval(ctx, j)
			return !ok, err
		},
	}
}

// True always holds.
func True() Predicate {
	return New("true", func(context.Context, *job.Job) (bool, error) { return true, nil })
}

// Evaluate runs p against j. When the result is false, failed names the
// leaf predicate that produced it.
func Evaluate(ctx context.Context, j *job.Job, p Predicate) (ok bool, failed string, err error) {
	if len(p.parts) > 0 {
		for _, part := range p.parts {
			ok, failed, err = Evaluate(ctx, j, part)
			if err != nil || !ok {
				return ok, failed, err
			}
		}
		return true, "", nil
	}
	if p.Fn == nil {
		return true, "", nil
	}
	if err := ctx.Err(); err != nil {
		return false, p.Name, err
	}
	ok, err = p.Fn(ctx, j)
	if err != nil || !ok {
		return false, p.Name, err
	}
	return true, "", nil
}
