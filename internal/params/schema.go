package params

import (
	"sort"

	"github.com/pkg/errors"
)

var ErrUnknownParam = errors.New("unknown parameter")

// Spec declares one parameter.
type Spec struct {
	Kind    Kind
	Default any
}

// Schema is what a strategy declares: name to (kind, default).
type Schema map[string]Spec

// Names returns the declared names sorted.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve coerces every declared parameter once. Values absent from the
// Configuration take the declared default, coerced to the declared kind;
// values the schema does not declare are ignored.
func (s Schema) Resolve(values Values) (Resolved, error) {
	out := make(map[string]any, len(s))
	for _, name := range s.Names() {
		spec := s[name]
		v, err := Input(values, name, spec.Kind, spec.Default)
		if err != nil {
			return Resolved{}, err
		}
		if v, err = coerce(v, spec.Kind); err != nil {
			return Resolved{}, errors.Wrapf(err, "default of %s", name)
		}
		out[name] = v
	}
	return Resolved{values: out}, nil
}

// Resolved is the validated, read-only configuration a strategy is built
// from.
type Resolved struct {
	values map[string]any
}

func (r Resolved) lookup(name string) (any, error) {
	v, ok := r.values[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownParam, name)
	}
	return v, nil
}

// Int panics on names the schema did not declare; strategies read only what
// they declared.
func (r Resolved) Int(name string) int {
	v, err := r.lookup(name)
	if err != nil {
		panic(err)
	}
	n, _ := v.(int)
	return n
}

func (r Resolved) Float(name string) float64 {
	v, err := r.lookup(name)
	if err != nil {
		panic(err)
	}
	f, _ := v.(float64)
	return f
}

func (r Resolved) Bool(name string) bool {
	v, err := r.lookup(name)
	if err != nil {
		panic(err)
	}
	b, _ := v.(bool)
	return b
}

func (r Resolved) String(name string) string {
	v, err := r.lookup(name)
	if err != nil {
		panic(err)
	}
	s, _ := v.(string)
	return s
}

// Map copies the resolved values, e.g. for logging.
func (r Resolved) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
