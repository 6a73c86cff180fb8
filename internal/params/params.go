// Package params holds the active strategy Configuration and resolves it
// against the schema a strategy declares.
package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// Kind is the type a parameter is coerced to.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
)

// Values is the active Configuration: parameter name to raw value, either
// read from a file or bound by the optimizer for one trial.
type Values map[string]any

// Clone copies the top level so a trial never aliases another's values.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Input returns values[name] coerced to kind when present, otherwise def
// unchanged.
func Input(values Values, name string, kind Kind, def any) (any, error) {
	raw, ok := values[name]
	if !ok {
		return def, nil
	}
	v, err := coerce(raw, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "param %s", name)
	}
	return v, nil
}

func coerce(raw any, kind Kind) (any, error) {
	switch kind {
	case KindInt:
		// ints come back from the optimizer as float64 samples
		if f, ok := raw.(float64); ok {
			return int(f), nil
		}
		// strings are decimal; a leading zero is not an octal prefix
		if s, ok := raw.(string); ok {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			return n, errors.Wrapf(err, "%q is not a decimal int", s)
		}
		return cast.ToIntE(raw)
	case KindFloat:
		if s, ok := raw.(string); ok {
			raw = strings.TrimSpace(s)
		}
		return cast.ToFloat64E(raw)
	case KindBool:
		return cast.ToBoolE(raw)
	case KindString:
		return cast.ToStringE(raw)
	}
	return nil, errors.Errorf("unknown kind %q", kind)
}

// LoadFile reads a flat YAML mapping of parameter values.
func LoadFile(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read params file")
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode params file")
	}
	return Values(raw), nil
}
