// Package hyperopt runs a sequential Tree-structured Parzen Estimator search
// over a declared search space on top of goptuna.
package hyperopt

import (
	"math"
	"sort"
	"strconv"

	"github.com/c-bata/goptuna"
	"github.com/pkg/errors"
)

type distKind int

const (
	distUniform distKind = iota
	distQUniform
	distLogUniform
	distInt
	distChoice
)

// Dist is the domain of one parameter. Build it with Uniform, QUniform,
// LogUniform, IntRange or Choice.
type Dist struct {
	kind    distKind
	low     float64
	high    float64
	q       float64
	options []any
}

func Uniform(low, high float64) Dist {
	return Dist{kind: distUniform, low: low, high: high}
}

// QUniform samples uniformly and rounds to a multiple of q.
func QUniform(low, high, q float64) Dist {
	return Dist{kind: distQUniform, low: low, high: high, q: q}
}

// LogUniform samples so that log(value) is uniform; low must be > 0.
func LogUniform(low, high float64) Dist {
	return Dist{kind: distLogUniform, low: low, high: high}
}

// IntRange samples integers in [low, high].
func IntRange(low, high int) Dist {
	return Dist{kind: distInt, low: float64(low), high: float64(high)}
}

func Choice(options ...any) Dist {
	return Dist{kind: distChoice, options: options}
}

func (d Dist) validate() error {
	switch d.kind {
	case distChoice:
		if len(d.options) == 0 {
			return errors.New("choice without options")
		}
		return nil
	case distLogUniform:
		if d.low <= 0 {
			return errors.Errorf("log-uniform low %v must be > 0", d.low)
		}
	case distQUniform:
		if d.q <= 0 {
			return errors.Errorf("q-uniform step %v must be > 0", d.q)
		}
	}
	if !(d.low < d.high) {
		return errors.Errorf("empty range [%v, %v]", d.low, d.high)
	}
	return nil
}

// suggest asks the trial for a value of name drawn from d. Choices are
// offered to the sampler by index since it only handles string categories.
func (d Dist) suggest(trial goptuna.Trial, name string) (any, error) {
	switch d.kind {
	case distQUniform:
		v, err := trial.SuggestDiscreteFloat(name, d.low, d.high, d.q)
		if err != nil {
			return nil, err
		}
		return d.onGrid(v), nil
	case distLogUniform:
		return trial.SuggestLogFloat(name, d.low, d.high)
	case distInt:
		return trial.SuggestInt(name, int(d.low), int(d.high))
	case distChoice:
		labels := make([]string, len(d.options))
		for i := range d.options {
			labels[i] = strconv.Itoa(i)
		}
		label, err := trial.SuggestCategorical(name, labels)
		if err != nil {
			return nil, err
		}
		i, err := strconv.Atoi(label)
		if err != nil || i < 0 || i >= len(d.options) {
			return nil, errors.Errorf("unknown choice %q", label)
		}
		return d.options[i], nil
	}
	return trial.SuggestFloat(name, d.low, d.high)
}

// onGrid rounds v to the nearest multiple of q inside [low, high].
func (d Dist) onGrid(v float64) float64 {
	v = math.Round(v/d.q) * d.q
	if v < d.low {
		v += d.q
	}
	if v > d.high {
		v -= d.q
	}
	return v
}

// Space maps parameter names to their domains.
type Space map[string]Dist

func (s Space) names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Space) validate() error {
	if len(s) == 0 {
		return errors.New("empty search space")
	}
	for _, n := range s.names() {
		if err := s[n].validate(); err != nil {
			return errors.Wrapf(err, "param %s", n)
		}
	}
	return nil
}
