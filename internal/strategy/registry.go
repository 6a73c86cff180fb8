package strategy

import (
	"sort"

	"algo_bot/internal/hyperopt"
	"algo_bot/internal/params"

	"github.com/pkg/errors"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Definition describes a strategy: its parameters and how to build it from
// resolved values.
type Definition struct {
	Name   string
	Schema params.Schema
	Space  hyperopt.Space
	New    func(p params.Resolved) Strategy
}

// Build resolves values against the schema and constructs the strategy.
func (d Definition) Build(values params.Values) (Strategy, error) {
	resolved, err := d.Schema.Resolve(values)
	if err != nil {
		return nil, errors.Wrapf(err, "strategy %s", d.Name)
	}
	return d.New(resolved), nil
}

type Registry struct {
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

// Builtin registers the strategies shipped with the bot.
func Builtin() *Registry {
	return NewRegistry(DonchianDefinition(), EMARSIDefinition())
}

func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, errors.Wrapf(ErrUnknownStrategy, "%q (have %v)", name, r.Names())
	}
	return d, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
