// Package scenario loads declarative world populations and query sets from YAML or JSON files and
// runs them against a world.
package scenario

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/argus-labs/archquery/pkg/query"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ReadWritePrefix marks a component reference as read-write, e.g. "rw:position".
const ReadWritePrefix = "rw:"

// Scenario is a component catalogue, a set of archetype populations, and the queries to run.
type Scenario struct {
	// Name identifies the scenario in reports.
	Name string `yaml:"name" json:"name"`

	// Components lists the component types to register, in registration order.
	Components []Component `yaml:"components" json:"components"`

	// Archetypes lists the entity populations created before the queries run.
	Archetypes []Population `yaml:"archetypes,omitempty" json:"archetypes,omitempty"`

	// Queries lists the queries to compile.
	Queries []Query `yaml:"queries" json:"queries"`
}

// Component is a component type declaration.
type Component struct {
	Name       string   `yaml:"name" json:"name"`
	Size       int      `yaml:"size,omitempty" json:"size,omitempty"`
	Enableable bool     `yaml:"enableable,omitempty" json:"enableable,omitempty"`
	Shared     bool     `yaml:"shared,omitempty" json:"shared,omitempty"`
	WriteGroup []string `yaml:"write_group,omitempty" json:"write_group,omitempty"`
}

// Population creates Count entities carrying Components.
type Population struct {
	Components []string `yaml:"components" json:"components"`
	Count      int      `yaml:"count" json:"count"`

	// Disabled maps an enableable component to the fraction of the population that has it
	// disabled. The first entities of the population are the disabled ones.
	Disabled map[string]float64 `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// Shared maps a shared component to the value every entity of the population carries.
	Shared map[string]string `yaml:"shared,omitempty" json:"shared,omitempty"`
}

// Query is a named query made of one or more sub-queries.
type Query struct {
	Name       string     `yaml:"name" json:"name"`
	SubQueries []SubQuery `yaml:"sub_queries" json:"sub_queries"`

	// Expect is an optional boolean expression over the query report, e.g.
	// "entities == 10 && chunks <= 2". See https://expr-lang.org for the syntax.
	Expect string `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// SubQuery lists component names per constraint. Names in All and Any accept the "rw:" prefix.
type SubQuery struct {
	All      []string `yaml:"all,omitempty" json:"all,omitempty"`
	Any      []string `yaml:"any,omitempty" json:"any,omitempty"`
	None     []string `yaml:"none,omitempty" json:"none,omitempty"`
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Absent   []string `yaml:"absent,omitempty" json:"absent,omitempty"`
	Options  []string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Format is the encoding of a scenario file.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatFromPath picks the format from the file extension. Unknown extensions are read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads, parses, and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "failed to read scenario file")
	}
	return Parse(data, FormatFromPath(path))
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte, format Format) (*Scenario, error) {
	var s Scenario
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, eris.Wrap(err, "failed to parse JSON scenario")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, eris.Wrap(err, "failed to parse YAML scenario")
		}
	default:
		return nil, eris.Errorf("unknown scenario format %d", format)
	}

	if err := s.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid scenario")
	}
	return &s, nil
}

// Validate checks that every reference resolves and every value is in range. It does not compile
// the queries.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return eris.New("name is required")
	}
	if len(s.Queries) == 0 {
		return eris.New("queries list is required and must be non-empty")
	}

	components := make(map[string]Component, len(s.Components))
	for i, c := range s.Components {
		if c.Name == "" {
			return eris.Errorf("components[%d]: name is required", i)
		}
		if strings.HasPrefix(c.Name, ReadWritePrefix) {
			return eris.Errorf("components[%d]: name %q must not start with %q", i, c.Name, ReadWritePrefix)
		}
		if _, ok := components[c.Name]; ok {
			return eris.Errorf("components[%d]: duplicate component %q", i, c.Name)
		}
		if c.Size < 0 {
			return eris.Errorf("components[%d]: size must not be negative", i)
		}
		components[c.Name] = c
	}
	for _, c := range s.Components {
		for _, sibling := range c.WriteGroup {
			if _, ok := components[sibling]; !ok {
				return eris.Errorf("component %q: unknown write group member %q", c.Name, sibling)
			}
		}
	}

	for i, p := range s.Archetypes {
		if err := p.validate(components); err != nil {
			return eris.Wrapf(err, "archetypes[%d]", i)
		}
	}

	names := make(map[string]struct{}, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return eris.Errorf("queries[%d]: name is required", i)
		}
		if _, ok := names[q.Name]; ok {
			return eris.Errorf("queries[%d]: duplicate query %q", i, q.Name)
		}
		names[q.Name] = struct{}{}
		if len(q.SubQueries) == 0 {
			return eris.Errorf("query %q: at least one sub-query is required", q.Name)
		}
		for j, sq := range q.SubQueries {
			if err := sq.validate(components); err != nil {
				return eris.Wrapf(err, "query %q: sub_queries[%d]", q.Name, j)
			}
		}
		if _, err := q.expectation(); err != nil {
			return eris.Wrapf(err, "query %q", q.Name)
		}
	}
	return nil
}

// expectation compiles the Expect expression against the query report. It returns nil when the
// query has no expectation.
func (q *Query) expectation() (*vm.Program, error) {
	if q.Expect == "" {
		return nil, nil //nolint:nilnil // no expectation
	}
	program, err := expr.Compile(q.Expect, expr.Env(QueryReport{}), expr.AsBool())
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse expect clause")
	}
	return program, nil
}

func (p *Population) validate(components map[string]Component) error {
	if p.Count < 1 {
		return eris.New("count must be positive")
	}
	for _, name := range p.Components {
		if _, ok := components[name]; !ok {
			return eris.Errorf("unknown component %q", name)
		}
	}
	for name, fraction := range p.Disabled {
		c, ok := components[name]
		if !ok || !c.Enableable {
			return eris.Errorf("disabled: %q is not an enableable component", name)
		}
		if !slices.Contains(p.Components, name) {
			return eris.Errorf("disabled: %q is not part of the population", name)
		}
		if fraction < 0 || fraction > 1 {
			return eris.Errorf("disabled: fraction of %q must be between 0 and 1", name)
		}
	}
	for name := range p.Shared {
		c, ok := components[name]
		if !ok || !c.Shared {
			return eris.Errorf("shared: %q is not a shared component", name)
		}
		if !slices.Contains(p.Components, name) {
			return eris.Errorf("shared: %q is not part of the population", name)
		}
	}
	return nil
}

func (sq *SubQuery) validate(components map[string]Component) error {
	for _, list := range [][]string{sq.All, sq.Any} {
		for _, ref := range list {
			name, _ := parseRef(ref)
			if _, ok := components[name]; !ok {
				return eris.Errorf("unknown component %q", name)
			}
		}
	}
	for _, list := range [][]string{sq.None, sq.Disabled, sq.Absent} {
		for _, name := range list {
			if _, ok := components[name]; !ok {
				return eris.Errorf("unknown component %q", name)
			}
		}
	}
	for _, name := range sq.Options {
		if _, ok := query.ParseOption(name); !ok {
			return eris.Errorf("unknown option %q", name)
		}
	}
	return nil
}

// parseRef splits an optional "rw:" prefix from a component reference.
func parseRef(ref string) (string, query.AccessMode) {
	if name, ok := strings.CutPrefix(ref, ReadWritePrefix); ok {
		return name, query.ReadWrite
	}
	return ref, query.ReadOnly
}
