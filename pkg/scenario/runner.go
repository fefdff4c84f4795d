package scenario

import (
	"math"
	"strconv"
	"time"

	"github.com/argus-labs/archquery/pkg/query"
	"github.com/argus-labs/archquery/pkg/statsd"
	"github.com/argus-labs/archquery/pkg/world"
	"github.com/expr-lang/expr"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Report is the outcome of running a scenario.
type Report struct {
	RunID      string        `json:"run_id"`
	Scenario   string        `json:"scenario"`
	Entities   int           `json:"entities"`
	Archetypes int           `json:"archetypes"`
	Queries    []QueryReport `json:"queries"`
	Failed     []string      `json:"failed,omitempty"` // Queries whose expectation does not hold
}

// QueryReport summarizes one compiled query.
// Expect expressions see the fields under their expr names.
type QueryReport struct {
	Name               string             `json:"name" expr:"name"`
	Hash               string             `json:"hash" expr:"hash"`
	MatchingArchetypes int                `json:"matching_archetypes" expr:"archetypes"`
	Chunks             int                `json:"chunks" expr:"chunks"`
	Entities           int                `json:"entities" expr:"entities"`
	UnfilteredEntities int                `json:"unfiltered_entities" expr:"unfiltered"`
	Expect             string             `json:"expect,omitempty"`
	Passed             *bool              `json:"passed,omitempty"`
	Description        *query.Description `json:"description,omitempty"`
}

// JSON encodes the report with indentation.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode report")
	}
	return data, nil
}

// Runner applies scenarios to a world. A runner registers the scenario components once, so it is
// meant for a single scenario.
type Runner struct {
	world    *world.World
	logger   zerolog.Logger
	describe bool
	types    map[string]query.TypeIndex
}

// NewRunner creates a runner on w. When describe is set, reports carry the full query description.
func NewRunner(w *world.World, logger zerolog.Logger, describe bool) *Runner {
	return &Runner{
		world:    w,
		logger:   logger.With().Str("component", "scenario").Logger(),
		describe: describe,
		types:    make(map[string]query.TypeIndex),
	}
}

// Validate registers the components and compiles every query without creating entities.
func (r *Runner) Validate(s *Scenario) error {
	if err := s.Validate(); err != nil {
		return eris.Wrap(err, "invalid scenario")
	}
	if err := r.register(s); err != nil {
		return err
	}
	_, err := r.compile(s)
	return err
}

// Run registers the components, creates the populations, compiles the queries, and reports on
// each query.
func (r *Runner) Run(s *Scenario) (*Report, error) {
	start := time.Now()
	defer statsd.EmitTiming("scenario.run", start)

	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()

	if err := s.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid scenario")
	}
	if err := r.register(s); err != nil {
		return nil, err
	}
	for i := range s.Archetypes {
		if err := r.populate(&s.Archetypes[i]); err != nil {
			return nil, eris.Wrapf(err, "failed to populate archetypes[%d]", i)
		}
	}
	queries, err := r.compile(s)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      runID,
		Scenario:   s.Name,
		Entities:   r.world.EntityCount(),
		Archetypes: r.world.ArchetypeCount(),
		Queries:    make([]QueryReport, len(queries)),
	}
	for i, q := range queries {
		qr := QueryReport{
			Name:               s.Queries[i].Name,
			Hash:               strconv.FormatUint(q.Hash(), 16),
			MatchingArchetypes: len(q.MatchingArchetypes()),
			Chunks:             q.CalculateChunkCountWithoutFiltering(),
			Entities:           q.CalculateEntityCount(),
			UnfilteredEntities: q.CalculateEntityCountWithoutFiltering(),
		}
		if r.describe {
			desc := q.Description()
			qr.Description = &desc
		}
		if err := checkExpectation(&s.Queries[i], &qr); err != nil {
			return nil, err
		}
		if qr.Passed != nil && !*qr.Passed {
			report.Failed = append(report.Failed, qr.Name)
		}
		report.Queries[i] = qr
	}

	logger.Info().
		Str("scenario", s.Name).
		Int("entities", report.Entities).
		Int("archetypes", report.Archetypes).
		Int("queries", len(report.Queries)).
		Strs("failed", report.Failed).
		Msg("scenario complete")
	return report, nil
}

// checkExpectation evaluates the query expectation against its report.
func checkExpectation(decl *Query, qr *QueryReport) error {
	program, err := decl.expectation()
	if err != nil || program == nil {
		return err
	}
	output, err := expr.Run(program, *qr)
	if err != nil {
		return eris.Wrapf(err, "failed to evaluate expectation of query %s", decl.Name)
	}
	passed, ok := output.(bool)
	if !ok {
		return eris.Errorf("expectation of query %s is not a boolean", decl.Name)
	}
	qr.Expect = decl.Expect
	qr.Passed = &passed
	return nil
}

// register adds the component catalogue to the world type registry.
func (r *Runner) register(s *Scenario) error {
	for _, c := range s.Components {
		idx, err := r.world.Register(query.TypeInfo{
			Name:       c.Name,
			Size:       c.Size,
			Enableable: c.Enableable,
			Shared:     c.Shared,
		})
		if err != nil {
			return eris.Wrapf(err, "failed to register component %s", c.Name)
		}
		r.types[c.Name] = idx
	}
	for _, c := range s.Components {
		if len(c.WriteGroup) == 0 {
			continue
		}
		group := []query.TypeIndex{r.types[c.Name]}
		for _, sibling := range c.WriteGroup {
			group = append(group, r.types[sibling])
		}
		if err := r.world.Types().SetWriteGroup(group...); err != nil {
			return eris.Wrapf(err, "failed to set write group of %s", c.Name)
		}
	}
	return nil
}

// populate creates the population. The first entities get the disabled components.
func (r *Runner) populate(p *Population) error {
	types := r.indices(p.Components)
	entities, err := r.world.CreateMany(p.Count, types...)
	if err != nil {
		return err
	}

	for name, value := range p.Shared {
		t := r.types[name]
		for _, e := range entities {
			if err := r.world.SetShared(e, t, value); err != nil {
				return err
			}
		}
	}
	for name, fraction := range p.Disabled {
		t := r.types[name]
		n := int(math.Round(fraction * float64(len(entities))))
		for _, e := range entities[:n] {
			if err := r.world.SetEnabled(e, t, false); err != nil {
				return err
			}
		}
	}

	r.logger.Debug().
		Strs("components", p.Components).
		Int("count", p.Count).
		Msg("population created")
	return nil
}

// compile builds every query of the scenario in order.
func (r *Runner) compile(s *Scenario) ([]*query.Query, error) {
	registry := r.world.Queries()
	b := registry.NewBuilder()
	queries := make([]*query.Query, 0, len(s.Queries))

	for _, decl := range s.Queries {
		b.Reset()
		for _, sq := range decl.SubQueries {
			var options query.Options
			for _, name := range sq.Options {
				flag, _ := query.ParseOption(name)
				options |= flag
			}
			b.WithAll(r.refs(sq.All)...).
				WithAny(r.refs(sq.Any)...).
				WithNone(r.indices(sq.None)...).
				WithDisabled(r.indices(sq.Disabled)...).
				WithAbsent(r.indices(sq.Absent)...).
				WithOptions(options).
				FinishSubQuery()
		}

		q, err := b.Build(registry)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to compile query %s", decl.Name)
		}
		statsd.Incr("scenario.query_compiled")
		queries = append(queries, q)
	}
	return queries, nil
}

func (r *Runner) refs(names []string) []query.ComponentType {
	out := make([]query.ComponentType, 0, len(names))
	for _, ref := range names {
		name, access := parseRef(ref)
		out = append(out, query.ComponentType{Index: r.types[name], Access: access})
	}
	return out
}

func (r *Runner) indices(names []string) []query.TypeIndex {
	out := make([]query.TypeIndex, 0, len(names))
	for _, name := range names {
		out = append(out, r.types[name])
	}
	return out
}
