package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/argus-labs/archquery/pkg/query"
	"github.com/argus-labs/archquery/pkg/scenario"
	"github.com/argus-labs/archquery/pkg/world"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const movementYAML = `
name: movement
components:
  - name: position
    size: 12
  - name: velocity
    size: 12
  - name: health
    size: 4
    enableable: true
  - name: team
    size: 4
    shared: true
  - name: scale
    size: 4
    write_group: [transform]
  - name: transform
    size: 64
archetypes:
  - components: [position, velocity]
    count: 10
  - components: [position, health]
    count: 4
    disabled:
      health: 0.5
  - components: [position, team]
    count: 3
    shared:
      team: red
  - components: [scale, transform]
    count: 2
queries:
  - name: moving
    sub_queries:
      - all: [rw:position, velocity]
  - name: healthy
    sub_queries:
      - all: [health]
  - name: hurt
    sub_queries:
      - disabled: [health]
  - name: standing
    sub_queries:
      - all: [position]
        none: [velocity]
  - name: moving_or_hurt
    sub_queries:
      - all: [velocity]
      - disabled: [health]
  - name: scaled
    sub_queries:
      - all: [scale]
        options: [filter_write_group]
  - name: writing_scale
    sub_queries:
      - all: [rw:scale]
        options: [filter_write_group]
`

func newWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.Options{ChunkCapacity: 8, CheckCache: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	s, err := scenario.Parse([]byte(movementYAML), scenario.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "movement", s.Name)
	assert.Len(t, s.Components, 6)
	assert.Equal(t, []string{"transform"}, s.Components[4].WriteGroup)
	assert.InDelta(t, 0.5, s.Archetypes[1].Disabled["health"], 1e-9)
	assert.Equal(t, "red", s.Archetypes[2].Shared["team"])
	assert.Equal(t, []string{"rw:position", "velocity"}, s.Queries[0].SubQueries[0].All)
}

func TestParse_JSONMatchesYAML(t *testing.T) {
	t.Parallel()

	fromYAML, err := scenario.Parse([]byte(movementYAML), scenario.FormatYAML)
	require.NoError(t, err)

	data, err := json.Marshal(fromYAML)
	require.NoError(t, err)
	fromJSON, err := scenario.Parse(data, scenario.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, fromYAML, fromJSON)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := scenario.Parse([]byte("name: x\nquery: []\n"), scenario.FormatYAML)
	require.Error(t, err)

	_, err = scenario.Parse([]byte(`{"name":"x","query":[]}`), scenario.FormatJSON)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() scenario.Scenario {
		return scenario.Scenario{
			Name: "base",
			Components: []scenario.Component{
				{Name: "a", Size: 4},
				{Name: "e", Size: 4, Enableable: true},
				{Name: "s", Size: 4, Shared: true},
			},
			Archetypes: []scenario.Population{{Components: []string{"a", "e", "s"}, Count: 2}},
			Queries: []scenario.Query{
				{Name: "q", SubQueries: []scenario.SubQuery{{All: []string{"rw:a"}}}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(s *scenario.Scenario)
	}{
		{name: "missing name", mutate: func(s *scenario.Scenario) { s.Name = "" }},
		{name: "no queries", mutate: func(s *scenario.Scenario) { s.Queries = nil }},
		{name: "duplicate component", mutate: func(s *scenario.Scenario) {
			s.Components = append(s.Components, scenario.Component{Name: "a"})
		}},
		{name: "prefixed component name", mutate: func(s *scenario.Scenario) {
			s.Components = append(s.Components, scenario.Component{Name: "rw:b"})
		}},
		{name: "negative size", mutate: func(s *scenario.Scenario) { s.Components[0].Size = -1 }},
		{name: "unknown write group member", mutate: func(s *scenario.Scenario) {
			s.Components[0].WriteGroup = []string{"missing"}
		}},
		{name: "zero count", mutate: func(s *scenario.Scenario) { s.Archetypes[0].Count = 0 }},
		{name: "unknown population component", mutate: func(s *scenario.Scenario) {
			s.Archetypes[0].Components = []string{"missing"}
		}},
		{name: "disabled non-enableable", mutate: func(s *scenario.Scenario) {
			s.Archetypes[0].Disabled = map[string]float64{"a": 0.5}
		}},
		{name: "disabled fraction out of range", mutate: func(s *scenario.Scenario) {
			s.Archetypes[0].Disabled = map[string]float64{"e": 1.5}
		}},
		{name: "shared non-shared", mutate: func(s *scenario.Scenario) {
			s.Archetypes[0].Shared = map[string]string{"a": "x"}
		}},
		{name: "duplicate query", mutate: func(s *scenario.Scenario) { s.Queries = append(s.Queries, s.Queries[0]) }},
		{name: "query without sub-queries", mutate: func(s *scenario.Scenario) { s.Queries[0].SubQueries = nil }},
		{name: "unknown query component", mutate: func(s *scenario.Scenario) {
			s.Queries[0].SubQueries[0].None = []string{"missing"}
		}},
		{name: "unknown option", mutate: func(s *scenario.Scenario) {
			s.Queries[0].SubQueries[0].Options = []string{"include_everything"}
		}},
	}

	valid := base()
	require.NoError(t, valid.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := base()
			tt.mutate(&s)
			require.Error(t, s.Validate())
		})
	}
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	s, err := scenario.Parse([]byte(movementYAML), scenario.FormatYAML)
	require.NoError(t, err)

	w := newWorld(t)
	report, err := scenario.NewRunner(w, zerolog.Nop(), false).Run(s)
	require.NoError(t, err)

	assert.Equal(t, "movement", report.Scenario)
	_, err = uuid.Parse(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 19, report.Entities)
	assert.Equal(t, 4, report.Archetypes)

	byName := make(map[string]scenario.QueryReport, len(report.Queries))
	for _, qr := range report.Queries {
		assert.NotEmpty(t, qr.Hash)
		assert.Nil(t, qr.Description)
		byName[qr.Name] = qr
	}

	tests := []struct {
		name       string
		archetypes int
		chunks     int
		entities   int
		unfiltered int
	}{
		{name: "moving", archetypes: 1, chunks: 2, entities: 10, unfiltered: 10},
		{name: "healthy", archetypes: 1, chunks: 1, entities: 2, unfiltered: 4},
		{name: "hurt", archetypes: 1, chunks: 1, entities: 2, unfiltered: 4},
		{name: "standing", archetypes: 2, chunks: 2, entities: 7, unfiltered: 7},
		{name: "moving_or_hurt", archetypes: 2, chunks: 3, entities: 12, unfiltered: 14},
		{name: "scaled", archetypes: 1, chunks: 1, entities: 2, unfiltered: 2},
		{name: "writing_scale", archetypes: 0, chunks: 0, entities: 0, unfiltered: 0},
	}
	for _, tt := range tests {
		qr, ok := byName[tt.name]
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.archetypes, qr.MatchingArchetypes, tt.name)
		assert.Equal(t, tt.chunks, qr.Chunks, tt.name)
		assert.Equal(t, tt.entities, qr.Entities, tt.name)
		assert.Equal(t, tt.unfiltered, qr.UnfilteredEntities, tt.name)
	}

	// Shared values moved the population into one chunk holding the value.
	team, err := w.Types().ID("team")
	require.NoError(t, err)
	position, err := w.Types().ID("position")
	require.NoError(t, err)
	q, err := w.Queries().CompileTypes(query.Read(position), query.Read(team))
	require.NoError(t, err)
	require.NoError(t, q.SetSharedComponentFilter(team, "red"))
	assert.Equal(t, 3, q.CalculateEntityCount())
}

func TestRunner_RunDescribe(t *testing.T) {
	t.Parallel()

	s, err := scenario.Parse([]byte(movementYAML), scenario.FormatYAML)
	require.NoError(t, err)

	report, err := scenario.NewRunner(newWorld(t), zerolog.Nop(), true).Run(s)
	require.NoError(t, err)
	require.NotNil(t, report.Queries[0].Description)
	assert.Equal(t, report.Queries[0].Hash, report.Queries[0].Description.Hash)

	data, err := report.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "movement", decoded["scenario"])
	assert.Len(t, decoded["queries"], len(s.Queries))
}

func TestRunner_Validate(t *testing.T) {
	t.Parallel()

	s, err := scenario.Parse([]byte(movementYAML), scenario.FormatYAML)
	require.NoError(t, err)

	w := newWorld(t)
	require.NoError(t, scenario.NewRunner(w, zerolog.Nop(), false).Validate(s))
	assert.Equal(t, 0, w.EntityCount())
	assert.Len(t, w.Queries().Queries(), len(s.Queries))
}

func TestRunner_ValidateCompileError(t *testing.T) {
	t.Parallel()

	// Only enableable types can be required disabled.
	s := &scenario.Scenario{
		Name:       "conflict",
		Components: []scenario.Component{{Name: "a", Size: 4}},
		Queries: []scenario.Query{{
			Name:       "q",
			SubQueries: []scenario.SubQuery{{Disabled: []string{"a"}}},
		}},
	}
	require.NoError(t, s.Validate())
	require.Error(t, scenario.NewRunner(newWorld(t), zerolog.Nop(), false).Validate(s))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "movement.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(movementYAML), 0o600))
	fromYAML, err := scenario.Load(yamlPath)
	require.NoError(t, err)

	data, err := json.Marshal(fromYAML)
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "movement.JSON")
	require.NoError(t, os.WriteFile(jsonPath, data, 0o600))
	fromJSON, err := scenario.Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, fromYAML, fromJSON)

	_, err = scenario.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, scenario.FormatYAML, scenario.FormatFromPath("x.yml"))
}

func TestRunner_Expectations(t *testing.T) {
	t.Parallel()

	s := &scenario.Scenario{
		Name: "expectations",
		Components: []scenario.Component{
			{Name: "a", Size: 4},
			{Name: "b", Size: 4},
		},
		Archetypes: []scenario.Population{
			{Components: []string{"a"}, Count: 3},
			{Components: []string{"a", "b"}, Count: 2},
		},
		Queries: []scenario.Query{
			{Name: "all_a", SubQueries: []scenario.SubQuery{{All: []string{"a"}}}, Expect: "entities == 5 && archetypes == 2"},
			{Name: "only_b", SubQueries: []scenario.SubQuery{{All: []string{"b"}}}, Expect: "entities > 2"},
			{Name: "unchecked", SubQueries: []scenario.SubQuery{{Absent: []string{"b"}}}},
		},
	}

	report, err := scenario.NewRunner(newWorld(t), zerolog.Nop(), false).Run(s)
	require.NoError(t, err)

	require.NotNil(t, report.Queries[0].Passed)
	assert.True(t, *report.Queries[0].Passed)
	require.NotNil(t, report.Queries[1].Passed)
	assert.False(t, *report.Queries[1].Passed)
	assert.Equal(t, "entities > 2", report.Queries[1].Expect)
	assert.Nil(t, report.Queries[2].Passed)
	assert.Equal(t, 3, report.Queries[2].Entities)
	assert.Equal(t, []string{"only_b"}, report.Failed)
}

func TestValidate_Expectations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expect  string
		wantErr bool
	}{
		{name: "comparison", expect: "chunks <= 2 || unfiltered > entities"},
		{name: "name match", expect: `name == "q" and hash != ""`},
		{name: "syntax error", expect: "entities ==", wantErr: true},
		{name: "not a boolean", expect: "entities + 1", wantErr: true},
		{name: "unknown field", expect: "widgets == 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := scenario.Scenario{
				Name:       "expect",
				Components: []scenario.Component{{Name: "a"}},
				Queries: []scenario.Query{
					{Name: "q", SubQueries: []scenario.SubQuery{{All: []string{"a"}}}, Expect: tt.expect},
				},
			}
			err := s.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
