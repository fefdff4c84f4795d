package query

import (
	"strconv"

	"github.com/rs/zerolog"
)

func typeName(types TypeRegistry, t TypeIndex) string {
	if info, ok := types.TypeInfo(t); ok && info.Name != "" {
		return info.Name
	}
	return strconv.FormatUint(uint64(t), 10)
}

func loadComponentsIntoArray(types TypeRegistry, list []ComponentType) *zerolog.Array {
	arr := zerolog.Arr()
	for _, ct := range list {
		arr = arr.Dict(zerolog.Dict().
			Str("name", typeName(types, ct.Index)).
			Str("access", ct.Access.String()))
	}
	return arr
}

func loadDescIntoDict(types TypeRegistry, d *Desc) *zerolog.Event {
	dict := zerolog.Dict()
	lists := d.lists()
	for i, key := range [...]string{"all", "any", "none", "disabled", "absent"} {
		if len(*lists[i]) > 0 {
			dict = dict.Array(key, loadComponentsIntoArray(types, *lists[i]))
		}
	}
	if d.Options != OptionDefault {
		dict = dict.Strs("options", d.Options.Names())
	}
	return dict
}

// logQueryCompiled logs a newly compiled query at debug level.
func logQueryCompiled(logger zerolog.Logger, types TypeRegistry, q *Query) {
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	subQueries := zerolog.Arr()
	for i := range q.subQueries {
		subQueries = subQueries.Dict(loadDescIntoDict(types, &q.subQueries[i].desc))
	}
	logger.Debug().
		Int("query_id", q.id).
		Str("hash", strconv.FormatUint(q.hash, 16)).
		Int("matching_archetypes", len(q.matching)).
		Array("sub_queries", subQueries).
		Msg("query compiled")
}
