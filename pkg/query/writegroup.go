package query

// expandWriteGroups applies write-group filtering to d. Read-only types of All, Any, and Disabled
// pull their write-group siblings into Any, following siblings of siblings. Read-write types push
// their direct siblings into None. A type that is already mentioned anywhere in the sub-query, or
// was added earlier in the expansion, is never added again, which also bounds the recursion.
func expandWriteGroups(d *Desc, types TypeRegistry) {
	explicit := make(map[TypeIndex]struct{})
	for _, list := range d.lists() {
		for _, ct := range *list {
			explicit[ct.Index] = struct{}{}
		}
	}

	var addAny, addNone []ComponentType

	var visitReadOnly func(t TypeIndex)
	visitReadOnly = func(t TypeIndex) {
		info, ok := types.TypeInfo(t)
		if !ok {
			return
		}
		for _, sibling := range info.WriteGroup {
			if _, ok := explicit[sibling]; ok {
				continue
			}
			explicit[sibling] = struct{}{}
			addAny = append(addAny, Read(sibling))
			visitReadOnly(sibling)
		}
	}

	for _, list := range [][]ComponentType{d.All, d.Any, d.Disabled} {
		for _, ct := range list {
			switch ct.Access {
			case ReadOnly:
				visitReadOnly(ct.Index)
			case ReadWrite:
				info, ok := types.TypeInfo(ct.Index)
				if !ok {
					continue
				}
				for _, sibling := range info.WriteGroup {
					if _, ok := explicit[sibling]; ok {
						continue
					}
					explicit[sibling] = struct{}{}
					addNone = append(addNone, Read(sibling))
				}
			case Exclude:
			}
		}
	}

	if len(addAny) == 0 && len(addNone) == 0 {
		return
	}
	d.Any = append(d.Any, addAny...)
	d.None = append(d.None, addNone...)
	d.canonicalize()
}
