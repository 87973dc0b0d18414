package scenario

// mergeByIdentity merges the "public objects visible in scenario" bucket
// with the "scenario-local objects" bucket. Items keep insertion order:
// public first, then scenario. When a public and a scenario item share a
// numeric id, both are kept: the later arrival lands under a synthesized
// negative key so neither is silently dropped, and each carries its own
// provenance flag. A duplicate within one bucket replaces the earlier copy.
func mergeByIdentity[T any](public, scenario []T, id func(T) int64, isScenario func(T) bool) []T {
	index := make(map[int64]int, len(public)+len(scenario))
	out := make([]T, 0, len(public)+len(scenario))

	add := func(item T) {
		key := id(item)
		if pos, ok := index[key]; ok {
			if isScenario(out[pos]) != isScenario(item) {
				index[-key] = len(out)
				out = append(out, item)
			} else {
				out[pos] = item
			}
			return
		}
		index[key] = len(out)
		out = append(out, item)
	}

	for _, item := range public {
		add(item)
	}
	for _, item := range scenario {
		add(item)
	}
	return out
}

// MergeGeometries merges public and scenario geometry buckets.
func MergeGeometries(public, scenario []GeometryItem) []GeometryItem {
	return mergeByIdentity(public, scenario,
		func(g GeometryItem) int64 { return g.ID },
		func(g GeometryItem) bool { return g.IsScenarioObject })
}

// MergePhysicalObjects merges public and scenario physical-object buckets.
func MergePhysicalObjects(public, scenario []PhysicalObjectItem) []PhysicalObjectItem {
	return mergeByIdentity(public, scenario,
		func(p PhysicalObjectItem) int64 { return p.ID },
		func(p PhysicalObjectItem) bool { return p.IsScenarioObject })
}

// MergeServices merges public and scenario service buckets.
func MergeServices(public, scenario []ServiceItem) []ServiceItem {
	return mergeByIdentity(public, scenario,
		func(s ServiceItem) int64 { return s.ID },
		func(s ServiceItem) bool { return s.IsScenarioObject })
}

// childKey disambiguates scenario-local and public children sharing a
// numeric id inside one geometry group.
type childKey struct {
	id         int64
	isScenario bool
}

// urbanObjectRow is one flat (geometry, physical object, service) triple
// produced by the readers before grouping.
type urbanObjectRow struct {
	Geometry       GeometryItem
	PhysicalObject *PhysicalObjectItem
	Service        *ServiceItem
}

// groupByGeometry folds flat triples into per-geometry groups with
// deduplicated child lists. Group order follows first appearance; children
// keep insertion order.
func groupByGeometry(rows []urbanObjectRow) []GeometryWithObjects {
	index := make(map[childKey]int)
	seenPhys := make(map[childKey]map[childKey]struct{})
	seenSvc := make(map[childKey]map[childKey]struct{})
	var out []GeometryWithObjects

	for _, row := range rows {
		gk := childKey{row.Geometry.ID, row.Geometry.IsScenarioObject}
		pos, ok := index[gk]
		if !ok {
			pos = len(out)
			index[gk] = pos
			out = append(out, GeometryWithObjects{
				GeometryItem:    row.Geometry,
				PhysicalObjects: []PhysicalObjectItem{},
				Services:        []ServiceItem{},
			})
			seenPhys[gk] = make(map[childKey]struct{})
			seenSvc[gk] = make(map[childKey]struct{})
		}
		if row.PhysicalObject != nil {
			pk := childKey{row.PhysicalObject.ID, row.PhysicalObject.IsScenarioObject}
			if _, dup := seenPhys[gk][pk]; !dup {
				seenPhys[gk][pk] = struct{}{}
				out[pos].PhysicalObjects = append(out[pos].PhysicalObjects, *row.PhysicalObject)
			}
		}
		if row.Service != nil {
			sk := childKey{row.Service.ID, row.Service.IsScenarioObject}
			if _, dup := seenSvc[gk][sk]; !dup {
				seenSvc[gk][sk] = struct{}{}
				out[pos].Services = append(out[pos].Services, *row.Service)
			}
		}
	}
	return out
}
