package record

// ColumnMap renames one source column to a target attribute name.
// An empty Target means the pair is unset.
type ColumnMap struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FieldMapping is an ordered list of source → target pairs applied as a
// projection: fields whose name is not a mapped source are dropped.
type FieldMapping []ColumnMap

// Sources returns the distinct source names in first-occurrence order.
func (m FieldMapping) Sources() []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, cm := range m {
		if seen[cm.Source] {
			continue
		}
		seen[cm.Source] = true
		out = append(out, cm.Source)
	}
	return out
}

// Projection is a compiled FieldMapping. It is immutable and safe for
// concurrent use.
type Projection struct {
	pairs []ColumnMap
}

// Compile resolves m into a Projection.
//
// When several pairs share a source, the last pair's target wins and the
// resolved pair keeps the position of the source's first occurrence. A
// source whose winning target is empty is left out entirely.
func (m FieldMapping) Compile() Projection {
	pos := make(map[string]int, len(m))
	resolved := make([]ColumnMap, 0, len(m))
	for _, cm := range m {
		if i, ok := pos[cm.Source]; ok {
			resolved[i].Target = cm.Target
			continue
		}
		pos[cm.Source] = len(resolved)
		resolved = append(resolved, cm)
	}

	pairs := resolved[:0]
	for _, cm := range resolved {
		if cm.Target != "" {
			pairs = append(pairs, cm)
		}
	}
	return Projection{pairs: pairs}
}

// Pairs returns the effective pairs in output order.
func (p Projection) Pairs() []ColumnMap {
	out := make([]ColumnMap, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// Targets returns the effective target names in output order.
func (p Projection) Targets() []string {
	out := make([]string, len(p.pairs))
	for i, cm := range p.pairs {
		out[i] = cm.Target
	}
	return out
}

// Apply projects r through p. Output order follows the mapping, filtered to
// sources present in r. If two sources map to the same target, the later
// pair's value overwrites the earlier one in place.
func (p Projection) Apply(r Record) Record {
	out := New(len(p.pairs))
	for _, cm := range p.pairs {
		v, ok := r.Get(cm.Source)
		if !ok {
			continue
		}
		out.Set(cm.Target, v)
	}
	return out
}

// ApplyAll projects every record in rs.
func (p Projection) ApplyAll(rs []Record) []Record {
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = p.Apply(r)
	}
	return out
}

// Remap projects a single record through m.
// Callers remapping many records should Compile once and reuse the result.
func Remap(r Record, m FieldMapping) Record {
	return m.Compile().Apply(r)
}
