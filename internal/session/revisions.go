package session

// revisions выдает монотонные штампы ревизий и помнит для каждой грани субъекта
// последнюю выданную и последнюю подтвержденную ревизию.
type revisions struct {
	clock     uint64
	latest    map[string]uint64
	confirmed map[string]uint64
}

func newRevisions() *revisions {
	return &revisions{
		latest:    make(map[string]uint64),
		confirmed: make(map[string]uint64),
	}
}

func (r *revisions) stamp(facet string) uint64 {
	r.clock++
	r.latest[facet] = r.clock
	return r.clock
}

func (r *revisions) isLatest(facet string, rev uint64) bool {
	return r.latest[facet] <= rev
}

func (r *revisions) confirm(facet string, rev uint64) {
	if rev > r.confirmed[facet] {
		r.confirmed[facet] = rev
	}
}

// superseded - подтверждение более новой ревизии уже применено
func (r *revisions) superseded(facet string, rev uint64) bool {
	return r.confirmed[facet] > rev
}

// Facet строит ключ грани субъекта: likes, content, shares, ...
func Facet(subjectKey, facet string) string {
	return subjectKey + "#" + facet
}
