package model

// Filter selects assessments.
type Filter func(a *Assessment) bool

// OnDimension matches assessments along dimension.
func OnDimension(dimension EntryHash) Filter {
	return func(a *Assessment) bool { return a.DimensionEh == dimension }
}

// ForResource matches assessments of resource.
func ForResource(resource EntryHash) Filter {
	return func(a *Assessment) bool { return a.ResourceEh == resource }
}

// ByAuthor matches assessments written by author.
func ByAuthor(author AgentPubKey) Filter {
	return func(a *Assessment) bool { return a.Author == author }
}

// All combines filters with logical and.
func All(filters ...Filter) Filter {
	return func(a *Assessment) bool {
		for _, f := range filters {
			if f != nil && !f(a) {
				return false
			}
		}
		return true
	}
}

// Latest returns a copy of the matching assessment with the greatest
// timestamp, or nil when nothing matches. A nil filter matches everything.
//
// Equal timestamps resolve to the element that appears later in the slice.
// Stores return assessments in insertion order, so the most recently stored
// one wins.
func Latest(assessments []Assessment, filter Filter) *Assessment {
	var latest *Assessment
	for i := range assessments {
		a := &assessments[i]
		if filter != nil && !filter(a) {
			continue
		}
		if latest == nil || a.Timestamp >= latest.Timestamp {
			latest = a
		}
	}
	if latest == nil {
		return nil
	}
	out := *latest
	return &out
}

// LatestIn applies Latest across every list of a store query result.
// Lists are visited in the order of keys so ties between lists are stable.
func LatestIn(byResource map[EntryHash][]Assessment, keys []EntryHash, filter Filter) *Assessment {
	var latest *Assessment
	visit := func(list []Assessment) {
		if candidate := Latest(list, filter); candidate != nil {
			if latest == nil || candidate.Timestamp >= latest.Timestamp {
				latest = candidate
			}
		}
	}
	if len(keys) == 0 {
		for _, list := range byResource {
			visit(list)
		}
		return latest
	}
	for _, k := range keys {
		visit(byResource[k])
	}
	return latest
}
