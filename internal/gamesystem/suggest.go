package gamesystem

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler score for a catalog entry to
// count as similar when it is not a prefix match.
const suggestThreshold = 0.80

// Suggest ranks catalog entries by similarity to query, best first. Prefix
// matches on id or name rank above fuzzy matches. An empty query returns the
// catalog in display order. limit <= 0 means no limit.
func (r *Registry) Suggest(query string, limit int) []Descriptor {
	catalog := r.ListAvailable()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return truncate(catalog, limit)
	}

	type scored struct {
		d     Descriptor
		score float64
	}
	var hits []scored
	for _, d := range catalog {
		id, name := strings.ToLower(d.ID), strings.ToLower(d.Name)
		score := max(matchr.JaroWinkler(q, id, false), matchr.JaroWinkler(q, name, false))
		switch {
		case strings.HasPrefix(id, q) || strings.HasPrefix(name, q):
			score += 1
		case score < suggestThreshold:
			continue
		}
		hits = append(hits, scored{d: d, score: score})
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]Descriptor, len(hits))
	for i, h := range hits {
		out[i] = h.d
	}
	return truncate(out, limit)
}

func truncate(ds []Descriptor, limit int) []Descriptor {
	if limit > 0 && len(ds) > limit {
		return ds[:limit]
	}
	return ds
}
