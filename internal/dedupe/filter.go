package dedupe

import (
	"strings"

	"github.com/movebox/customerdupes/internal/models"
)

// Filter keeps groups with at least one member matching query and, when
// matchType is set, groups of that type. Name and email match
// case-insensitively, phone as a raw substring.
func Filter(groups []Group, query string, matchType MatchType) []Group {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if matchType != "" && g.MatchType != matchType {
			continue
		}
		if q != "" && !groupMatches(g, q, strings.TrimSpace(query)) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func groupMatches(g Group, lowered, raw string) bool {
	for _, c := range g.Members {
		if strings.Contains(strings.ToLower(c.Name), lowered) ||
			(c.Email != "" && strings.Contains(strings.ToLower(c.Email), lowered)) ||
			(c.Phone != "" && strings.Contains(c.Phone, raw)) {
			return true
		}
	}
	return false
}

// FindGroup returns the group anchored at masterID.
func FindGroup(groups []Group, masterID string) (Group, bool) {
	for _, g := range groups {
		if g.MasterID == masterID {
			return g, true
		}
	}
	return Group{}, false
}

// SelectGroups keeps the groups anchored at one of masterIDs, in group order.
func SelectGroups(groups []Group, masterIDs []string) []Group {
	want := make(map[string]bool, len(masterIDs))
	for _, id := range masterIDs {
		want[id] = true
	}
	out := make([]Group, 0, len(masterIDs))
	for _, g := range groups {
		if want[g.MasterID] {
			out = append(out, g)
		}
	}
	return out
}

// CountByType fills the group counters of a Stats value.
func CountByType(groups []Group) models.Stats {
	s := models.Stats{TotalGroups: len(groups)}
	for _, g := range groups {
		switch g.MatchType {
		case MatchExact:
			s.Exact++
		case MatchSimilar:
			s.Similar++
		case MatchPotential:
			s.Potential++
		}
	}
	return s
}
