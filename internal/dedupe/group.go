package dedupe

import (
	"sort"

	"github.com/movebox/customerdupes/internal/models"
)

// Group is a set of customers that likely describe the same person.
// Members[0] is the anchor and survives a merge.
type Group struct {
	MasterID     string            `json:"master_id"`
	Members      []models.Customer `json:"members"`
	Confidence   float64           `json:"confidence"`
	MatchType    MatchType         `json:"match_type"`
	MatchReasons []string          `json:"match_reasons"`
}

// Grouper clusters customers into disjoint duplicate groups.
type Grouper interface {
	Group(records []models.Customer) []Group
	Name() string
}

// GreedyGrouper anchors a group on the first ungrouped record and claims
// every later ungrouped record whose pairwise score with the anchor clears
// the inclusion threshold. Records claimed once are never revisited, so
// the outcome depends on input order.
type GreedyGrouper struct {
	cmp       *Comparator
	threshold float64
}

func NewGreedyGrouper(cfg Config) *GreedyGrouper {
	return &GreedyGrouper{
		cmp:       NewComparator(cfg),
		threshold: cfg.InclusionThreshold,
	}
}

func (g *GreedyGrouper) Name() string {
	return "greedy"
}

// Group returns the groups ordered by confidence, highest first.
func (g *GreedyGrouper) Group(records []models.Customer) []Group {
	groups := make([]Group, 0)
	grouped := make(map[string]bool)

	for i := range records {
		if grouped[records[i].ID] {
			continue
		}

		var (
			members  []models.Customer
			reasons  []string
			seen     = make(map[string]bool)
			best     float64
			bestType = MatchPotential
		)

		for j := i + 1; j < len(records); j++ {
			if grouped[records[j].ID] {
				continue
			}

			cmp := g.cmp.Compare(records[i], records[j])
			if cmp.Confidence <= g.threshold {
				continue
			}

			members = append(members, records[j])
			if cmp.Confidence > best {
				best = cmp.Confidence
				bestType = cmp.MatchType
			}
			for _, r := range cmp.Reasons {
				if !seen[r] {
					seen[r] = true
					reasons = append(reasons, r)
				}
			}
		}

		if len(members) == 0 {
			continue
		}

		grouped[records[i].ID] = true
		for _, m := range members {
			grouped[m.ID] = true
		}

		groups = append(groups, Group{
			MasterID:     records[i].ID,
			Members:      append([]models.Customer{records[i]}, members...),
			Confidence:   best,
			MatchType:    bestType,
			MatchReasons: reasons,
		})
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Confidence > groups[b].Confidence
	})
	return groups
}

// FindDuplicates groups records with the default configuration.
func FindDuplicates(records []models.Customer) []Group {
	return NewGreedyGrouper(DefaultConfig()).Group(records)
}
