package dedupe

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/movebox/customerdupes/internal/models"
)

// Report is the JSON summary written by the command line scan and
// auto-merge modes.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Mode      string        `json:"mode"`
	Stats     models.Stats  `json:"statistics"`
	Groups    []ReportGroup `json:"groups"`
	Errors    []string      `json:"errors,omitempty"`
}

type ReportGroup struct {
	Name       string    `json:"name"`
	MatchType  MatchType `json:"match_type"`
	Confidence float64   `json:"confidence"`
	Reasons    []string  `json:"reasons"`
	Kept       string    `json:"kept"`
	Removed    []string  `json:"removed"`
}

func NewReport(mode string, now time.Time, stats models.Stats, groups []Group) Report {
	r := Report{
		Timestamp: now.UTC(),
		Mode:      mode,
		Stats:     stats,
		Groups:    make([]ReportGroup, 0, len(groups)),
	}
	for _, g := range groups {
		rg := ReportGroup{
			MatchType:  g.MatchType,
			Confidence: g.Confidence,
			Reasons:    g.MatchReasons,
			Kept:       g.MasterID,
			Removed:    make([]string, 0, len(g.Members)),
		}
		if len(g.Members) > 0 {
			rg.Name = g.Members[0].Name
			for _, m := range g.Members[1:] {
				rg.Removed = append(rg.Removed, m.ID)
			}
		}
		r.Groups = append(r.Groups, rg)
	}
	return r
}

// WriteFile stores the report as indented JSON.
func (r Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
