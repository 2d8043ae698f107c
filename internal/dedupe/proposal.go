package dedupe

import (
	"fmt"
	"strings"

	"github.com/movebox/customerdupes/internal/models"
)

const notesSeparator = "\n\n"

// Proposal is an operator-editable merge plan. SelectedIDs[0] survives,
// the rest are deleted on commit. MergedData may be changed freely before
// the proposal is committed.
type Proposal struct {
	SelectedIDs    []string             `json:"selected_ids"`
	MasterCustomer models.Customer      `json:"master_customer"`
	MergedData     models.CustomerPatch `json:"merged_data"`
}

// MasterID returns the id of the surviving record, or "" for an empty proposal.
func (p Proposal) MasterID() string {
	if len(p.SelectedIDs) == 0 {
		return ""
	}
	return p.SelectedIDs[0]
}

// Validate rejects proposals that would delete the survivor or touch a
// record twice.
func (p Proposal) Validate() error {
	if len(p.SelectedIDs) == 0 {
		return ErrEmptyProposal
	}
	seen := make(map[string]bool, len(p.SelectedIDs))
	for i, id := range p.SelectedIDs {
		if id == "" {
			return fmt.Errorf("%w: empty id at position %d", ErrInvalidProposal, i)
		}
		if seen[id] {
			if id == p.SelectedIDs[0] {
				return fmt.Errorf("%w: surviving record %s is also selected for deletion", ErrInvalidProposal, id)
			}
			return fmt.Errorf("%w: id %s selected twice", ErrInvalidProposal, id)
		}
		seen[id] = true
	}
	return nil
}

// BuildProposal copies the anchor's fields into the merged data, then
// replaces notes with every member's non-empty notes joined by a blank
// line and tags with the union of all member tags.
func BuildProposal(g Group) Proposal {
	if len(g.Members) == 0 {
		return Proposal{}
	}
	master := g.Members[0]

	ids := make([]string, 0, len(g.Members))
	var notes []string
	var tags []string
	seenTag := make(map[string]bool)
	for _, m := range g.Members {
		ids = append(ids, m.ID)
		if m.Notes != "" {
			notes = append(notes, m.Notes)
		}
		for _, t := range m.Tags {
			if !seenTag[t] {
				seenTag[t] = true
				tags = append(tags, t)
			}
		}
	}

	mergedNotes := strings.Join(notes, notesSeparator)
	if tags == nil {
		tags = []string{}
	}

	return Proposal{
		SelectedIDs:    ids,
		MasterCustomer: master,
		MergedData: models.CustomerPatch{
			Name:        ptr(master.Name),
			Email:       ptr(master.Email),
			Phone:       ptr(master.Phone),
			FromAddress: ptr(master.FromAddress),
			ToAddress:   ptr(master.ToAddress),
			MovingDate:  ptr(master.MovingDate),
			Notes:       &mergedNotes,
			Tags:        &tags,
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}
