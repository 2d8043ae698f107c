package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/movebox/customerdupes/internal/models"
)

// Store is the customer backend the engine reads from and writes to.
// Update and Delete must fail on unknown ids instead of silently succeeding.
type Store interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	UpdateCustomer(ctx context.Context, id string, patch models.CustomerPatch) error
	DeleteCustomer(ctx context.Context, id string) error
}

var (
	ErrEmptyProposal   = errors.New("proposal has no selected ids")
	ErrInvalidProposal = errors.New("invalid proposal")
)

type Step string

const (
	StepUpdate Step = "update"
	StepDelete Step = "delete"
)

// CommitError identifies the group and record at which a commit stopped.
// Steps before the failing one have already been applied.
type CommitError struct {
	MasterID string
	RecordID string
	Step     Step
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("merge %s: %s %s: %v", e.MasterID, e.Step, e.RecordID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// BatchResult reports a bulk operation group by group.
type BatchResult struct {
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	MergedMasters []string `json:"merged_masters,omitempty"`
	Errors        []error  `json:"-"`
}

// ErrorStrings renders Errors for JSON responses and reports.
func (r BatchResult) ErrorStrings() []string {
	out := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Observer is notified after every group an engine operation touches.
// err is nil on success.
type Observer func(mode string, g Group, err error)

type Engine struct {
	store    Store
	grouper  Grouper
	observer Observer
	mu       sync.Mutex // serializes writes issued by this process
}

func NewEngine(store Store, grouper Grouper) *Engine {
	return &Engine{store: store, grouper: grouper}
}

// SetObserver installs a callback for merge bookkeeping.
func (e *Engine) SetObserver(fn Observer) {
	e.observer = fn
}

// Detect loads a fresh snapshot and groups it. A read failure yields no groups.
func (e *Engine) Detect(ctx context.Context) ([]Group, []models.Customer, error) {
	customers, err := e.store.ListCustomers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list customers: %w", err)
	}
	groups := e.grouper.Group(customers)
	slog.Debug("Duplicate detection finished",
		"grouper", e.grouper.Name(),
		"customers", len(customers),
		"groups", len(groups),
	)
	return groups, customers, nil
}

// Commit applies the merged data to the surviving record and deletes the
// others in order. It is not atomic: on failure the remaining steps are
// skipped and nothing is rolled back.
func (e *Engine) Commit(ctx context.Context, p Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commit(ctx, p)
}

func (e *Engine) commit(ctx context.Context, p Proposal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	masterID := p.SelectedIDs[0]

	if err := e.store.UpdateCustomer(ctx, masterID, p.MergedData); err != nil {
		return &CommitError{MasterID: masterID, RecordID: masterID, Step: StepUpdate, Err: err}
	}

	for _, id := range p.SelectedIDs[1:] {
		if err := e.store.DeleteCustomer(ctx, id); err != nil {
			return &CommitError{MasterID: masterID, RecordID: id, Step: StepDelete, Err: err}
		}
	}

	slog.Info("Merged customers", "master", masterID, "removed", len(p.SelectedIDs)-1)
	return nil
}

// CommitGroup commits an edited proposal and reports it to the observer.
// The reported group keeps g's score but holds exactly the selected
// records, in proposal order, so partial merges are logged as such.
// Invalid proposals are rejected without notifying.
func (e *Engine) CommitGroup(ctx context.Context, g Group, p Proposal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	err := e.Commit(ctx, p)
	e.notify(models.MergeModeManual, selectedGroup(g, p), err)
	return err
}

// selectedGroup narrows g to the proposal's ids. Ids that are not members
// of g appear with only their id set.
func selectedGroup(g Group, p Proposal) Group {
	byID := make(map[string]models.Customer, len(g.Members))
	for _, m := range g.Members {
		byID[m.ID] = m
	}
	out := g
	out.MasterID = p.MasterID()
	out.Members = make([]models.Customer, 0, len(p.SelectedIDs))
	for _, id := range p.SelectedIDs {
		m, ok := byID[id]
		if !ok {
			m = models.Customer{ID: id}
		}
		out.Members = append(out.Members, m)
	}
	return out
}

// AutoMergeExact merges every exact group with its default proposal. Groups
// are committed one after another; a failing group is counted and the
// batch continues.
func (e *Engine) AutoMergeExact(ctx context.Context, groups []Group) BatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res BatchResult
	for _, g := range groups {
		if g.MatchType != MatchExact {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("merge %s: %w", g.MasterID, err))
			continue
		}

		err := e.commit(ctx, BuildProposal(g))
		e.notify(models.MergeModeAuto, g, err)
		if err != nil {
			slog.Error("Auto-merge failed", "master", g.MasterID, "error", err)
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Succeeded++
		res.MergedMasters = append(res.MergedMasters, g.MasterID)
	}
	return res
}

// DeleteKeepFirst removes every member except the anchor, without merging
// any fields. A group stops at its first failing delete; other groups
// still run.
func (e *Engine) DeleteKeepFirst(ctx context.Context, groups []Group) BatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res BatchResult
	for _, g := range groups {
		err := e.deleteRest(ctx, g)
		e.notify(models.MergeModeDelete, g, err)
		if err != nil {
			slog.Error("Deleting duplicates failed", "master", g.MasterID, "error", err)
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Succeeded++
		res.MergedMasters = append(res.MergedMasters, g.MasterID)
	}
	return res
}

func (e *Engine) deleteRest(ctx context.Context, g Group) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete duplicates of %s: %w", g.MasterID, err)
	}
	if len(g.Members) < 2 {
		return nil
	}
	for _, m := range g.Members[1:] {
		if err := e.store.DeleteCustomer(ctx, m.ID); err != nil {
			return &CommitError{MasterID: g.MasterID, RecordID: m.ID, Step: StepDelete, Err: err}
		}
	}
	return nil
}

func (e *Engine) notify(mode string, g Group, err error) {
	if e.observer != nil {
		e.observer(mode, g, err)
	}
}
