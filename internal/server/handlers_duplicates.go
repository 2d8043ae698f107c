package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/movebox/customerdupes/internal/database"
	"github.com/movebox/customerdupes/internal/dedupe"
)

func (s *Server) handleDuplicateList(w http.ResponseWriter, r *http.Request) {
	var matchType dedupe.MatchType
	if v := r.URL.Query().Get("type"); v != "" {
		mt, err := dedupe.ParseMatchType(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		matchType = mt
	}

	groups, _, err := s.engine.Detect(r.Context())
	if err != nil {
		storeError(w, "Failed to detect duplicates", err)
		return
	}
	groups = dedupe.Filter(groups, r.URL.Query().Get("q"), matchType)
	jsonResponse(w, map[string]any{"groups": groups, "count": len(groups)})
}

func (s *Server) handleDuplicateStats(w http.ResponseWriter, r *http.Request) {
	groups, customers, err := s.engine.Detect(r.Context())
	if err != nil {
		storeError(w, "Failed to detect duplicates", err)
		return
	}
	stats := dedupe.CountByType(groups)
	stats.TotalCustomers = len(customers)
	if stats.Processed, err = s.db.ProcessedCount(r.Context()); err != nil {
		storeError(w, "Failed to count processed merges", err)
		return
	}

	resp := map[string]any{"stats": stats}
	if size, err := s.db.DatabaseSizeBytes(); err == nil {
		resp["database_size_bytes"] = size
	} else {
		slog.Warn("Failed to stat database file", "error", err)
	}
	if s.sched != nil {
		if last := s.sched.LastRun(); last != nil {
			resp["last_auto_merge"] = last
		}
	}
	jsonResponse(w, resp)
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	groups, _, err := s.engine.Detect(r.Context())
	if err != nil {
		storeError(w, "Failed to detect duplicates", err)
		return
	}
	g, ok := dedupe.FindGroup(groups, r.PathValue("masterId"))
	if !ok {
		jsonError(w, "No duplicate group for this customer", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]any{"group": g, "proposal": dedupe.BuildProposal(g)})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var p dedupe.Proposal
	if err := decodeJSON(r, &p); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	groups, _, err := s.engine.Detect(r.Context())
	if err != nil {
		storeError(w, "Failed to detect duplicates", err)
		return
	}
	// The operator may merge records detection no longer groups; the
	// engine logs whatever ids the proposal selects.
	g, ok := dedupe.FindGroup(groups, p.MasterID())
	if !ok {
		g = dedupe.Group{MasterID: p.MasterID()}
	}

	if err := s.engine.CommitGroup(r.Context(), g, p); err != nil {
		commitError(w, err)
		return
	}
	jsonResponse(w, map[string]any{
		"merged":  p.MasterID(),
		"removed": p.SelectedIDs[1:],
	})
}

func (s *Server) handleAutoMerge(w http.ResponseWriter, r *http.Request) {
	groups, _, err := s.engine.Detect(r.Context())
	if err != nil {
		storeError(w, "Failed to detect duplicates", err)
		return
	}
	res := s.engine.AutoMergeExact(r.Context(), groups)
	jsonResponse(w, batchResponse(res, nil))
}

func (s *Server) handleDeleteDuplicates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MasterIDs []string `json:"master_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.MasterIDs) == 0 {
		jsonError(w, "master_ids is required", http.StatusBadRequest)
		return
	}

	groups, _, err := s.engine.Detect(r.Context())
	if err != nil {
		storeError(w, "Failed to detect duplicates", err)
		return
	}

	var selected []dedupe.Group
	var missing []string
	for _, id := range req.MasterIDs {
		if g, ok := dedupe.FindGroup(groups, id); ok {
			selected = append(selected, g)
		} else {
			missing = append(missing, id)
		}
	}

	res := s.engine.DeleteKeepFirst(r.Context(), selected)
	jsonResponse(w, batchResponse(res, missing))
}

func (s *Server) handleMergeLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}
	logs, err := s.db.RecentMerges(r.Context(), limit)
	if err != nil {
		storeError(w, "Failed to list merges", err)
		return
	}
	jsonResponse(w, map[string]any{"merges": logs})
}

func batchResponse(res dedupe.BatchResult, missing []string) map[string]any {
	resp := map[string]any{
		"succeeded":      res.Succeeded,
		"failed":         res.Failed,
		"merged_masters": res.MergedMasters,
		"errors":         res.ErrorStrings(),
	}
	if len(missing) > 0 {
		resp["missing"] = missing
	}
	return resp
}

// commitError reports where a commit stopped. Steps before the failing one
// stay applied, so the body says which record failed.
func commitError(w http.ResponseWriter, err error) {
	if errors.Is(err, dedupe.ErrInvalidProposal) || errors.Is(err, dedupe.ErrEmptyProposal) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var ce *dedupe.CommitError
	if !errors.As(err, &ce) {
		slog.Error("Merge failed", "error", err)
		jsonError(w, "Merge failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(ce, database.ErrNotFound) {
		status = http.StatusConflict
	} else {
		slog.Error("Merge failed", "master", ce.MasterID, "record", ce.RecordID, "step", ce.Step, "error", ce.Err)
	}
	jsonStatus(w, status, map[string]string{
		"error":     ce.Error(),
		"master_id": ce.MasterID,
		"record_id": ce.RecordID,
		"step":      string(ce.Step),
	})
}
