package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/movebox/customerdupes/internal/dedupe"
	"github.com/movebox/customerdupes/internal/models"
)

// RecordMerge has the dedupe.Observer signature and writes one merge_log
// row per group an engine operation touched.
func (db *DB) RecordMerge(mode string, g dedupe.Group, opErr error) {
	entry := models.MergeLog{
		Mode:       mode,
		MasterID:   g.MasterID,
		MatchType:  string(g.MatchType),
		Confidence: g.Confidence,
	}
	for _, m := range g.Members {
		if m.ID != g.MasterID {
			entry.RemovedIDs = append(entry.RemovedIDs, m.ID)
		}
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}
	if err := db.LogMerge(context.Background(), entry); err != nil {
		slog.Error("Failed to write merge log", "master", g.MasterID, "error", err)
	}
}

func (db *DB) LogMerge(ctx context.Context, entry models.MergeLog) error {
	removed := entry.RemovedIDs
	if removed == nil {
		removed = []string{}
	}
	ids, err := json.Marshal(removed)
	if err != nil {
		return fmt.Errorf("encode removed ids: %w", err)
	}

	var errMsg *string
	if entry.ErrorMessage != "" {
		errMsg = &entry.ErrorMessage
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO merge_log (mode, master_id, removed_ids, match_type, confidence, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Mode, entry.MasterID, string(ids), entry.MatchType, entry.Confidence, errMsg)
	return err
}

func (db *DB) RecentMerges(ctx context.Context, limit int) ([]models.MergeLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, mode, master_id, removed_ids, match_type, confidence, error_message, created_at
		FROM merge_log
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.MergeLog, 0)
	for rows.Next() {
		var l models.MergeLog
		var ids, createdAt string
		var errMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.Mode, &l.MasterID, &ids, &l.MatchType, &l.Confidence, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan merge log: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &l.RemovedIDs); err != nil {
			return nil, fmt.Errorf("decode removed ids: %w", err)
		}
		l.ErrorMessage = errMsg.String
		l.CreatedAt, _ = parseTime(createdAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ProcessedCount counts groups that were merged or cleaned up successfully.
func (db *DB) ProcessedCount(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM merge_log WHERE error_message IS NULL`).Scan(&n)
	return n, err
}
