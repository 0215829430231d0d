// internal/workers/data-access/query-postgresql/queries/queue.go
package queries

import (
	"context"
	"database/sql"
	"time"
)

func QueueEntryByUser(ctx context.Context, db *sql.DB, params map[string]interface{}) (interface{}, int, int64, error) {
	userID, ok := params["userId"].(string)
	if !ok {
		return nil, 0, 0, ErrMissingParam
	}

	start := time.Now()

	var (
		id, status           string
		availableFrom        int64
		availableTo          int64
		constraints          []byte
		matchedWith, matchID sql.NullString
		createdAt, updatedAt time.Time
	)

	err := db.QueryRowContext(ctx, `
		SELECT id, status, available_from, available_to, constraints,
		       matched_with, match_id, created_at, updated_at
		FROM queue_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID).Scan(
		&id, &status, &availableFrom, &availableTo, &constraints,
		&matchedWith, &matchID, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, 0, time.Since(start).Milliseconds(), nil
	}
	if err != nil {
		return nil, 0, 0, err
	}

	result := map[string]interface{}{
		"id":            id,
		"userId":        userID,
		"status":        status,
		"availableFrom": availableFrom,
		"availableTo":   availableTo,
		"constraints":   string(constraints),
		"matchedWith":   matchedWith.String,
		"matchId":       matchID.String,
		"createdAt":     createdAt.UTC().Format(time.RFC3339),
		"updatedAt":     updatedAt.UTC().Format(time.RFC3339),
	}

	execTime := time.Since(start).Milliseconds()
	return result, 1, execTime, nil
}

func QueueDepth(ctx context.Context, db *sql.DB, params map[string]interface{}) (interface{}, int, int64, error) {
	start := time.Now()

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM queue_entries
		GROUP BY status`)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	depths := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, 0, 0, err
		}
		depths[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	execTime := time.Since(start).Milliseconds()
	return depths, len(depths), execTime, nil
}
