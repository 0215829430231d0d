// internal/workers/data-access/query-postgresql/queries/analytics.go
package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

func AnalyticsByMatch(ctx context.Context, db *sql.DB, params map[string]interface{}) (interface{}, int, int64, error) {
	matchID, ok := params["matchId"].(string)
	if !ok {
		return nil, 0, 0, ErrMissingParam
	}

	start := time.Now()

	rows, err := db.QueryContext(ctx, `
		SELECT user_id, outcome, feedback_rating, feedback_comment,
		       features, weights, variant, created_at
		FROM matching_analytics
		WHERE match_id = $1
		ORDER BY user_id`, matchID)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		var (
			userID, outcome  string
			rating           sql.NullInt64
			comment, variant sql.NullString
			features         []byte
			weights          []byte
			createdAt        time.Time
		)
		if err := rows.Scan(&userID, &outcome, &rating, &comment,
			&features, &weights, &variant, &createdAt); err != nil {
			return nil, 0, 0, err
		}

		row := map[string]interface{}{
			"matchId":   matchID,
			"userId":    userID,
			"outcome":   outcome,
			"variant":   variant.String,
			"createdAt": createdAt.UTC().Format(time.RFC3339),
		}
		if rating.Valid {
			row["feedbackRating"] = int(rating.Int64)
		}
		if comment.Valid {
			row["feedbackComment"] = comment.String
		}
		row["features"] = unmarshalOrRaw(features)
		row["weights"] = unmarshalOrRaw(weights)

		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	execTime := time.Since(start).Milliseconds()
	return results, len(results), execTime, nil
}

func ActiveWeights(ctx context.Context, db *sql.DB, params map[string]interface{}) (interface{}, int, int64, error) {
	start := time.Now()

	var (
		version     int
		weights     []byte
		improvement sql.NullFloat64
		sampleSize  sql.NullInt64
		createdAt   time.Time
	)
	err := db.QueryRowContext(ctx, `
		SELECT version, weights, improvement, sample_size, created_at
		FROM weight_vectors
		WHERE status = 'active'
		ORDER BY version DESC
		LIMIT 1`).Scan(&version, &weights, &improvement, &sampleSize, &createdAt)
	if err == sql.ErrNoRows {
		return nil, 0, time.Since(start).Milliseconds(), nil
	}
	if err != nil {
		return nil, 0, 0, err
	}

	result := map[string]interface{}{
		"version":   version,
		"weights":   unmarshalOrRaw(weights),
		"createdAt": createdAt.UTC().Format(time.RFC3339),
	}
	if improvement.Valid {
		result["improvement"] = improvement.Float64
	}
	if sampleSize.Valid {
		result["sampleSize"] = int(sampleSize.Int64)
	}

	execTime := time.Since(start).Milliseconds()
	return result, 1, execTime, nil
}

func RecentOutcomes(ctx context.Context, db *sql.DB, params map[string]interface{}) (interface{}, int, int64, error) {
	limit := 100
	if raw, ok := params["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
	}

	start := time.Now()

	rows, err := db.QueryContext(ctx, `
		SELECT match_id, user_id, outcome, variant, created_at
		FROM matching_analytics
		WHERE outcome IN ('completed', 'declined')
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		var (
			matchID, userID, outcome string
			variant                  sql.NullString
			createdAt                time.Time
		)
		if err := rows.Scan(&matchID, &userID, &outcome, &variant, &createdAt); err != nil {
			return nil, 0, 0, err
		}

		results = append(results, map[string]interface{}{
			"matchId":   matchID,
			"userId":    userID,
			"outcome":   outcome,
			"variant":   variant.String,
			"createdAt": createdAt.UTC().Format(time.RFC3339),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	execTime := time.Since(start).Milliseconds()
	return results, len(results), execTime, nil
}

// unmarshalOrRaw keeps jsonb columns structured in the output, falling back
// to the raw string when the column is unreadable.
func unmarshalOrRaw(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return string(data)
	}
	return parsed
}
