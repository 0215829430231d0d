// cmd/tools/weights-promoter/main.go
//
// Operator tool for the weight vector lifecycle. The optimizer only ever
// stores proposals; making one live is a deliberate human action done here.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"matching-workers/internal/common/config"
	"matching-workers/internal/common/database"
)

const weightsCacheKey = "weights:active"

func main() {
	promoteCmd := flag.NewFlagSet("promote", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	retireCmd := flag.NewFlagSet("retire", flag.ExitOnError)

	versionPromote := promoteCmd.Int("version", 0, "Proposed weight vector version to promote")
	versionRetire := retireCmd.Int("version", 0, "Weight vector version to retire")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "promote":
		promoteCmd.Parse(os.Args[2:])
		if *versionPromote <= 0 {
			fmt.Println("Error: -version is required for promote.")
			promoteCmd.Usage()
			os.Exit(1)
		}
		if err := promote(ctx, cfg, pg.DB, *versionPromote); err != nil {
			fmt.Printf("Error promoting version %d: %v\n", *versionPromote, err)
			os.Exit(1)
		}
		fmt.Printf("Promoted weight vector version %d to active\n", *versionPromote)

	case "retire":
		retireCmd.Parse(os.Args[2:])
		if *versionRetire <= 0 {
			fmt.Println("Error: -version is required for retire.")
			retireCmd.Usage()
			os.Exit(1)
		}
		if err := retire(ctx, cfg, pg.DB, *versionRetire); err != nil {
			fmt.Printf("Error retiring version %d: %v\n", *versionRetire, err)
			os.Exit(1)
		}
		fmt.Printf("Retired weight vector version %d\n", *versionRetire)

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := list(ctx, pg.DB); err != nil {
			fmt.Printf("Error listing weight vectors: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

// promote activates the named proposed version. The previously active
// vector is retired in the same transaction so at most one is ever live.
func promote(ctx context.Context, cfg *config.Config, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE weight_vectors
		SET status = 'active', promoted_at = NOW()
		WHERE version = $1 AND status = 'proposed'`, version)
	if err != nil {
		return fmt.Errorf("activate version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("no proposed weight vector with version %d", version)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE weight_vectors
		SET status = 'retired'
		WHERE status = 'active' AND version != $1`, version)
	if err != nil {
		return fmt.Errorf("retire previous active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	bustWeightsCache(ctx, cfg)
	return nil
}

// retire takes any vector out of rotation, including the active one. A
// selector pass with no active vector falls back to the built-in defaults.
func retire(ctx context.Context, cfg *config.Config, db *sql.DB, version int) error {
	result, err := db.ExecContext(ctx, `
		UPDATE weight_vectors
		SET status = 'retired'
		WHERE version = $1 AND status IN ('proposed', 'active')`, version)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("no proposed or active weight vector with version %d", version)
	}

	bustWeightsCache(ctx, cfg)
	return nil
}

func list(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
		SELECT version, status, improvement, sample_size, created_at
		FROM weight_vectors
		ORDER BY version DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	fmt.Printf("%-9s %-10s %-12s %-12s %s\n", "VERSION", "STATUS", "IMPROVEMENT", "SAMPLES", "CREATED")
	for rows.Next() {
		var (
			version     int
			status      string
			improvement sql.NullFloat64
			sampleSize  sql.NullInt64
			createdAt   time.Time
		)
		if err := rows.Scan(&version, &status, &improvement, &sampleSize, &createdAt); err != nil {
			return err
		}
		fmt.Printf("%-9d %-10s %-12.4f %-12d %s\n",
			version, status, improvement.Float64, sampleSize.Int64,
			createdAt.UTC().Format(time.RFC3339))
	}
	return rows.Err()
}

// bustWeightsCache drops the cached active vector so selectors pick up the
// change within one request instead of one TTL. Best-effort: the cache
// expires on its own if Redis is unreachable.
func bustWeightsCache(ctx context.Context, cfg *config.Config) {
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		fmt.Printf("Warning: redis unavailable, cached weights expire on TTL: %v\n", err)
		return
	}
	defer rdb.Close()

	if err := rdb.Client.Del(ctx, weightsCacheKey).Err(); err != nil {
		fmt.Printf("Warning: failed to drop %s, cached weights expire on TTL: %v\n", weightsCacheKey, err)
	}
}

func help() {
	fmt.Println(`
Usage: weights-promoter <command> [flags]

Commands:
  promote  Activate a proposed weight vector (retires the current active one)
  retire   Take a proposed or active weight vector out of rotation
  list     Show all stored weight vectors
  help     Show this help message

Examples:
  weights-promoter list
  weights-promoter promote -version 4
  weights-promoter retire -version 3

Use 'weights-promoter <command> -h' for more information about a command.`)
}
