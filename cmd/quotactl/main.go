package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"media-ingest/internal/database"
)

const (
	// Default database directory path
	defaultDatabaseDir = "/database"
	// Default per-owner completed-job limit when none is stored
	defaultJobLimit = 100
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "media-ingest.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	switch command {
	case "get":
		if !getQuota(ctx, db) {
			os.Exit(1)
		}
	case "set":
		if !setQuota(ctx, db) {
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage()
		os.Exit(1)
	}
}

func getQuota(ctx context.Context, db *database.Database) bool {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: quotactl get <owner-id>")
		return false
	}
	ownerID := os.Args[2]

	limit, err := db.QuotaLimit(ctx, ownerID, defaultJobLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read quota limit: %v\n", err)
		return false
	}
	used, err := db.QuotaUsed(ctx, ownerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read quota usage: %v\n", err)
		return false
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	fmt.Printf("Owner:     %s\n", ownerID)
	fmt.Printf("Limit:     %d\n", limit)
	fmt.Printf("Used:      %d\n", used)
	fmt.Printf("Remaining: %d\n", remaining)
	return true
}

func setQuota(ctx context.Context, db *database.Database) bool {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Usage: quotactl set <owner-id> <limit>")
		return false
	}
	ownerID := os.Args[2]

	limit, err := strconv.Atoi(os.Args[3])
	if err != nil || limit < 0 {
		fmt.Fprintf(os.Stderr, "Error: limit must be a non-negative integer\n")
		return false
	}

	if err := db.SetQuotaLimit(ctx, ownerID, limit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set quota limit: %v\n", err)
		return false
	}

	fmt.Printf("Quota limit for %s set to %d\n", ownerID, limit)
	return true
}

// sanitizeCommand restricts echoed input to safe characters.
func sanitizeCommand(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: quotactl <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  get <owner-id>          Show an owner's quota limit and usage")
	fmt.Fprintln(os.Stderr, "  set <owner-id> <limit>  Set an owner's quota limit")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  DATABASE_DIR  Directory containing media-ingest.db (default /database)")
}
