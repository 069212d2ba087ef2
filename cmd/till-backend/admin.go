package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/marcus/till/internal/api"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "count":
		runAdminCount(args[1:])
	case "rate-limits":
		runAdminRateLimits(args[1:])
	case "prune":
		runAdminPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: till-backend admin <command> [flags]

Commands:
  count        Count live documents per collection
  rate-limits  List recent rate limit events
  prune        Delete rate limit events older than the retention period`)
}

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		dbPath = api.LoadConfig().DBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminCount(args []string) {
	fs := flag.NewFlagSet("admin count", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to backend.db (default: from TILL_BACKEND_DB_PATH or ./data/backend.db)")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	for _, c := range models.SyncedCollections {
		n, err := store.CountDocuments(c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-14s %d\n", c, n)
	}
}

func runAdminRateLimits(args []string) {
	fs := flag.NewFlagSet("admin rate-limits", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to backend.db")
	limit := fs.Int("limit", 20, "number of events to show")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	events, err := store.RecentRateLimitEvents(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Println("no rate limit events")
		return
	}
	for _, e := range events {
		device := e.DeviceID
		if device == "" {
			device = "-"
		}
		fmt.Printf("%s  %-20s %s\n", e.CreatedAt, device, e.IP)
	}
}

func runAdminPrune(args []string) {
	fs := flag.NewFlagSet("admin prune", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to backend.db")
	olderThan := fs.Duration("older-than", 0, "retention period (default: TILL_BACKEND_RATE_LIMIT_EVENT_RETENTION)")
	fs.Parse(args)

	retention := *olderThan
	if retention <= 0 {
		retention = api.LoadConfig().RateLimitEventRetention
	}

	store := openDB(*dbPath)
	defer store.Close()

	n, err := store.CleanupRateLimitEvents(retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pruned %d events older than %s\n", n, retention.Round(time.Hour))
}
