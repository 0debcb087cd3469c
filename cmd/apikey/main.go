// Command apikey manages the upstream credential records the worker's pool
// loads at startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"plangen/internal/infra"
	"plangen/internal/infra/credentials"
)

func main() {
	var (
		addFlag     string
		idFlag      string
		unblockFlag string
		listFlag    bool
	)
	flag.StringVar(&addFlag, "add", "", "API key to add (falls back to GEMINI_API_KEY)")
	flag.StringVar(&idFlag, "id", "", "credential id for -add (defaults to a new uuid)")
	flag.StringVar(&unblockFlag, "unblock", "", "credential id to unblock")
	flag.BoolVar(&listFlag, "list", false, "list credentials and their block state")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "apikey")
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	switch {
	case listFlag:
		records, err := store.List(ctx, credentials.ProviderGemini)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list credentials: %v\n", err)
			os.Exit(1)
		}
		for _, r := range records {
			state := "available"
			switch {
			case r.Fatal:
				state = "fatal: " + r.FatalReason
			case r.BlockedUntil != nil && r.BlockedUntil.After(time.Now()):
				state = "blocked until " + r.BlockedUntil.Format(time.RFC3339)
			}
			fmt.Printf("%s\t%s\n", r.ID, state)
		}

	case unblockFlag != "":
		if err := store.Unblock(ctx, unblockFlag); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unblock credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("credential %s unblocked\n", unblockFlag)

	default:
		key := strings.TrimSpace(addFlag)
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		}
		if key == "" {
			fmt.Fprintln(os.Stderr, "an API key is required via -add or GEMINI_API_KEY")
			os.Exit(1)
		}
		id := strings.TrimSpace(idFlag)
		if id == "" {
			id = uuid.NewString()
		}
		if err := store.Add(ctx, id, credentials.ProviderGemini, key); err != nil {
			fmt.Fprintf(os.Stderr, "failed to store credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("credential %s stored\n", id)
	}
}
