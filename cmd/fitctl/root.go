package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"example.com/fittrack/internal/aggregate"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/livesync"
	"example.com/fittrack/internal/localstore"
	persistence "example.com/fittrack/internal/persistence/postgres"
)

var (
	storePath string
	userID    string
	tzName    string
	jsonOut   bool
)

// openBackend connects to the system of record. Tests replace it.
var openBackend = func(ctx context.Context) (livesync.Backend, func(), error) {
	cfg := config.Load()
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return persistence.NewRepository(pool), pool.Close, nil
}

var cliLogger = log.New(io.Discard, "[fitctl] ", log.LstdFlags)

var rootCmd = &cobra.Command{
	Use:   "fitctl",
	Short: "fitctl inspects fittrack data and device-local state",
	Long:  "fitctl prints dashboard reports for a user, manages the device-local weight challenge and inspects or drains the offline write queue.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			userID = os.Getenv("FITTRACK_USER")
		}
		if userID == "" {
			return fmt.Errorf("--user is required (or set FITTRACK_USER)")
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Path to the device-local SQLite store")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User id to act as")
	rootCmd.PersistentFlags().StringVar(&tzName, "tz", "", "IANA timezone for day boundaries")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print JSON instead of text")
}

func openStore() (*localstore.Store, error) {
	path := storePath
	if path == "" {
		path = config.Load().LocalStorePath
	}
	return localstore.New(path)
}

func newEngine() (*aggregate.Engine, error) {
	loc := config.Load().Location()
	if tzName != "" {
		parsed, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid --tz: %w", err)
		}
		loc = parsed
	}
	return aggregate.New(aggregate.WithLocation(loc), aggregate.WithLogger(cliLogger)), nil
}

// loadMirror fetches the user's rows into a fresh mirror. Tables that fail to load are
// reported on stderr and left empty.
func loadMirror(cmd *cobra.Command) (*livesync.Mirror, error) {
	backend, closeFn, err := openBackend(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer closeFn()

	snapshot, err := livesync.LoadSnapshot(cmd.Context(), backend, userID, cliLogger)
	if err != nil {
		if len(snapshot.Tables) == 0 && snapshot.Profile == nil {
			return nil, err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	mirror := livesync.NewMirror()
	if err := mirror.Install(snapshot); err != nil {
		return nil, err
	}
	return mirror, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
