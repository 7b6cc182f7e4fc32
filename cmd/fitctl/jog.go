package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/offline"
	"example.com/fittrack/internal/workout"
)

var (
	jogDistance float64
	jogClock    = time.Now
)

var jogCmd = &cobra.Command{
	Use:   "jog",
	Short: "Time a run and log it",
	Long:  "jog starts a timer. Type p to pause, r to resume and s (or Ctrl-D) to stop. The run is logged with --distance; when the backend is unreachable it is queued offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jogDistance < 0 {
			return fmt.Errorf("--distance must be >= 0")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		timer := workout.NewJogTimer(workout.WithClock(jogClock))
		if err := timer.Start(ctx); err != nil {
			return err
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				lines <- strings.TrimSpace(scanner.Text())
			}
		}()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Running. p = pause, r = resume, s = stop")
		ticks := timer.Ticks()
	loop:
		for {
			select {
			case tick, ok := <-ticks:
				if !ok {
					ticks = nil
					continue
				}
				fmt.Fprintf(out, "\r%s", tick.Elapsed.Round(time.Second))
			case <-timer.Done():
				break loop
			case line, ok := <-lines:
				if !ok {
					break loop
				}
				var err error
				switch line {
				case "p":
					err = timer.Pause()
				case "r":
					err = timer.Resume()
				case "s":
					break loop
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "\n%v\n", err)
				}
			}
		}

		total, err := timer.Stop()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nStopped at %s\n", total.Round(time.Second))

		entry, err := timer.Entry(jogDistance)
		if err != nil {
			return err
		}
		if entry.Duration <= 0 {
			return fmt.Errorf("run too short to log")
		}
		entry.ID = uuid.NewString()
		entry.UserID = userID
		return saveJog(cmd, entry)
	},
}

// saveJog writes the run to the backend, queueing it offline when the backend cannot be
// reached. Validation failures are returned.
func saveJog(cmd *cobra.Command, entry domain.JoggingLogEntry) error {
	row, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	m := domain.Mutation{Table: domain.TableJoggingLogs, Op: domain.OpInsert, UserID: entry.UserID, RowID: entry.ID, Row: row}

	backend, closeFn, err := openBackend(cmd.Context())
	if err == nil {
		defer closeFn()
		if _, err = backend.Apply(cmd.Context(), m); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Logged run %s (%.2f km).\n", entry.ID, entry.Distance)
			return nil
		}
	}
	if errors.Is(err, domain.ErrValidation) {
		return err
	}

	store, serr := openStore()
	if serr != nil {
		return errors.Join(err, serr)
	}
	defer store.Close()
	action, qerr := offline.NewQueue(store, offline.WithLogger(cliLogger)).Enqueue(cmd.Context(), m)
	if qerr != nil {
		return errors.Join(err, qerr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backend unavailable (%v); queued as %s.\n", err, action.ID)
	return nil
}

func init() {
	jogCmd.Flags().Float64Var(&jogDistance, "distance", 0, "Distance covered in km")
	rootCmd.AddCommand(jogCmd)
}
