package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/aggregate"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/localstore"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Manage the device-local weight challenge",
}

type challengeView struct {
	Challenge domain.Challenge           `json:"challenge"`
	Status    *aggregate.ChallengeStatus `json:"status,omitempty"`
}

var challengeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the challenge and its progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		challenge, err := localstore.Get(cmd.Context(), store, localstore.ChallengeKey(userID))
		if errors.Is(err, localstore.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No challenge set.")
			return nil
		}
		if err != nil {
			return err
		}
		engine, err := newEngine()
		if err != nil {
			return err
		}

		view := challengeView{Challenge: challenge}
		mirror, err := loadMirror(cmd)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: progress unavailable: %v\n", err)
		} else if current, ok := engine.CurrentWeight(mirror.Weights.Snapshot(), mirror.Profile()); ok {
			status := engine.ChallengeProgress(challenge, current, time.Now())
			view.Status = &status
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), view)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Goal: %.1f kg in %d months (start %.1f kg on %s)\n",
			challenge.GoalWeight, challenge.DurationMonths, challenge.StartWeight, challenge.StartDate.Format(time.DateOnly))
		if view.Status != nil {
			fmt.Fprintf(out, "Current: %.1f kg  Progress: %.0f%%  Days left: %d\n",
				view.Status.CurrentWeight, view.Status.ProgressPercent, view.Status.DaysRemaining)
		}
		return nil
	},
}

var (
	challengeGoal        float64
	challengeMonths      int
	challengeStartWeight float64
	challengeStart       string
)

var challengeSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Start or replace the challenge",
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now().UTC()
		if challengeStart != "" {
			parsed, err := time.Parse(time.DateOnly, challengeStart)
			if err != nil {
				return fmt.Errorf("invalid --start (expected YYYY-MM-DD)")
			}
			start = parsed
		}
		challenge := domain.Challenge{
			GoalWeight:     challengeGoal,
			DurationMonths: challengeMonths,
			StartWeight:    challengeStartWeight,
			StartDate:      start,
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := localstore.Put(cmd.Context(), store, localstore.ChallengeKey(userID), challenge); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Challenge set: %.1f kg -> %.1f kg by %s\n",
			challenge.StartWeight, challenge.GoalWeight, challenge.EndDate().Format(time.DateOnly))
		return nil
	},
}

var challengeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the challenge",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := localstore.Remove(cmd.Context(), store, localstore.ChallengeKey(userID)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Challenge cleared.")
		return nil
	},
}

func init() {
	challengeSetCmd.Flags().Float64Var(&challengeGoal, "goal", 0, "Goal weight in kg")
	challengeSetCmd.Flags().IntVar(&challengeMonths, "months", 0, "Duration in months")
	challengeSetCmd.Flags().Float64Var(&challengeStartWeight, "start-weight", 0, "Starting weight in kg")
	challengeSetCmd.Flags().StringVar(&challengeStart, "start", "", "Start date (YYYY-MM-DD, default today)")
	_ = challengeSetCmd.MarkFlagRequired("goal")
	_ = challengeSetCmd.MarkFlagRequired("months")
	_ = challengeSetCmd.MarkFlagRequired("start-weight")

	challengeCmd.AddCommand(challengeShowCmd, challengeSetCmd, challengeClearCmd)
	rootCmd.AddCommand(challengeCmd)
}
