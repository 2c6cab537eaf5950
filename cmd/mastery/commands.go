package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/copilot-mastery/mastery/internal/domain/curriculum"
	"github.com/copilot-mastery/mastery/internal/domain/progress"
	"github.com/copilot-mastery/mastery/internal/infrastructure/kvstore/pgstore"
)

// errNotLoggedIn is returned by commands that act on the current learner.
var errNotLoggedIn = errors.New("no learner is logged in; run `mastery login <name>` first")

type envFunc func() *environment

// currentUser resolves the learner of the stored session.
func currentUser(ctx context.Context, env *environment) (progress.Username, error) {
	user, ok := env.tracker.CurrentUser(ctx)
	if !ok {
		return "", errNotLoggedIn
	}
	return user, nil
}

func newLoginCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "login <name>",
		Short: "Start a session for a learner (at least 2 characters)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, record, err := env().tracker.Login(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Welcome, %s. Active topic: %s (%d/%d unlocked)\n",
				user, record.Active, record.Unlocked.Len(), curriculum.Count)
			return nil
		},
	}
}

func newLogoutCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session; stored progress is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env().tracker.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the logged-in learner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := currentUser(cmd.Context(), env())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func newStatusCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List every topic with its locked/unlocked/active state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := env()
			user, err := currentUser(cmd.Context(), e)
			if err != nil {
				return err
			}
			record := e.tracker.LoadProgress(cmd.Context(), user)
			printStatus(cmd.OutOrStdout(), e, user, record)
			return nil
		},
	}
}

func printStatus(out io.Writer, e *environment, user progress.Username, record progress.Record) {
	fmt.Fprintf(out, "Learner: %s\n", user)
	for _, row := range e.tracker.Overview(record) {
		marker := " "
		if row.State == progress.StateActive {
			marker = ">"
		}
		fmt.Fprintf(out, "%s %2s  %s\n", marker, row.Topic, row.State)
	}
	fmt.Fprintf(out, "Unlocked %d of %d topics\n", record.Unlocked.Len(), curriculum.Count)
}

func newSelectCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "select <topic>",
		Short: "Make an unlocked topic the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := curriculum.Parse(args[0])
			if err != nil {
				return err
			}
			e := env()
			user, err := currentUser(cmd.Context(), e)
			if err != nil {
				return err
			}

			record, ok := e.tracker.Select(cmd.Context(), user, topic)
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "Topic %s is locked. Active topic is still %s.\n", topic, record.Active)
				return nil
			}
			fmt.Fprintf(out, "Active topic: %s\n", record.Active)
			return nil
		},
	}
}

func newCompleteCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <topic>",
		Short: "Mark a topic complete, unlocking the next one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := curriculum.Parse(args[0])
			if err != nil {
				return err
			}
			e := env()
			user, err := currentUser(cmd.Context(), e)
			if err != nil {
				return err
			}

			res := e.tracker.Complete(cmd.Context(), user, topic)
			out := cmd.OutOrStdout()
			switch {
			case res.Finished:
				fmt.Fprintf(out, "Topic %s unlocked. Every topic is now unlocked.\n", res.Unlocked)
			case res.Unlocked != 0:
				fmt.Fprintf(out, "Topic %s unlocked.\n", res.Unlocked)
			default:
				fmt.Fprintf(out, "Topic %s complete. Nothing new to unlock.\n", topic)
			}
			return nil
		},
	}
}

func newMigrateCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations (postgres) and show their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := env()
			out := cmd.OutOrStdout()
			if e.pg == nil {
				fmt.Fprintf(out, "The %s store has no migrations.\n", e.cfg.Store.Backend)
				return nil
			}

			migrator := pgstore.NewMigrator(e.pg)
			applied, err := migrator.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			status, err := migrator.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Applied %d migration(s).\n", applied)
			for _, m := range status {
				state := "pending"
				if m.IsApplied {
					state = "applied " + m.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "  %03d %-24s %s\n", m.Version, m.Name, state)
			}
			return nil
		},
	}
}
