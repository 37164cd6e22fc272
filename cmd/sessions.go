// -- cmd/sessions.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/internal/observability"
	"github.com/Safphere/OMG-Agent/internal/session"
)

// withSessionManager builds the configured session manager, runs fn, and
// tears the store down afterwards.
func withSessionManager(ctx context.Context, fn func(*session.Manager) error) error {
	logger := observability.GetLogger()
	store, err := session.NewStoreFromConfig(ctx, cfg.Session, logger)
	if err != nil {
		return err
	}
	manager := session.NewManager(store, logger)
	defer func() {
		if cerr := manager.Close(); cerr != nil {
			logger.Warn("Failed to close session store", zap.Error(cerr))
		}
	}()
	return fn(manager)
}

// newSessionsCmd creates the `sessions` command group.
func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage persisted task sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCmd())
	sessionsCmd.AddCommand(newSessionsShowCmd())
	sessionsCmd.AddCommand(newSessionsDeleteCmd())
	sessionsCmd.AddCommand(newSessionsCleanupCmd())
	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	var (
		status   string
		deviceID string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionManager(cmd.Context(), func(m *session.Manager) error {
				states, err := m.List(cmd.Context(), session.ListFilter{
					Status:   session.Status(status),
					DeviceID: deviceID,
				})
				if err != nil {
					return err
				}
				if len(states) == 0 {
					fmt.Println("No sessions found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tSTEPS\tUPDATED\tTASK")
				for _, s := range states {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						s.ID, s.Status, s.StepCount,
						s.UpdatedAt.Local().Format("2006-01-02 15:04"),
						truncateTask(s.Task))
				}
				return w.Flush()
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status: running, paused, completed, aborted")
	listCmd.Flags().StringVar(&deviceID, "device", "", "filter by device serial")
	return listCmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Shows one session in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionManager(cmd.Context(), func(m *session.Manager) error {
				s, err := m.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("ID:        %s\n", s.ID)
				fmt.Printf("Status:    %s\n", s.Status)
				fmt.Printf("Task:      %s\n", s.Task)
				fmt.Printf("Device:    %s\n", s.DeviceID)
				fmt.Printf("Steps:     %d\n", s.StepCount)
				fmt.Printf("Created:   %s\n", s.CreatedAt.Local().Format(time.RFC3339))
				fmt.Printf("Updated:   %s\n", s.UpdatedAt.Local().Format(time.RFC3339))
				if s.Summary != "" {
					fmt.Printf("Summary:   %s\n", s.Summary)
				}
				if s.PendingQuestion != "" {
					fmt.Printf("Question:  %s\n", s.PendingQuestion)
					fmt.Printf("Resume:    omg-agent run --resume %s --reply \"...\"\n", s.ID)
				}
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Deletes a session record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionManager(cmd.Context(), func(m *session.Manager) error {
				if err := m.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Session %s deleted.\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsCleanupCmd() *cobra.Command {
	var age time.Duration
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Removes finished sessions older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if age <= 0 {
				age = cfg.Session.CleanupAge
			}
			return withSessionManager(cmd.Context(), func(m *session.Manager) error {
				removed, err := m.CleanupOlderThan(cmd.Context(), age)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d finished sessions older than %s.\n", removed, age)
				return nil
			})
		},
	}
	cleanupCmd.Flags().DurationVar(&age, "age", 0, "minimum age of finished sessions to remove (default from config)")
	return cleanupCmd
}

func truncateTask(task string) string {
	const max = 60
	if len(task) <= max {
		return task
	}
	return task[:max-3] + "..."
}
