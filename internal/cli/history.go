package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aristath/bob/internal/persistence"
)

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded builds",
		Long: `History lists the builds recorded in the build directory, newest first.

Examples:
  # Show the last 10 builds
  bob history --limit 10

  # Show the results of one build (an id prefix is enough)
  bob history show 3f2a
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd.Context(), func(store persistence.Store) error {
				builds, err := store.ListBuilds(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(builds) == 0 {
					fmt.Fprintln(a.stdout, "No builds recorded.")
					return nil
				}
				fmt.Fprintln(a.stdout, buildsTable(builds))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of builds to show (0 for all)")

	cmd.AddCommand(newHistoryShowCommand(a), newHistoryPruneCommand(a))
	return cmd
}

func newHistoryShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show the task results of a recorded build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd.Context(), func(store persistence.Store) error {
				id, err := resolveBuildID(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				build, err := store.GetBuild(cmd.Context(), id)
				if err != nil {
					return err
				}
				printBuild(a, build)
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd.Context(), func(store persistence.Store) error {
				removed, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Removed %d builds.\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 20, "Number of builds to keep")
	return cmd
}

// withHistory opens the history database of the project, if one exists.
func (a *app) withHistory(ctx context.Context, fn func(persistence.Store) error) error {
	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	dbPath := ws.historyPath()
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(a.stdout, "No builds recorded.")
		return nil
	}

	store, err := persistence.NewSQLiteStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// resolveBuildID expands a unique id prefix to the full build id.
func resolveBuildID(ctx context.Context, store persistence.Store, prefix string) (string, error) {
	builds, err := store.ListBuilds(ctx, 0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, b := range builds {
		if b.ID == prefix {
			return b.ID, nil
		}
		if strings.HasPrefix(b.ID, prefix) {
			matches = append(matches, b.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", persistence.ErrBuildNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("build id prefix %s is ambiguous (%d matches)", prefix, len(matches))
	}
}

func buildsTable(builds []persistence.BuildRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "COMMAND", "STARTED", "DURATION", "EXECUTED", "FAILED", "STATUS")
	for _, b := range builds {
		t.Row(
			shortID(b.ID),
			b.Command,
			b.StartedAt.Local().Format(time.DateTime),
			b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond).String(),
			strconv.Itoa(b.Executed),
			strconv.Itoa(b.Failed),
			b.Status,
		)
	}
	return t.String()
}

func printBuild(a *app, b *persistence.BuildRecord) {
	fmt.Fprintf(a.stdout, "Build %s (%s)\n", b.ID, b.Command)
	fmt.Fprintf(a.stdout, "Started:  %s\n", b.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.stdout, "Duration: %v\n", b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(a.stdout, "Status:   %s, %d executed, %d failed\n", b.Status, b.Executed, b.Failed)
	if b.Error != "" {
		fmt.Fprintf(a.stdout, "Error:    %s\n", b.Error)
	}
	if len(b.Results) == 0 {
		return
	}

	fmt.Fprintln(a.stdout)
	for _, r := range b.Results {
		if r.Status == persistence.StatusSuccess {
			fmt.Fprintf(a.stdout, "OK   %s\n", r.Task)
			continue
		}
		loc := r.Resource
		if loc != "" && r.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, r.Line)
		}
		if loc != "" {
			loc += ": "
		}
		fmt.Fprintf(a.stdout, "FAIL %s: %s%s\n", r.Task, loc, r.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
