package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/okra/internal/ledger"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	At int64
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <db> <action-id>...",
		Short: "Record that actions happened",
		Long: `Record an activity for each action ID.

Several actions are logged as one batch sharing a single timestamp; if any
action does not exist nothing is logged. --at sets the timestamp (epoch
milliseconds) for a single action.

Example:
  okra log data/bob.sqlite 1
  okra log data/bob.sqlite 1 2 3
  okra log data/bob.sqlite 1 --at 1700000000000`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.At, "at", 0, "timestamp in epoch milliseconds (single action only)")

	return cmd
}

func runLog(opts *LogOptions, path string, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	actions := make([]ledger.ActionID, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return formatter.Invalid("invalid action ID", err)
		}
		actions = append(actions, ledger.ActionID(id))
	}
	explicitAt := cmd.Flags().Changed("at")
	if explicitAt && len(actions) > 1 {
		return formatter.Invalid("--at takes a single action", nil)
	}

	l, err := openLedger(formatter, cmd, path, false)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := commandContext(cmd)
	if len(actions) > 1 {
		batch, err := l.LogActivities(ctx, actions)
		if err != nil {
			return formatter.Fail("failed to log activities", err)
		}
		return formatter.Render(batch, func(w io.Writer) {
			for _, id := range batch.Activities {
				fmt.Fprintln(w, id)
			}
		})
	}

	var activity ledger.Activity
	if explicitAt {
		activity, err = l.LogActivityAt(ctx, actions[0], opts.At)
	} else {
		activity, err = l.LogActivity(ctx, actions[0])
	}
	if err != nil {
		return formatter.Fail("failed to log activity", err)
	}

	return formatter.Render(activity, func(w io.Writer) {
		fmt.Fprintln(w, activity.ID)
	})
}

// NewNotateCommand creates the notate command.
func NewNotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "notate <db> <activity-id> <text>",
		Short: "Attach a note to an activity",
		Long: `Attach a note to an activity and print the note ID.

Identical note text is stored once and shared between activities.

Example:
  okra notate data/bob.sqlite 4 "felt great"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotate(opts, args[0], args[1], args[2], cmd)
		},
	}

	return cmd
}

func runNotate(opts *RootOptions, path, activityArg, text string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	activity, err := parseID(activityArg)
	if err != nil {
		return formatter.Invalid("invalid activity ID", err)
	}

	l, err := openLedger(formatter, cmd, path, false)
	if err != nil {
		return err
	}
	defer l.Close()

	id, err := l.AnnotateActivity(commandContext(cmd), ledger.ActivityID(activity), text)
	if err != nil {
		return formatter.Fail("failed to notate activity", err)
	}

	return formatter.Render(ledger.Note{ID: id, Text: text}, func(w io.Writer) {
		fmt.Fprintln(w, id)
	})
}

// NewNotesCommand creates the notes command.
func NewNotesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "notes <db> <activity-id>",
		Short: "List the notes attached to an activity",
		Long: `List the notes attached to an activity in ascending note ID order.

Example:
  okra notes data/bob.sqlite 4
  okra notes data/bob.sqlite 4 --after 2 --limit 10`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotes(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only note IDs greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of rows")

	return cmd
}

func runNotes(opts *LedgerOptions, path, activityArg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	activity, err := parseID(activityArg)
	if err != nil {
		return formatter.Invalid("invalid activity ID", err)
	}
	if opts.Limit < 1 {
		return formatter.Invalid("--limit must be positive", nil)
	}

	l, err := openLedger(formatter, cmd, path, false)
	if err != nil {
		return err
	}
	defer l.Close()

	notes, err := l.NotesOf(commandContext(cmd), ledger.ActivityID(activity), ledger.NoteID(opts.After), opts.Limit)
	if err != nil {
		return formatter.Fail("failed to list notes", err)
	}

	return formatter.Render(notes, func(w io.Writer) {
		if len(notes) == 0 {
			fmt.Fprintln(w, "no notes")
			return
		}
		for _, n := range notes {
			fmt.Fprintf(w, "%d\t%s\n", n.ID, n.Text)
		}
	})
}

// ActivitiesOptions holds flags for the activities command.
type ActivitiesOptions struct {
	LedgerOptions
	From int64
	To   int64
}

// NewActivitiesCommand creates the activities command.
func NewActivitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActivitiesOptions{LedgerOptions: LedgerOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "activities <db>",
		Short: "List activities in a time window",
		Long: `List activities with --from <= time < --to, oldest first.

Times are epoch milliseconds. Page with --after set to the last activity ID
shown; the next page starts after that activity.

Example:
  okra activities data/bob.sqlite
  okra activities data/bob.sqlite --from 1700000000000 --to 1700086400000
  okra activities data/bob.sqlite --after 50 --limit 50`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivities(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 0, "window start, inclusive")
	cmd.Flags().Int64Var(&opts.To, "to", math.MaxInt64, "window end, exclusive")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "continue after this activity ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of rows")

	return cmd
}

func runActivities(opts *ActivitiesOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 1 {
		return formatter.Invalid("--limit must be positive", nil)
	}

	l, err := openLedger(formatter, cmd, path, false)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := commandContext(cmd)
	var activities []ledger.Activity
	if opts.After != 0 {
		cursor, err := l.Activity(ctx, ledger.ActivityID(opts.After))
		if err != nil {
			return formatter.Fail("failed to resolve --after", err)
		}
		activities, err = l.ActivitiesAfter(ctx, opts.From, opts.To, cursor, opts.Limit)
		if err != nil {
			return formatter.Fail("failed to list activities", err)
		}
	} else {
		activities, err = l.ActivitiesBetween(ctx, opts.From, opts.To, opts.Limit)
		if err != nil {
			return formatter.Fail("failed to list activities", err)
		}
	}

	return formatter.Render(activities, func(w io.Writer) {
		if len(activities) == 0 {
			fmt.Fprintln(w, "no activities")
			return
		}
		for _, a := range activities {
			at := time.UnixMilli(a.At).UTC().Format(time.RFC3339)
			fmt.Fprintf(w, "%d\t%s\taction %d\n", a.ID, at, a.Action)
		}
	})
}

// parseID parses a positive row ID argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 1 {
		return 0, fmt.Errorf("ID must be positive, got %d", id)
	}
	return id, nil
}
