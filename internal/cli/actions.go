package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/okra/internal/ledger"
)

// LedgerOptions holds flags shared by the ledger commands.
type LedgerOptions struct {
	*RootOptions
	After int64
	Limit int
}

// openLedger opens the ledger file at path. Commands that only read pass
// create=false so a mistyped path fails instead of creating a new file.
func openLedger(formatter *OutputFormatter, cmd *cobra.Command, path string, create bool) (*ledger.Ledger, error) {
	if create {
		if err := ensureParentDir(path); err != nil {
			return nil, formatter.Fail("failed to prepare ledger", err)
		}
	} else if err := requireFile(path); err != nil {
		return nil, formatter.Fail("ledger not found", err)
	}

	formatter.VerboseLog("opening ledger %s", path)
	l, err := ledger.Open(commandContext(cmd), path)
	if err != nil {
		return nil, formatter.Fail("failed to open ledger", err)
	}
	return l, nil
}

// CreateActionOptions holds flags for the create-action command.
type CreateActionOptions struct {
	*RootOptions
	Name   string
	Parent int64
}

// NewCreateActionCommand creates the create-action command.
func NewCreateActionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create-action <db>",
		Short: "Insert a new action into the ledger",
		Long: `Insert a new action into the ledger and print its ID.

Creating a name that already exists prints the existing ID. With --parent the
new action is also linked as a child of that action.

Example:
  okra create-action data/bob.sqlite -a run
  okra create-action data/bob.sqlite -a "trail run" --parent 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "action-name", "a", "", "action name (required)")
	cmd.Flags().Int64Var(&opts.Parent, "parent", 0, "link the action under this parent ID")
	_ = cmd.MarkFlagRequired("action-name")

	return cmd
}

func runCreateAction(opts *CreateActionOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	l, err := openLedger(formatter, cmd, path, true)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := commandContext(cmd)
	var action ledger.Action
	if opts.Parent != 0 {
		action, err = l.CreateChildAction(ctx, opts.Name, ledger.ActionID(opts.Parent))
		if err != nil {
			return formatter.Fail("failed to create action", err)
		}
		formatter.VerboseLog("linked %d under %d", action.ID, opts.Parent)
	} else {
		id, err := l.CreateAction(ctx, opts.Name)
		if err != nil {
			return formatter.Fail("failed to create action", err)
		}
		name, err := l.ActionName(ctx, id)
		if err != nil {
			return formatter.Fail("failed to read action", err)
		}
		action = ledger.Action{ID: id, Name: name}
	}

	return formatter.Render(action, func(w io.Writer) {
		fmt.Fprintln(w, action.ID)
	})
}

// LinkActionOptions holds flags for the link-action command.
type LinkActionOptions struct {
	*RootOptions
	Parent int64
	Child  int64
}

// NewLinkActionCommand creates the link-action command.
func NewLinkActionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link-action <db>",
		Short: "Order actions in a hierarchy",
		Long: `Record one action as the parent of another.

Both actions must exist. Cycles are not detected.

Example:
  okra link-action data/bob.sqlite -p 1 -c 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinkAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64VarP(&opts.Parent, "parent-action", "p", 0, "parent action ID (required)")
	cmd.Flags().Int64VarP(&opts.Child, "child-action", "c", 0, "child action ID (required)")
	_ = cmd.MarkFlagRequired("parent-action")
	_ = cmd.MarkFlagRequired("child-action")

	return cmd
}

func runLinkAction(opts *LinkActionOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	l, err := openLedger(formatter, cmd, path, false)
	if err != nil {
		return err
	}
	defer l.Close()

	parent, child := ledger.ActionID(opts.Parent), ledger.ActionID(opts.Child)
	if err := l.LinkActions(commandContext(cmd), parent, child); err != nil {
		return formatter.Fail("failed to link actions", err)
	}

	return formatter.Render(map[string]ledger.ActionID{"parent": parent, "child": child}, func(w io.Writer) {
		fmt.Fprintf(w, "%d -> %d\n", parent, child)
	})
}

// ActionsOptions holds flags for the actions command.
type ActionsOptions struct {
	LedgerOptions
	Search   string
	Children int64
}

// NewActionsCommand creates the actions command.
func NewActionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionsOptions{LedgerOptions: LedgerOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "actions <db>",
		Short: "List actions",
		Long: `List actions in ascending ID order.

--search keeps names containing the given text. --children lists the child
IDs of one action instead. Page with --after set to the last ID shown.

Example:
  okra actions data/bob.sqlite
  okra actions data/bob.sqlite --search run --limit 10
  okra actions data/bob.sqlite --children 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActions(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Search, "search", "", "substring to match")
	cmd.Flags().Int64Var(&opts.Children, "children", 0, "list children of this action ID")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only IDs greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of rows")

	return cmd
}

func runActions(opts *ActionsOptions, path string, cmd *cobra.Command) error {
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
	if opts.Children != 0 {
		children, err := l.ChildActions(ctx, ledger.ActionID(opts.Children), ledger.ActionID(opts.After), opts.Limit)
		if err != nil {
			return formatter.Fail("failed to list children", err)
		}
		return formatter.Render(children, func(w io.Writer) {
			for _, id := range children {
				fmt.Fprintln(w, id)
			}
		})
	}

	actions, err := l.SearchActions(ctx, opts.Search, ledger.ActionID(opts.After), opts.Limit)
	if err != nil {
		return formatter.Fail("failed to list actions", err)
	}

	return formatter.Render(actions, func(w io.Writer) {
		if len(actions) == 0 {
			fmt.Fprintln(w, "no actions")
			return
		}
		for _, a := range actions {
			fmt.Fprintf(w, "%d\t%s\n", a.ID, a.Name)
		}
	})
}
