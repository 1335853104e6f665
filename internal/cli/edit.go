package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/brsrform/internal/persistence"
	"github.com/dgallion1/brsrform/internal/section"
	"github.com/dgallion1/brsrform/internal/session"
)

// ErrBlocking is returned by validate when the section has blocking errors.
var ErrBlocking = errors.New("section has blocking errors")

// mount loads one section of a report through the API.
func (a *app) mount(ctx context.Context, reportID, sectionID string) (*persistence.Section, error) {
	def, ok := a.reg.Lookup(sectionID)
	if !ok {
		return nil, fmt.Errorf("unknown section %q (see brsrctl sections)", sectionID)
	}
	sec := persistence.NewSection(reportID, def, a.client, a.log.With("report_id", reportID, "section", sectionID))
	if err := sec.Load(ctx); err != nil {
		return nil, err
	}
	return sec, nil
}

// edit mounts the section, applies ops, and saves it.
func (a *app) edit(cmd *cobra.Command, reportID, sectionID string, ops ...session.Op) error {
	sec, err := a.mount(cmd.Context(), reportID, sectionID)
	if err != nil {
		return err
	}
	err = sec.Mutate(func(st *section.State) error {
		_, err := session.ApplyOps(st, ops)
		return err
	})
	if errors.Is(err, section.ErrLocked) {
		return fmt.Errorf("report %s is submitted and read-only", reportID)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = sec.Save(cmd.Context(), a.v.GetBool("yes"))
	var verr *persistence.ValidationError
	if errors.As(err, &verr) {
		printFindings(out, verr.Errors, verr.Warnings)
		if len(verr.Errors) == 0 {
			return fmt.Errorf("%d warning(s) need confirmation; re-run with --yes to save anyway", len(verr.Warnings))
		}
		return fmt.Errorf("%d blocking error(s); nothing was saved", len(verr.Errors))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s (%s)\n", sectionID, sec.Definition().Field)
	return nil
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <report> <section>",
		Short: "Print a section's document, filled in with defaults",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sec, err := a.mount(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(sec.Snapshot().Document, "", "  ")
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <report> <section> <path> <value>",
		Short: "Set one field and save the section",
		Long: `Set one field and save the section. The value is parsed as JSON when it
is valid JSON and taken as a plain string otherwise, so

  brsrctl set R p1 anti_corruption_policy true
  brsrctl set R p1 anti_corruption_details "Zero tolerance"

both work. Paths are dotted with optional indexes: training_coverage[0].programmes.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd, args[0], args[1], session.Op{Op: "set", Path: args[2], Value: parseValue(args[3])})
		},
	}
}

func (a *app) addRowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-row <report> <section> <array-path> [row-json]",
		Short: "Append a row to a table and save the section",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := session.Op{Op: "add_row", Path: args[2]}
			if len(args) == 4 {
				op.Value = parseValue(args[3])
			}
			return a.edit(cmd, args[0], args[1], op)
		},
	}
}

func (a *app) removeRowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-row <report> <section> <array-path> <index>",
		Short: "Remove a table row and save the section",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("index %q is not a number", args[3])
			}
			return a.edit(cmd, args[0], args[1], session.Op{Op: "remove_row", Path: args[2], Index: idx})
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <report> <section>",
		Short: "Check a stored section without saving",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sec, err := a.mount(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			res := sec.Definition().Gate().Validate(sec.Snapshot().Document)
			out := cmd.OutOrStdout()
			if !res.Blocking() && !res.HasWarnings() {
				fmt.Fprintln(out, "ok")
				return nil
			}
			printFindings(out, res.Errors, res.Warnings)
			if res.Blocking() {
				return ErrBlocking
			}
			return nil
		},
	}
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func printFindings(w io.Writer, errs, warnings map[string]string) {
	for _, p := range sortedKeys(errs) {
		fmt.Fprintf(w, "error    %s: %s\n", p, errs[p])
	}
	for _, p := range sortedKeys(warnings) {
		fmt.Fprintf(w, "warning  %s: %s\n", p, warnings[p])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
