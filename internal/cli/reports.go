package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) sectionsCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List the report sections and their wire fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFIELD\tTITLE")
			if remote {
				infos, err := a.client.ListSections(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Field, s.Title)
				}
				return tw.Flush()
			}
			for _, def := range a.reg.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", def.ID, def.Field, def.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list the server's registry instead of the local one")
	return cmd
}

func (a *app) createCmd() *cobra.Command {
	var company, fy string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if company == "" {
				return fmt.Errorf("--company is required")
			}
			id, err := a.client.CreateReport(cmd.Context(), company, fy)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&fy, "fy", "", "financial year, for example 2024-25")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reports, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := a.client.ListReports(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMPANY\tYEAR\tSUBMITTED\tUPDATED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", r.ID, r.Company, r.FinancialYear, r.Submitted, r.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func (a *app) submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <report>",
		Short: "Submit a report, making it read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Submit(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <report>",
		Short: "Download the report as a .docx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if out == "" {
				out = "brsr-" + args[0] + ".docx"
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer func() {
				if closeErr := f.Close(); closeErr != nil && err == nil {
					err = fmt.Errorf("close %s: %w", out, closeErr)
				}
			}()
			if err := a.client.Export(cmd.Context(), args[0], f); err != nil {
				os.Remove(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: brsr-<report>.docx)")
	return cmd
}
