package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/normalize"
	"github.com/sells-group/claimrecon/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect reconciliation run history",
	Long:  "Commands for listing and viewing saved reconciliation runs and their issues.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profile, _ := cmd.Flags().GetString("profile")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			ProfileID: profile,
			Status:    model.RunStatus(status),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs issues --

var runsIssuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List stored issues across runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profile, _ := cmd.Flags().GetString("profile")
		issueType, _ := cmd.Flags().GetString("type")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListIssues(ctx, store.IssueFilter{
			ProfileID: profile,
			IssueType: model.IssueType(issueType),
			RunID:     runID,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs issues")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No issues found.")
			return nil
		}

		formatIssuesList(os.Stdout, recs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("profile", "", "filter by profile id")
	runsListCmd.Flags().String("status", "", "filter by run status (complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "skip this many runs")

	runsIssuesCmd.Flags().String("profile", "", "filter by profile id")
	runsIssuesCmd.Flags().String("type", "", "filter by issue type (duplicate_charge, coverage_mismatch, ...)")
	runsIssuesCmd.Flags().String("run", "", "filter by run id")
	runsIssuesCmd.Flags().Int("limit", 50, "max number of issues to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsIssuesCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROFILE\tSTATUS\tISSUES\tSAVINGS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------\t-------\t-------")

	for _, r := range runs {
		issues, savings := "-", "-"
		if r.Result != nil {
			issues = fmt.Sprintf("%d", len(r.Result.Issues))
			savings = normalize.FormatCents(totalSavings(r.Result.Issues))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.ProfileID,
			r.Status,
			issues,
			savings,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatIssuesList writes stored issues, one per line.
func formatIssuesList(out io.Writer, recs []store.IssueRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tPROFILE\tTYPE\tCONFIDENCE\tSAVINGS\tSUMMARY")

	for _, rec := range recs {
		summary := rec.Issue.Summary
		if len(summary) > 60 {
			summary = summary[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(rec.RunID),
			rec.ProfileID,
			rec.Issue.IssueType,
			rec.Issue.Confidence,
			normalize.FormatCents(rec.Issue.MaxSavingsCents),
			summary,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
