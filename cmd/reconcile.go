package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/normalize"
	"github.com/sells-group/claimrecon/internal/reconcile"
	"github.com/sells-group/claimrecon/internal/store"
)

var (
	reconcileInput  string
	reconcileOutput string
	reconcileSave   bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile every profile in a batch file",
	Long:  "Loads a YAML or JSON batch file, reconciles each profile independently, and writes per-profile results as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		var st store.Store
		if reconcileSave {
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s
		}

		out := io.Writer(os.Stdout)
		if reconcileOutput != "" {
			f, err := os.Create(reconcileOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		return runReconcile(ctx, reconcile.NewEngine(engineOptions(cfg)), st, reconcileInput, out, os.Stderr)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileInput, "input", "", "batch file (YAML or JSON, required)")
	reconcileCmd.Flags().StringVar(&reconcileOutput, "output", "", "write results to this file instead of stdout")
	reconcileCmd.Flags().BoolVar(&reconcileSave, "save", false, "record each profile as a run in the configured store")
	_ = reconcileCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(reconcileCmd)
}

// profileOutput is the JSON shape written per profile.
type profileOutput struct {
	ProfileID string        `json:"profile_id"`
	RunID     string        `json:"run_id,omitempty"`
	Result    *model.Result `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// runReconcile loads input, reconciles it, optionally saves runs to st,
// writes JSON to out and a summary table to summary. It fails when any
// profile failed, after writing every outcome.
func runReconcile(ctx context.Context, eng *reconcile.Engine, st store.Store, input string, out, summary io.Writer) error {
	batches, err := reconcile.LoadBatchFile(input)
	if err != nil {
		return err
	}

	zap.L().Info("reconciling batch file",
		zap.String("input", input),
		zap.Int("profiles", len(batches)),
	)

	outcomes := eng.ReconcileAll(ctx, batches)

	results := make([]profileOutput, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		po := profileOutput{ProfileID: o.ProfileID, Result: o.Result}
		run := &model.Run{ProfileID: o.ProfileID, Result: o.Result}
		if o.Err != nil {
			failed++
			po.Error = o.Err.Error()
			run.Error = po.Error
		}
		if st != nil {
			if err := st.SaveRun(ctx, run); err != nil {
				return eris.Wrapf(err, "save run for profile %s", o.ProfileID)
			}
			po.RunID = run.ID
		}
		results = append(results, po)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "encode results")
	}

	formatSummary(summary, results)

	if failed > 0 {
		return eris.Errorf("%d of %d profiles failed", failed, len(outcomes))
	}
	return nil
}

// formatSummary writes one line per profile with issue counts and savings.
func formatSummary(out io.Writer, results []profileOutput) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROFILE\tTRANSACTIONS\tCELLS\tISSUES\tREJECTED\tSAVINGS\tSTATUS")

	for _, r := range results {
		if r.Result == nil {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\tfailed: %s\n", r.ProfileID, r.Error)
			continue
		}
		s := r.Result.Stats
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\tok\n",
			r.ProfileID, s.Transactions, s.Cells, s.Issues, s.RejectedFacts,
			normalize.FormatCents(totalSavings(r.Result.Issues)),
		)
	}
	_ = w.Flush()
}

func totalSavings(issues []model.Issue) int64 {
	var total int64
	for _, is := range issues {
		total += is.MaxSavingsCents
	}
	return total
}
