package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"github.com/spf13/cobra"
)

// photoRow is one line of the analyze output.
type photoRow struct {
	*photo.Photo
	Item int           `json:"item"`
	Role classify.Role `json:"role"`
}

func newAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <input-dir>",
		Short: "Print the per-photo metrics and decisions without writing outputs",
		Long: `Analyze every photo of a session and print its metrics: frame number,
dominant color, edge score, width and content fraction, plus the item and
role it was assigned. Nothing is written to disk.

Examples:
  prodshot analyze ./session
  prodshot analyze ./session --json > analysis.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configToBatchConfig(a.cfg, cmd)
			cfg.InputDir = args[0]
			cfg.OutputDir = ""
			cfg.DryRun = true
			cfg.AnalysisFile = ""
			cfg.Quiet = true

			res, err := batch.Run(cmd.Context(), cfg, batch.Deps{})
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return writeAnalysis(cmd.OutOrStdout(), res, asJSON)
		},
	}

	addBatchFlags(cmd)
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}

func analysisRows(res *batch.Result) []photoRow {
	rows := make([]photoRow, 0, len(res.Photos))
	for _, ph := range res.Photos {
		row := photoRow{Photo: ph, Role: classify.RoleUnused}
		for i := range res.Items {
			it := &res.Items[i]
			if slices.Contains(it.Group.Photos, ph) {
				row.Item, row.Role = it.Index, it.RoleOf(ph)
				break
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func writeAnalysis(w io.Writer, res *batch.Result, asJSON bool) error {
	rows := analysisRows(res)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PHOTO\tSEQ\tCOLOR\tEDGE\tWIDTH\tCONTENT\tITEM\tROLE")
	for _, r := range rows {
		seq := "-"
		if r.HasSequence {
			seq = fmt.Sprint(r.SequenceNumber)
		}
		item := "-"
		if r.Item > 0 {
			item = fmt.Sprintf("%03d", r.Item)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.2f\t%.2f\t%s\t%s\n",
			r.Name(), seq, r.DominantColor, r.EdgeScore, r.WidthFraction, r.ContentAreaFraction, item, r.Role)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(tw, "FAILED %s (%s): %s\n", f.Path, f.Stage, f.Err)
	}
	return tw.Flush()
}
