package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sw33tLie/brickscope/pkg/coverage"
	"github.com/sw33tLie/brickscope/pkg/planner"
)

// coverageCmd represents the coverage command
var coverageCmd = &cobra.Command{
	Use:   "coverage <set>...",
	Short: "Show how much of each set your free parts cover",
	Long: `Show how much of each set your free parts cover.

Parts reserved by open build plans are not counted unless --ignore-reservations
is given. Sets are ranked buildable first, then by coverage.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ignore, _ := cmd.Flags().GetBool("ignore-reservations")
		shortages, _ := cmd.Flags().GetInt("shortages")
		return withApp(false, func(a *app) error {
			reports, err := a.planner.Coverage(cmd.Context(), a.user, args, planner.CoverageOptions{IgnoreReservations: ignore})
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No sets given.")
				return nil
			}
			printReports(reports)
			if len(reports) == 1 {
				printShortages(reports[0].Shortages, shortages)
			}
			return nil
		})
	},
}

func printReports(reports []coverage.SetReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SET\tSOURCE\tPAIRS\tNEEDED\tHAVE\tCOVERAGE\tBUILDABLE\t")
	for _, r := range reports {
		buildable := ""
		if r.Buildable() {
			buildable = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.2f%%\t%s\t\n",
			r.SetNum, r.Tier, r.MatchPairs, r.TotalNeeded, r.TotalHave, r.CoveragePct, buildable)
	}
	w.Flush()
}

func printShortages(s []coverage.Shortage, limit int) {
	if len(s) == 0 {
		return
	}
	fmt.Printf("\nBiggest blockers (%d missing rows):\n", len(s))
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PART\tCOLOR\tNEEDED\tHAVE\tSHORT\t")
	for _, r := range s {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", r.PartNum, r.ColorID, r.Needed, r.Have, r.Short)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(coverageCmd)
	coverageCmd.Flags().Bool("ignore-reservations", false, "Measure against the whole inventory instead of free parts")
	coverageCmd.Flags().Int("shortages", 20, "Maximum shortage rows to print for a single set (0 = all)")
}
