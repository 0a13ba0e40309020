package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sw33tLie/brickscope/pkg/bom"
)

// bomCmd represents the bom command
var bomCmd = &cobra.Command{
	Use:   "bom <set>",
	Short: "Print the resolved bill of materials of a set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(a *app) error {
			b, err := a.planner.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !b.Found() {
				fmt.Printf("No catalog entry for %s.\n", bom.NormalizeSetNum(args[0]))
				return nil
			}

			header := b.SetNum
			if set, ok, err := a.store.GetSet(cmd.Context(), b.SetNum); err == nil && ok && set.Name != "" {
				header = fmt.Sprintf("%s %s (%d)", b.SetNum, set.Name, set.Year)
			}
			fmt.Printf("%s, resolved from %s\n\n", header, b.Tier)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PART\tCOLOR\tQTY\tNAME\t")
			for _, r := range b.Rows() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", r.PartNum, r.ColorID, r.Quantity, r.Name)
			}
			fmt.Fprintln(w, " \t \t \t \t")
			fmt.Fprintf(w, "TOTAL\t%d\t%d\t \t\n", b.Bin.Len(), b.Bin.Total())
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(bomCmd)
}
