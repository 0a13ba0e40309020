package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sw33tLie/brickscope/pkg/planner"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find catalog sets your parts might build",
}

var discoverRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild your candidate shortlist from the current inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			res, err := a.planner.Rebuild(cmd.Context(), a.user)
			if err != nil {
				return err
			}
			if res.Version == 0 {
				fmt.Println("Inventory is empty, candidate list cleared.")
				return nil
			}
			fmt.Printf("✅ Index v%d: %d candidate sets from %d part/color pairs\n", res.Version, res.Candidates, res.Pairs)
			return nil
		})
	},
}

var discoverListCmd = &cobra.Command{
	Use:   "list",
	Short: "Rank your candidate sets by coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ignore, _ := cmd.Flags().GetBool("ignore-reservations")
		fresh, _ := cmd.Flags().GetBool("fresh")
		return withApp(false, func(a *app) error {
			reports, err := a.planner.Discover(cmd.Context(), a.user, planner.DiscoverOptions{
				Limit:              limit,
				IgnoreReservations: ignore,
				Fresh:              fresh,
			})
			if errors.Is(err, planner.ErrIndexStale) {
				return fmt.Errorf("%w: run `brickscope discover rebuild` first", err)
			}
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No candidate sets. Add parts or run `brickscope discover rebuild`.")
				return nil
			}
			printReports(reports)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.AddCommand(discoverRebuildCmd)
	discoverCmd.AddCommand(discoverListCmd)

	discoverListCmd.Flags().IntP("limit", "n", 25, "Maximum sets to show (0 = all)")
	discoverListCmd.Flags().Bool("ignore-reservations", false, "Measure against the whole inventory instead of free parts")
	discoverListCmd.Flags().Bool("fresh", false, "Fail instead of using candidates built from an older inventory")
}
