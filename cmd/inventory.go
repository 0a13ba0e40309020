package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sw33tLie/brickscope/internal/utils"
	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/planner"
)

// inventoryCmd represents the inventory command
var inventoryCmd = &cobra.Command{
	Use:     "inventory",
	Aliases: []string{"inv"},
	Short:   "Manage the parts and sets you own",
}

var inventoryAddCmd = &cobra.Command{
	Use:   "add <part> <color> <qty>",
	Short: "Add parts to your manual inventory",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, qty, err := parsePartArgs(args)
		if err != nil {
			return err
		}
		return withApp(true, func(a *app) error {
			m, err := a.planner.AddPart(cmd.Context(), a.user, k, qty)
			if err != nil {
				return err
			}
			printMutation(a, m, fmt.Sprintf("Added %d x %s", qty, k))
			return nil
		})
	},
}

var inventorySetCmd = &cobra.Command{
	Use:   "set <part> <color> <qty>",
	Short: "Set the quantity of a part in your manual inventory (0 removes it)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, qty, err := parsePartArgs(args)
		if err != nil {
			return err
		}
		return withApp(true, func(a *app) error {
			m, err := a.planner.SetPart(cmd.Context(), a.user, k, qty)
			if err != nil {
				return err
			}
			printMutation(a, m, fmt.Sprintf("Set %s to %d", k, qty))
			return nil
		})
	},
}

var inventoryRmCmd = &cobra.Command{
	Use:     "rm <part> <color>",
	Aliases: []string{"remove"},
	Short:   "Remove a part from your manual inventory",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid color id %q", args[1])
		}
		k := partbin.Key{PartNum: args[0], ColorID: color}
		return withApp(true, func(a *app) error {
			m, err := a.planner.RemovePart(cmd.Context(), a.user, k)
			if err != nil {
				return err
			}
			printMutation(a, m, fmt.Sprintf("Removed %s", k))
			return nil
		})
	},
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print your aggregated inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manual, _ := cmd.Flags().GetBool("manual")
		return withApp(false, func(a *app) error {
			var rows []partbin.Row
			if manual {
				parts, err := a.planner.Parts(cmd.Context(), a.user)
				if err != nil {
					return err
				}
				rows = parts
			} else {
				inv, err := a.planner.Inventory(cmd.Context(), a.user)
				if err != nil {
					return err
				}
				rows = inv.Rows()
			}
			if len(rows) == 0 {
				fmt.Println("No parts in the inventory.")
				return nil
			}
			printBinRows(rows)
			return nil
		})
	},
}

var inventoryOwnCmd = &cobra.Command{
	Use:   "own <set>",
	Short: "Record one more owned copy of a set; its parts join your inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			m, err := a.planner.OwnSet(cmd.Context(), a.user, args[0])
			if err != nil {
				return err
			}
			printMutation(a, m, fmt.Sprintf("Now owning one more %s", m.SetNum))
			return nil
		})
	},
}

var inventoryDisownCmd = &cobra.Command{
	Use:   "disown <set>",
	Short: "Remove one owned copy of a set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			m, err := a.planner.DisownSet(cmd.Context(), a.user, args[0])
			if err != nil {
				return err
			}
			printMutation(a, m, fmt.Sprintf("Removed one copy of %s", args[0]))
			return nil
		})
	},
}

var inventorySetsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List the sets you own, one line per copy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(a *app) error {
			sets, err := a.planner.OwnedSets(cmd.Context(), a.user)
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				fmt.Println("No owned sets.")
				return nil
			}
			for _, s := range sets {
				fmt.Println(s)
			}
			return nil
		})
	},
}

var inventoryRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-aggregate your inventory, e.g. after the catalog changed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			m, err := a.planner.Reaggregate(cmd.Context(), a.user)
			if err != nil {
				return err
			}
			printMutation(a, m, "Inventory re-aggregated")
			return nil
		})
	},
}

func parsePartArgs(args []string) (partbin.Key, int, error) {
	color, err := strconv.Atoi(args[1])
	if err != nil {
		return partbin.Key{}, 0, fmt.Errorf("invalid color id %q", args[1])
	}
	qty, err := strconv.Atoi(args[2])
	if err != nil {
		return partbin.Key{}, 0, fmt.Errorf("invalid quantity %q", args[2])
	}
	return partbin.Key{PartNum: args[0], ColorID: color}.Clean(), qty, nil
}

func printMutation(a *app, m planner.Mutation, done string) {
	if !m.Changed {
		fmt.Println("Nothing changed.")
		return
	}
	fmt.Printf("✅ %s (%s now owns %d parts)\n", done, a.user, m.Inventory.Total())
	if m.IndexErr != nil {
		utils.Log.Warnf("Discover index is stale; run `brickscope discover rebuild` to retry")
		return
	}
	utils.Log.Infof("Discover index v%d: %d candidate sets", m.Index.Version, m.Index.Candidates)
}

func printBinRows(rows []partbin.Row) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PART\tCOLOR\tQTY\t")
	total := 0
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t\n", r.PartNum, r.ColorID, r.Quantity)
		total += r.Quantity
	}
	fmt.Fprintln(w, " \t \t \t")
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t\n", len(rows), total)
	w.Flush()
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
	inventoryCmd.AddCommand(inventoryAddCmd)
	inventoryCmd.AddCommand(inventorySetCmd)
	inventoryCmd.AddCommand(inventoryRmCmd)
	inventoryCmd.AddCommand(inventoryListCmd)
	inventoryCmd.AddCommand(inventoryOwnCmd)
	inventoryCmd.AddCommand(inventoryDisownCmd)
	inventoryCmd.AddCommand(inventorySetsCmd)
	inventoryCmd.AddCommand(inventoryRefreshCmd)

	inventoryListCmd.Flags().Bool("manual", false, "Show only manually entered rows")
}
