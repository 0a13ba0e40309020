package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sw33tLie/brickscope/pkg/partbin"
	"github.com/sw33tLie/brickscope/pkg/reservation"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Reserve parts for the builds you are working on",
}

var planOpenCmd = &cobra.Command{
	Use:   "open <set>",
	Short: "Reserve every part of a set for a new build plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			p, err := a.planner.OpenPlan(cmd.Context(), a.user, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✅ Opened plan %s for %s, reserving %d parts\n", p.ID, p.SetNum, p.Parts.Total())
			return nil
		})
	},
}

var planCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a build plan and release what it reserved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid plan id %q", args[0])
		}
		return withApp(true, func(a *app) error {
			p, err := a.planner.ClosePlan(cmd.Context(), a.user, id)
			if errors.Is(err, reservation.ErrPlanNotFound) {
				return fmt.Errorf("no open plan %s for %s", id, a.user)
			}
			if err != nil {
				return err
			}
			fmt.Printf("✅ Closed plan %s (%s), released %d parts\n", p.ID, p.SetNum, p.Parts.Total())
			return nil
		})
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open build plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(a *app) error {
			plans, err := a.planner.Plans(cmd.Context(), a.user)
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				fmt.Println("No open plans.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tSET\tPARTS\tOPENED\t")
			for _, p := range plans {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t\n", p.ID, p.SetNum, p.Parts.Total(), p.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

var planFreeCmd = &cobra.Command{
	Use:   "free",
	Short: "Print your free parts: inventory minus everything reserved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(a *app) error {
			free, err := a.planner.Free(cmd.Context(), a.user)
			if err != nil {
				return err
			}
			if free.Empty() {
				fmt.Println("No free parts.")
				return nil
			}
			printBinRows(free.Rows())
			return nil
		})
	},
}

var planReserveCmd = &cobra.Command{
	Use:   "reserve <part> <color> <qty>",
	Short: "Hold loose parts outside of any build plan",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		parts, err := partArgsBin(args)
		if err != nil {
			return err
		}
		return withApp(true, func(a *app) error {
			held, err := a.planner.Reserve(cmd.Context(), a.user, parts)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Reserved %s (%d parts held)\n", parts, held.Total())
			return nil
		})
	},
}

var planReleaseCmd = &cobra.Command{
	Use:   "release <part> <color> <qty>",
	Short: "Give back loose parts held with reserve",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		parts, err := partArgsBin(args)
		if err != nil {
			return err
		}
		return withApp(true, func(a *app) error {
			held, err := a.planner.Release(cmd.Context(), a.user, parts)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Released %s (%d parts held)\n", parts, held.Total())
			return nil
		})
	},
}

var planReservedCmd = &cobra.Command{
	Use:   "reserved",
	Short: "Print everything currently reserved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(a *app) error {
			held, err := a.planner.Reserved(cmd.Context(), a.user)
			if err != nil {
				return err
			}
			if held.Empty() {
				fmt.Println("Nothing reserved.")
				return nil
			}
			printBinRows(held.Rows())
			return nil
		})
	},
}

// partArgsBin turns <part> <color> <qty> into a one-entry bin.
func partArgsBin(args []string) (*partbin.Bin, error) {
	k, qty, err := parsePartArgs(args)
	if err != nil {
		return nil, err
	}
	if k.PartNum == "" || qty <= 0 {
		return nil, fmt.Errorf("need a part number and a positive quantity")
	}
	b := partbin.New()
	b.Add(k, qty)
	return b, nil
}

var planClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every reservation and open plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			if err := a.planner.ClearPlans(cmd.Context(), a.user); err != nil {
				return err
			}
			fmt.Printf("✅ Cleared all reservations of %s\n", a.user)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planOpenCmd)
	planCmd.AddCommand(planCloseCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planFreeCmd)
	planCmd.AddCommand(planReserveCmd)
	planCmd.AddCommand(planReleaseCmd)
	planCmd.AddCommand(planReservedCmd)
	planCmd.AddCommand(planClearCmd)
}
