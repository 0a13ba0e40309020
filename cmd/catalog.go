package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sw33tLie/brickscope/internal/utils"
	"github.com/sw33tLie/brickscope/pkg/rebrickable"
	"github.com/sw33tLie/brickscope/pkg/storage"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain the set catalog",
}

var catalogLoadCmd = &cobra.Command{
	Use:   "load <file.json>",
	Short: "Load sets, inventories and excluded parts from a JSON document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		c, err := storage.ParseCatalog(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return withApp(true, func(a *app) error {
			res, err := a.store.LoadCatalog(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Loaded %d sets (%d inventory versions, %d instruction lists, %d summaries), %d excluded parts\n",
				res.Sets, res.Versions, res.Instructions, res.Summaries, res.Excluded)
			return nil
		})
	},
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync <set>...",
	Short: "Fetch set part lists from Rebrickable into the summary tier",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			rc := a.cfg.Rebrickable
			if rc.Key == "" {
				return errors.New("rebrickable.key is not configured")
			}
			client := rebrickable.New(rc.BaseURL, rc.Key, rc.Retries)

			var failed int
			for _, id := range args {
				if err := syncSet(cmd, a, client, id); err != nil {
					utils.Log.Errorf("Sync %s: %v", id, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sets failed to sync", failed, len(args))
			}
			return nil
		})
	},
}

func syncSet(cmd *cobra.Command, a *app, client *rebrickable.Client, id string) error {
	ctx := cmd.Context()
	info, err := client.Set(ctx, id)
	if err != nil {
		return err
	}
	rows, err := client.SetParts(ctx, info.SetNum)
	if err != nil {
		return err
	}
	if err := a.store.UpsertSet(ctx, storage.CatalogSet{
		SetNum:   info.SetNum,
		Name:     info.Name,
		Year:     info.Year,
		NumParts: info.NumParts,
	}); err != nil {
		return err
	}
	if err := a.store.ReplaceSummary(ctx, info.SetNum, rows); err != nil {
		return err
	}
	fmt.Printf("✅ %s %s: %d part rows\n", info.SetNum, info.Name, len(rows))
	return nil
}

var catalogExcludeCmd = &cobra.Command{
	Use:   "exclude <part>",
	Short: "Ignore a part number when matching inventories against sets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		part := strings.TrimSpace(args[0])
		if part == "" {
			return errors.New("empty part number")
		}
		return withApp(true, func(a *app) error {
			if err := a.store.ExcludePart(cmd.Context(), part, reason); err != nil {
				return err
			}
			a.planner.InvalidateExclusions()
			fmt.Printf("✅ Excluded %s; run `brickscope discover rebuild` to apply\n", part)
			return nil
		})
	},
}

var catalogIncludeCmd = &cobra.Command{
	Use:   "include <part>",
	Short: "Stop ignoring an excluded part number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(a *app) error {
			ok, err := a.store.IncludePart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%s was not excluded.\n", args[0])
				return nil
			}
			a.planner.InvalidateExclusions()
			fmt.Printf("✅ %s is matched again\n", args[0])
			return nil
		})
	},
}

var catalogExcludedCmd = &cobra.Command{
	Use:   "excluded",
	Short: "List excluded part numbers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(a *app) error {
			parts, err := a.store.ExcludedParts(cmd.Context())
			if err != nil {
				return err
			}
			nums := make([]string, 0, len(parts))
			for p := range parts {
				nums = append(nums, p)
			}
			sort.Strings(nums)
			for _, p := range nums {
				if parts[p] != "" {
					fmt.Printf("%s\t%s\n", p, parts[p])
				} else {
					fmt.Println(p)
				}
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogLoadCmd)
	catalogCmd.AddCommand(catalogSyncCmd)
	catalogCmd.AddCommand(catalogExcludeCmd)
	catalogCmd.AddCommand(catalogIncludeCmd)
	catalogCmd.AddCommand(catalogExcludedCmd)

	catalogExcludeCmd.Flags().String("reason", "", "Why the part is excluded")
}
