package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/warp/allocation-engine/config"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/generic/store"
)

func newSimulateCommand() *cobra.Command {
	var (
		turns     int
		rulesPath string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a ruleset for a number of turns and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if rulesPath == "" {
				rulesPath = cfg.Rules.Path
			}
			var rs *factory.RulesetJSON
			if rulesPath != "" {
				rs, err = factory.Load(rulesPath)
			} else {
				rs, err = factory.Default()
			}
			if err != nil {
				return err
			}
			return simulate(context.Background(), cmd.OutOrStdout(), cfg, rs, turns)
		},
	}
	cmd.Flags().IntVar(&turns, "turns", 3, "number of turns to play")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "ruleset file (default: rules.path or the built-in game)")
	return cmd
}

func simulate(ctx context.Context, w io.Writer, cfg *config.Config, rs *factory.RulesetJSON, turns int) error {
	if turns < 1 {
		return fmt.Errorf("turns must be at least 1, got %d", turns)
	}
	mem := store.NewMemory()
	g, err := factory.NewGame(ctx, rs, factory.GameOptions{
		Engine:     engineOptions(cfg),
		Ledger:     generic.NewLedger(mem),
		SavePoints: mem,
		Settle:     true,
		Log:        cfg.Logging.NewLogger(os.Stderr),
	})
	if err != nil {
		return err
	}

	for i := 0; i < turns; i++ {
		if err := g.RunTurn(ctx); err != nil {
			return fmt.Errorf("turn %d: %w", g.Ctrl.Turn(), err)
		}
	}

	fmt.Fprintf(w, "%s after %d turns\n\nHandoffs\n", g.Name, turns)
	handoffs := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Turn", "Nation", "Category", "Kind", "Requested", "Quantity"}),
	)
	for _, h := range g.Queue.All() {
		handoffs.Append([]string{
			strconv.Itoa(int(h.Turn)),
			string(h.NationID),
			string(h.CategoryID),
			h.Kind.String(),
			strconv.FormatInt(h.Requested, 10),
			strconv.FormatInt(h.Quantity, 10),
		})
	}
	if err := handoffs.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nPools")
	pools := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Nation", "Resource", "On Hand", "Reserved", "Available"}),
	)
	for _, n := range g.Ctrl.Nations() {
		for _, p := range n.Pools() {
			pools.Append([]string{
				string(n.ID),
				p.Resource.ResourceID(),
				p.OnHand.Value.String(),
				p.Reserved.Value.String(),
				p.Available.Value.String(),
			})
		}
	}
	return pools.Render()
}
