package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defistate-router-go/cmd/router/fixture"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/graph"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	"github.com/defistate/defistate-router-go/protocols/poolregistry"
	poolindexer "github.com/defistate/defistate-router-go/protocols/poolregistry/indexer"
	"github.com/defistate/defistate-router-go/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

const DefaultWatchInterval = 5 * time.Second

func (a *app) optimizeCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Find the best input amount over every expansion of an asset path",
		Example: `  router optimize --path USDC,SUI,USDC
  router optimize --path 0x2::sui::SUI,USDC,SUI --config config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, system, err := a.loadSystem(a.cfg.Snapshot)
			if err != nil {
				return err
			}
			assets, err := resolveAssets(state, path)
			if err != nil {
				return err
			}
			opt, err := a.newOptimizer()
			if err != nil {
				return err
			}
			result, err := opt.OptimizeStartingAmountIn(cmd.Context(), system.Snapshot(), assets)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "comma separated asset symbols or ids, first to last")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

// Quote is the output of the quote command.
type Quote struct {
	Market      common.Hash           `json:"market"`
	Kind        string                `json:"kind"`
	Origin      assetregistry.AssetID `json:"origin"`
	Destination assetregistry.AssetID `json:"destination"`
	AmountIn    *big.Int              `json:"amountIn"`
	AmountOut   *big.Int              `json:"amountOut"`
	Viable      bool                  `json:"viable"`
	SpotPrice   string                `json:"spotPrice"`
	// SpotPriceAfter is set when the swap was committed.
	SpotPriceAfter string `json:"spotPriceAfter,omitempty"`
}

func (a *app) quoteCmd() *cobra.Command {
	var (
		marketID string
		amount   string
		aToB     bool
		commit   bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Simulate one swap through a single market",
		Example: `  router quote --market 0x01 --amount 1000000
  router quote --market 0x04 --amount 5000000 --a-to-b=false --commit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := hexutil.Decode(marketID)
			if err != nil {
				return fmt.Errorf("market %q: %w", marketID, err)
			}
			id := common.BytesToHash(raw)
			amountIn, ok := new(big.Int).SetString(amount, 10)
			if !ok || amountIn.Sign() < 0 {
				return fmt.Errorf("amount %q is not a non-negative integer", amount)
			}

			_, system, err := a.loadSystem(a.cfg.Snapshot)
			if err != nil {
				return err
			}
			g := system.Snapshot()
			_, m, found := g.MarketByID(id)
			if !found {
				return fmt.Errorf("%w: %s", graph.ErrMarketNotFound, id.Hex())
			}

			origin, destination := m.Assets()
			if !aToB {
				origin, destination = destination, origin
			}
			out, err := m.AmountOut(amountIn, origin)
			if err != nil {
				return err
			}
			spot, err := m.SpotPrice(origin)
			if err != nil {
				return err
			}
			q := Quote{
				Market:      id,
				Kind:        m.Kind.String(),
				Origin:      origin,
				Destination: destination,
				AmountIn:    amountIn,
				AmountOut:   out,
				Viable:      m.Viable(),
				SpotPrice:   formatPrice(spot),
			}

			if commit {
				committed, err := system.ApplySwap(id, amountIn, origin)
				if err != nil {
					return err
				}
				q.AmountOut = committed
				_, after, _ := system.Snapshot().MarketByID(id)
				spotAfter, err := after.SpotPrice(origin)
				if err != nil {
					return err
				}
				q.SpotPriceAfter = formatPrice(spotAfter)
			}
			return writeJSON(cmd.OutOrStdout(), q)
		},
	}
	cmd.Flags().StringVar(&marketID, "market", "", "market object id (hex)")
	cmd.Flags().StringVar(&amount, "amount", "", "input amount in raw units")
	cmd.Flags().BoolVar(&aToB, "a-to-b", true, "sell the market's first asset")
	cmd.Flags().BoolVar(&commit, "commit", false, "apply the swap to the in-memory graph and report the moved price")
	_ = cmd.MarkFlagRequired("market")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func formatPrice(f *big.Float) string {
	if f == nil {
		return ""
	}
	return f.Text('g', 12)
}

type marketListing struct {
	ID       common.Hash           `json:"id"`
	Protocol engine.ProtocolID     `json:"protocol"`
	Kind     string                `json:"kind"`
	AssetA   assetregistry.AssetID `json:"assetA"`
	AssetB   assetregistry.AssetID `json:"assetB"`
	Viable   bool                  `json:"viable"`
}

type edgeListing struct {
	From    assetregistry.AssetID `json:"from"`
	To      assetregistry.AssetID `json:"to"`
	Markets []edgeMarketListing   `json:"markets"`
}

type edgeMarketListing struct {
	ID        common.Hash `json:"id"`
	SpotPrice string      `json:"spotPrice"`
}

// Listing is the output of the markets command.
type Listing struct {
	Checkpoint uint64          `json:"checkpoint"`
	Generation uint64          `json:"generation"`
	Markets    []marketListing `json:"markets"`
	Edges      []edgeListing   `json:"edges"`
}

func list(state *engine.State, g *graph.Graph) (Listing, error) {
	registry, err := poolregistry.FromState(state)
	if err != nil {
		return Listing{}, err
	}
	pools := poolindexer.New().Index(registry)

	l := Listing{
		Checkpoint: state.Checkpoint.Sequence,
		Generation: g.Generation(),
	}
	for _, m := range g.Markets() {
		a, b := m.Assets()
		protocol, _ := pools.ProtocolOf(m.ID())
		l.Markets = append(l.Markets, marketListing{
			ID:       m.ID(),
			Protocol: protocol,
			Kind:     m.Kind.String(),
			AssetA:   a,
			AssetB:   b,
			Viable:   m.Viable(),
		})
	}
	for _, from := range g.Assets() {
		for _, to := range g.Neighbors(from) {
			edge, ok := g.Edge(from, to)
			if !ok {
				continue
			}
			e := edgeListing{From: from, To: to}
			for _, em := range edge {
				e.Markets = append(e.Markets, edgeMarketListing{
					ID:        g.Market(em.Market).ID(),
					SpotPrice: formatPrice(em.SpotPrice),
				})
			}
			l.Edges = append(l.Edges, e)
		}
	}
	return l, nil
}

func (a *app) marketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "markets",
		Short: "List the markets and edges of the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, system, err := a.loadSystem(a.cfg.Snapshot)
			if err != nil {
				return err
			}
			l, err := list(state, system.Snapshot())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), l)
		},
	}
}

// DiffReport is the output of the diff command.
type DiffReport struct {
	From    uint64            `json:"from"`
	To      uint64            `json:"to"`
	Changes []stateops.Change `json:"changes"`
	Markets int               `json:"markets"`
}

func (a *app) diffCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff the snapshot against a later one and rebuild the graph from the patched state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prev, system, err := a.loadSystem(a.cfg.Snapshot)
			if err != nil {
				return err
			}
			next, err := fixture.Load(to)
			if err != nil {
				return err
			}
			ops, err := stateops.NewStateOps(a.logger.With("component", "stateops"), a.registry)
			if err != nil {
				return err
			}
			diff, patched, err := ops.Advance(prev, next)
			if err != nil {
				return err
			}
			if err := system.Refresh(patched); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), DiffReport{
				From:    diff.FromCheckpoint,
				To:      diff.ToCheckpoint.Sequence,
				Changes: stateops.Summarize(diff),
				Markets: len(system.Snapshot().Markets()),
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "path of the later snapshot fixture")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// watchCmd polls the snapshot file. Every new checkpoint is diffed against
// the previous one, patched into the graph and re-optimized; one result per
// checkpoint is written as a JSON line.
func (a *app) watchCmd() *cobra.Command {
	var (
		path     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-optimize a path every time the snapshot file moves to a new checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return errors.New("interval must be positive")
			}
			ctx := cmd.Context()
			logger := a.logger.With("component", "watch")

			current, system, err := a.loadSystem(a.cfg.Snapshot)
			if err != nil {
				return err
			}
			assets, err := resolveAssets(current, path)
			if err != nil {
				return err
			}
			opt, err := a.newOptimizer()
			if err != nil {
				return err
			}
			ops, err := stateops.NewStateOps(a.logger.With("component", "stateops"), a.registry)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			emit := func() {
				result, err := opt.OptimizeStartingAmountIn(ctx, system.Snapshot(), assets)
				if err != nil {
					logger.Warn("no result", "checkpoint", current.Checkpoint.Sequence, "error", err)
					return
				}
				if err := enc.Encode(result); err != nil {
					logger.Error("writing result", "error", err)
				}
			}
			emit()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}

				next, err := fixture.Load(a.cfg.Snapshot)
				if err != nil {
					logger.Error("reloading snapshot", "error", err)
					continue
				}
				if next.Checkpoint.Sequence == current.Checkpoint.Sequence {
					continue
				}
				_, patched, err := ops.Advance(current, next)
				if err != nil {
					logger.Error("advancing state", "error", err)
					continue
				}
				if err := system.Refresh(patched); err != nil {
					logger.Error("refreshing graph", "checkpoint", patched.Checkpoint.Sequence, "error", err)
					continue
				}
				current = patched
				emit()
			}
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "comma separated asset symbols or ids, first to last")
	cmd.Flags().DurationVar(&interval, "interval", DefaultWatchInterval, "how often the snapshot file is re-read")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
