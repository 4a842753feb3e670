package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/poolboard/poolboard/internal/actions"
	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/clmm"
	"github.com/poolboard/poolboard/internal/config"
	"github.com/poolboard/poolboard/internal/dashboard"
	"github.com/poolboard/poolboard/internal/datafetcher"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/metrics"
	"github.com/poolboard/poolboard/internal/positions"
	"github.com/poolboard/poolboard/internal/router"
	"github.com/poolboard/poolboard/internal/suirpc"
	"github.com/poolboard/poolboard/internal/utils"
	"github.com/poolboard/poolboard/internal/wallet"
	"github.com/poolboard/poolboard/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app is every component wired from one Config.
type app struct {
	cfg        *config.Config
	registry   *prometheus.Registry
	board      *dashboard.PoolBoard
	tracker    *positions.Tracker
	bridge     *wallet.Bridge
	dispatcher *actions.Dispatcher
}

func newApp() (*app, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Initialize(cfg.LogLevel)

	slippage, err := utils.Float64ToDec(cfg.SwapSlippage)
	if err != nil {
		return nil, fmt.Errorf("invalid swap slippage: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	rpc := suirpc.NewClient(cfg.Endpoints.FullNodeURL, cfg.HTTPTimeout)
	sdk := clmm.NewClient(rpc, cfg.Protocol)
	pools := datafetcher.NewPoolFetcher(sdk, cfg.PoolPageLimit)
	stats := datafetcher.NewStatsFetcher(cfg.Endpoints.StatsAPIURL, cfg.HTTPTimeout)
	bridge := wallet.NewBridge(cfg.Endpoints.WalletBridgeURL, cfg.HTTPTimeout)
	routes := router.NewClient(cfg.Endpoints.RouterAPIURL, cfg.Protocol, cfg.HTTPTimeout)

	return &app{
		cfg:      cfg,
		registry: registry,
		board:    dashboard.NewPoolBoard(pools, stats, m),
		tracker:  positions.NewTracker(sdk, m),
		bridge:   bridge,
		dispatcher: actions.NewDispatcher(pools, sdk, routes, bridge, actions.Options{
			Slippage: slippage,
			Guard:    cfg.ActionGuard,
		}, m),
	}, nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if port == "" {
				port = a.cfg.WebPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Prime the pool view so /api/pools/latest has data before the first request.
			if state := a.board.Refresh(ctx, nil); state.Err != nil {
				log.Warn().Err(state.Err).Msg("Initial pool fetch failed; serving anyway")
			}

			server := web.NewWebServer(port, web.Deps{
				Board:    a.board,
				Tracker:  a.tracker,
				Session:  a.bridge,
				Actions:  a.dispatcher,
				Gatherer: a.registry,
			})
			log.Info().Str("port", port).Str("url", "http://localhost:"+port).Msg("Starting poolboard API")
			return server.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (defaults to WEB_PORT)")
	return cmd
}

func newPoolsCmd() *cobra.Command {
	var ids string
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Fetch pools with statistics and print the merged view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			state := a.board.Refresh(cmd.Context(), splitIDs(ids))
			if state.Err != nil {
				return state.Err
			}
			return printJSON(state)
		},
	}
	cmd.Flags().StringVar(&ids, "ids", "", "comma separated pool ids; all pools when empty")
	return cmd
}

func newPositionsCmd() *cobra.Command {
	var (
		owner string
		pools string
	)
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Print a wallet's positions and pending rewards per pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if address.Normalize(owner) == address.HexPrefix {
				return errors.New("--owner is required")
			}
			a, err := newApp()
			if err != nil {
				return err
			}

			poolIDs := splitIDs(pools)
			if len(poolIDs) == 0 {
				if state := a.board.Refresh(cmd.Context(), nil); state.Err != nil {
					return state.Err
				}
				poolIDs = a.board.PoolIDs()
			}

			conn := wallet.Connection{Connected: true, Address: address.Normalize(owner)}
			snap := a.tracker.Refresh(cmd.Context(), conn, poolIDs)
			if snap.Err != nil {
				return snap.Err
			}
			return printJSON(snap)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "wallet address")
	cmd.Flags().StringVar(&pools, "pools", "", "comma separated pool ids; every listed pool when empty")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "poolboard",
		Short:         "Liquidity pool dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newPoolsCmd(), newPositionsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("poolboard failed")
	}
}
