/*

Package actions runs the user's mutating actions: deposit, withdraw, collect
rewards and swap. Every action goes through three phases:

	resolve  read the authoritative pool/position state the payload needs
	build    construct the unsigned payload
	submit   hand it to the wallet to sign and broadcast

Actions are independent of each other. A failure is returned as a
*types.ActionError naming the phase it happened in.

*/

package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/clmm"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/metrics"
	"github.com/poolboard/poolboard/internal/router"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/poolboard/poolboard/internal/wallet"
	"github.com/rs/zerolog"
)

// PoolReader re-reads a pool by id. datafetcher.PoolFetcher satisfies it.
type PoolReader interface {
	FetchPoolByID(ctx context.Context, id string) (types.PoolRecord, error)
}

type Options struct {
	// Slippage is the maximum slippage applied to swaps, as a fraction.
	Slippage sdkmath.LegacyDec
	// Guard rejects an action while an identical (kind, target) one is pending.
	Guard bool
}

type Dispatcher struct {
	pools   PoolReader
	sdk     clmm.SDK
	router  router.Router
	wallet  wallet.Wallet
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatcher(pools PoolReader, sdk clmm.SDK, r router.Router, w wallet.Wallet, opts Options, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		pools:    pools,
		sdk:      sdk,
		router:   r,
		wallet:   w,
		opts:     opts,
		metrics:  m,
		log:      logger.GetForComponent("action_dispatcher"),
		inFlight: make(map[string]struct{}),
	}
}

// DepositRequest adds AmountA and AmountB to a pool. Without PositionID a new
// full-range position is opened.
type DepositRequest struct {
	PoolID     string
	AmountA    sdkmath.Int
	AmountB    sdkmath.Int
	PositionID string
}

// SwapRequest swaps exactly AmountIn of From into To.
type SwapRequest struct {
	AmountIn sdkmath.Int
	From     string
	To       string
}

// step is the resolve and build work specific to one action kind. It moves
// the action through the phases it reaches.
type step func(ctx context.Context, a *action) (types.TxPayload, error)

type action struct {
	types.PendingAction
	phaseStart time.Time
	d          *Dispatcher
}

// enter moves the action to phase and records how long the previous one took.
func (a *action) enter(phase types.ActionPhase) {
	a.d.metrics.ObservePhase(string(a.Kind), string(a.Phase), a.phaseStart)
	a.d.log.Debug().
		Str("actionId", a.ID).
		Str("kind", string(a.Kind)).
		Str("from", string(a.Phase)).
		Str("to", string(phase)).
		Msg("Action phase transition")
	a.Phase = phase
	a.phaseStart = time.Now()
}

func guardKey(kind types.ActionKind, target string) string {
	return string(kind) + "|" + target
}

func (d *Dispatcher) acquire(key string) bool {
	if !d.opts.Guard {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[key]; busy {
		return false
	}
	d.inFlight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key string) {
	if !d.opts.Guard {
		return
	}
	d.mu.Lock()
	delete(d.inFlight, key)
	d.mu.Unlock()
}

func (d *Dispatcher) run(ctx context.Context, kind types.ActionKind, target string, prepare step) (types.ActionResult, error) {
	now := time.Now()
	a := &action{
		PendingAction: types.PendingAction{
			ID:        uuid.NewString(),
			Kind:      kind,
			Target:    target,
			Phase:     types.PhaseResolve,
			StartedAt: now,
		},
		phaseStart: now,
		d:          d,
	}
	fail := func(err error) (types.ActionResult, error) {
		outcome := metrics.OutcomeFailed
		switch {
		case types.IsBenign(err):
			outcome = metrics.OutcomeCancelled
			d.log.Info().Str("actionId", a.ID).Str("kind", string(kind)).Str("target", target).Msg("Action cancelled by user")
		case errors.Is(err, types.ErrActionInFlight):
			outcome = metrics.OutcomeRejected
			d.log.Warn().Str("kind", string(kind)).Str("target", target).Msg("Identical action already in flight")
		default:
			d.log.Error().Err(err).Str("actionId", a.ID).Str("kind", string(kind)).Str("phase", string(a.Phase)).Str("target", target).Msg("Action failed")
		}
		d.metrics.ActionOutcome(string(kind), outcome)
		return types.ActionResult{}, &types.ActionError{ActionID: a.ID, Kind: kind, Phase: a.Phase, Target: target, Err: err}
	}

	if !d.wallet.Connection().Connected {
		return fail(types.ErrWalletDisconnected)
	}

	key := guardKey(kind, target)
	if !d.acquire(key) {
		return fail(types.ErrActionInFlight)
	}
	defer d.release(key)

	d.log.Info().Str("actionId", a.ID).Str("kind", string(kind)).Str("target", target).Msg("Starting action")

	payload, err := prepare(ctx, a)
	if err != nil {
		return fail(err)
	}

	a.enter(types.PhaseSubmit)
	receipt, err := d.wallet.SignAndSubmit(ctx, payload)
	if err != nil {
		return fail(err)
	}
	a.enter(types.PhaseDone)

	d.metrics.ActionOutcome(string(kind), metrics.OutcomeSuccess)
	d.log.Info().
		Str("actionId", a.ID).
		Str("kind", string(kind)).
		Str("target", target).
		Str("digest", receipt.Digest).
		Dur("elapsed", time.Since(a.StartedAt)).
		Msg("Action submitted successfully")

	return types.ActionResult{ActionID: a.ID, Kind: kind, Target: target, Digest: receipt.Digest}, nil
}

func validAmount(v sdkmath.Int) bool {
	return !v.IsNil() && !v.IsNegative()
}

// resolvePool re-reads a pool. A missing pool is reported as
// types.ErrPoolNotFound; other failures pass through.
func (d *Dispatcher) resolvePool(ctx context.Context, id string) (types.PoolRecord, error) {
	pool, err := d.pools.FetchPoolByID(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && !errors.Is(err, types.ErrPoolNotFound) {
			return types.PoolRecord{}, fmt.Errorf("%w: %w", types.ErrPoolNotFound, err)
		}
		return types.PoolRecord{}, err
	}
	return pool, nil
}

// readPosition reads a position. A missing position is reported as
// types.ErrPositionNotFound; other failures pass through.
func (d *Dispatcher) readPosition(ctx context.Context, id string) (types.PositionRecord, error) {
	pos, err := d.sdk.GetPosition(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && !errors.Is(err, types.ErrPositionNotFound) {
			return types.PositionRecord{}, fmt.Errorf("%w: %w", types.ErrPositionNotFound, err)
		}
		return types.PositionRecord{}, err
	}
	return pos, nil
}

// resolvePosition reads a position and its parent pool.
func (d *Dispatcher) resolvePosition(ctx context.Context, id string) (types.PositionRecord, types.PoolRecord, error) {
	pos, err := d.readPosition(ctx, id)
	if err != nil {
		return types.PositionRecord{}, types.PoolRecord{}, err
	}
	pool, err := d.resolvePool(ctx, pos.PoolID)
	if err != nil {
		return types.PositionRecord{}, types.PoolRecord{}, err
	}
	return pos, pool, nil
}

// Deposit adds liquidity to a pool.
func (d *Dispatcher) Deposit(ctx context.Context, req DepositRequest) (types.ActionResult, error) {
	return d.run(ctx, types.ActionDeposit, req.PoolID, func(ctx context.Context, a *action) (types.TxPayload, error) {
		if !validAmount(req.AmountA) || !validAmount(req.AmountB) || (req.AmountA.IsZero() && req.AmountB.IsZero()) {
			return types.TxPayload{}, fmt.Errorf("%w: deposit amounts must be non-negative and not both zero", types.ErrInvalidAmount)
		}

		pool, err := d.resolvePool(ctx, req.PoolID)
		if err != nil {
			return types.TxPayload{}, err
		}
		if req.PositionID != "" {
			pos, err := d.readPosition(ctx, req.PositionID)
			if err != nil {
				return types.TxPayload{}, err
			}
			if !address.Equal(pos.PoolID, pool.PoolAddress) {
				return types.TxPayload{}, fmt.Errorf("%w: %s belongs to pool %s", types.ErrPositionNotFound, req.PositionID, pos.PoolID)
			}
		}

		a.enter(types.PhaseBuild)
		params := clmm.AddLiquidityParams{
			Pool:       pool,
			PositionID: req.PositionID,
			AmountA:    req.AmountA,
			AmountB:    req.AmountB,
		}
		if req.PositionID == "" {
			params.TickLower, params.TickUpper = clmm.FullRangeTicks(pool.TickSpacing)
		}
		return d.sdk.BuildAddLiquidity(params)
	})
}

// Withdraw removes all liquidity of a position and collects its fees in the
// same transaction. Minimum outputs are zero on both sides.
func (d *Dispatcher) Withdraw(ctx context.Context, positionID string) (types.ActionResult, error) {
	return d.run(ctx, types.ActionWithdraw, positionID, func(ctx context.Context, a *action) (types.TxPayload, error) {
		pos, pool, err := d.resolvePosition(ctx, positionID)
		if err != nil {
			return types.TxPayload{}, err
		}
		if pos.Liquidity.IsNil() || !pos.Liquidity.IsPositive() {
			return types.TxPayload{}, types.ErrNothingToWithdraw
		}

		a.enter(types.PhaseBuild)
		return d.sdk.BuildRemoveLiquidity(clmm.RemoveLiquidityParams{
			Pool:       pool,
			PositionID: pos.PositionID,
			Liquidity:  pos.Liquidity,
			MinAmountA: sdkmath.ZeroInt(),
			MinAmountB: sdkmath.ZeroInt(),
			CollectFee: true,
		})
	})
}

// CollectRewards claims every reward coin type with a positive owed amount.
// Trading fees are not collected.
func (d *Dispatcher) CollectRewards(ctx context.Context, positionID string) (types.ActionResult, error) {
	return d.run(ctx, types.ActionCollectRewards, positionID, func(ctx context.Context, a *action) (types.TxPayload, error) {
		pos, pool, err := d.resolvePosition(ctx, positionID)
		if err != nil {
			return types.TxPayload{}, err
		}
		rewards, err := d.sdk.PositionRewards(ctx, pool.PoolAddress, pos.PositionID)
		if err != nil {
			return types.TxPayload{}, err
		}
		coinTypes := OwedCoinTypes(rewards)
		if len(coinTypes) == 0 {
			return types.TxPayload{}, types.ErrNothingToCollect
		}

		a.enter(types.PhaseBuild)
		return d.sdk.BuildCollectRewards(clmm.CollectRewardsParams{
			Pool:              pool,
			PositionID:        pos.PositionID,
			RewarderCoinTypes: coinTypes,
			CollectFee:        false,
		})
	})
}

// Swap routes AmountIn of From into To through the best route found.
func (d *Dispatcher) Swap(ctx context.Context, req SwapRequest) (types.ActionResult, error) {
	return d.run(ctx, types.ActionSwap, req.From+"->"+req.To, func(ctx context.Context, a *action) (types.TxPayload, error) {
		if req.AmountIn.IsNil() || !req.AmountIn.IsPositive() {
			return types.TxPayload{}, fmt.Errorf("%w: swap input must be positive", types.ErrInvalidAmount)
		}
		if req.From == "" || req.To == "" || req.From == req.To {
			return types.TxPayload{}, fmt.Errorf("%w: swap needs two distinct coin types", types.ErrInvalidAmount)
		}

		routes, err := d.router.FindRoutes(ctx, req.From, req.To, req.AmountIn)
		if err != nil {
			return types.TxPayload{}, err
		}
		best, ok := router.BestRoute(routes)
		if !ok {
			return types.TxPayload{}, types.ErrNoRouteFound
		}

		a.enter(types.PhaseBuild)
		return d.router.BuildSwap(best, d.opts.Slippage)
	})
}

// OwedCoinTypes returns the coin types with a strictly positive owed amount,
// in input order. Lines that do not parse are skipped.
func OwedCoinTypes(rewards []types.RewardOwed) []string {
	var out []string
	for _, r := range rewards {
		if amount, ok := r.Amount(); ok && amount.IsPositive() {
			out = append(out, r.CoinType)
		}
	}
	return out
}
