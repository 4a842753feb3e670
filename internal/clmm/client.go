package clmm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/config"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
)

const ownedObjectsPageLimit = 50

const (
	fetcherModule             = "fetcher_script"
	fetchPositionRewards      = "fetch_position_rewards"
	fetchPositionRewardsEvent = "FetchPositionRewardsEvent"
	// Upper bound for the simulated reward read; a dry run spends no gas.
	inspectGasBudget = "50000000"
)

var ErrSimulationFailed = errors.New("transaction simulation failed")

// Caller issues a JSON-RPC call against a full node. *suirpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// Client reads pools and positions from a Sui full node and builds protocol
// transaction payloads.
type Client struct {
	rpc      Caller
	protocol config.Protocol
	log      zerolog.Logger
}

var _ SDK = (*Client)(nil)

func NewClient(rpc Caller, protocol config.Protocol) *Client {
	return &Client{
		rpc:      rpc,
		protocol: protocol,
		log:      logger.GetForComponent("clmm_client"),
	}
}

type eventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

type createPoolEventPage struct {
	Data []struct {
		ID         eventID `json:"id"`
		ParsedJSON struct {
			PoolID string `json:"pool_id"`
		} `json:"parsedJson"`
	} `json:"data"`
	NextCursor  *eventID `json:"nextCursor"`
	HasNextPage bool     `json:"hasNextPage"`
}

func encodeCursor(c *eventID) string {
	if c == nil {
		return ""
	}
	return c.TxDigest + ":" + c.EventSeq
}

func decodeCursor(s string) any {
	digest, seq, ok := strings.Cut(s, ":")
	if !ok || digest == "" {
		return nil
	}
	return eventID{TxDigest: digest, EventSeq: seq}
}

// ListPools returns one page of pools in creation order. Pools are enumerated
// from the factory's CreatePoolEvent stream and then read as objects.
func (c *Client) ListPools(ctx context.Context, cursor string, limit int) (types.PoolPage, error) {
	query := map[string]string{"MoveEventType": c.protocol.PackageID + "::factory::CreatePoolEvent"}

	var events createPoolEventPage
	if err := c.rpc.Call(ctx, "suix_queryEvents", []any{query, decodeCursor(cursor), limit, false}, &events); err != nil {
		return types.PoolPage{}, fmt.Errorf("query pool creation events: %w", err)
	}

	page := types.PoolPage{
		NextCursor:  encodeCursor(events.NextCursor),
		HasNextPage: events.HasNextPage,
	}
	if len(events.Data) == 0 {
		return page, nil
	}

	ids := make([]string, 0, len(events.Data))
	for _, ev := range events.Data {
		if ev.ParsedJSON.PoolID == "" {
			c.log.Warn().Str("txDigest", ev.ID.TxDigest).Msg("Pool creation event without pool id, skipping")
			continue
		}
		ids = append(ids, ev.ParsedJSON.PoolID)
	}

	var objects []objectResponse
	if err := c.rpc.Call(ctx, "sui_multiGetObjects", []any{ids, objectOptions}, &objects); err != nil {
		return types.PoolPage{}, fmt.Errorf("read pool objects: %w", err)
	}

	page.Pools = make([]types.PoolRecord, 0, len(objects))
	for i, obj := range objects {
		if obj.missing() {
			c.log.Warn().Str("poolId", ids[i]).Msg("Pool from creation event no longer exists, skipping")
			continue
		}
		pool, err := decodePool(obj)
		if err != nil {
			return types.PoolPage{}, fmt.Errorf("decode pool %s: %w", ids[i], err)
		}
		page.Pools = append(page.Pools, pool.Record)
	}

	c.log.Debug().
		Int("pools", len(page.Pools)).
		Bool("hasNextPage", page.HasNextPage).
		Msg("Fetched page of pools")

	return page, nil
}

func (c *Client) getPoolObject(ctx context.Context, id string) (poolObject, error) {
	var resp objectResponse
	if err := c.rpc.Call(ctx, "sui_getObject", []any{id, objectOptions}, &resp); err != nil {
		return poolObject{}, fmt.Errorf("get pool %s: %w", id, err)
	}
	if resp.missing() {
		return poolObject{}, fmt.Errorf("%w: %s", types.ErrPoolNotFound, id)
	}
	pool, err := decodePool(resp)
	if errors.Is(err, ErrUnexpectedType) {
		return poolObject{}, fmt.Errorf("%w: %s: %v", types.ErrPoolNotFound, id, err)
	}
	if err != nil {
		return poolObject{}, fmt.Errorf("decode pool %s: %w", id, err)
	}
	return pool, nil
}

// GetPool reads a single pool. It returns an error wrapping
// types.ErrPoolNotFound when no pool object has that id.
func (c *Client) GetPool(ctx context.Context, id string) (types.PoolRecord, error) {
	pool, err := c.getPoolObject(ctx, id)
	if err != nil {
		return types.PoolRecord{}, err
	}
	return pool.Record, nil
}

// GetPosition reads a single position without its rewards. It returns an
// error wrapping types.ErrPositionNotFound when no position has that id.
func (c *Client) GetPosition(ctx context.Context, id string) (types.PositionRecord, error) {
	var resp objectResponse
	if err := c.rpc.Call(ctx, "sui_getObject", []any{id, objectOptions}, &resp); err != nil {
		return types.PositionRecord{}, fmt.Errorf("get position %s: %w", id, err)
	}
	if resp.missing() {
		return types.PositionRecord{}, fmt.Errorf("%w: %s", types.ErrPositionNotFound, id)
	}
	pos, err := decodePosition(resp)
	if errors.Is(err, ErrUnexpectedType) {
		return types.PositionRecord{}, fmt.Errorf("%w: %s: %v", types.ErrPositionNotFound, id, err)
	}
	if err != nil {
		return types.PositionRecord{}, fmt.Errorf("decode position %s: %w", id, err)
	}
	return pos, nil
}

type ownedObjectsPage struct {
	Data        []objectResponse `json:"data"`
	NextCursor  *string          `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

// ListPositions returns the positions owner holds in poolID, each with its
// owed reward lines.
func (c *Client) ListPositions(ctx context.Context, owner, poolID string) ([]types.PositionRecord, error) {
	query := map[string]any{
		"filter":  map[string]string{"StructType": c.protocol.PackageID + "::position::Position"},
		"options": objectOptions,
	}

	var (
		positions []types.PositionRecord
		cursor    *string
	)
	for {
		var page ownedObjectsPage
		if err := c.rpc.Call(ctx, "suix_getOwnedObjects", []any{owner, query, cursor, ownedObjectsPageLimit}, &page); err != nil {
			return nil, fmt.Errorf("list positions of %s: %w", owner, err)
		}
		for _, obj := range page.Data {
			pos, err := decodePosition(obj)
			if err != nil {
				return nil, fmt.Errorf("decode owned position: %w", err)
			}
			if !address.Equal(pos.PoolID, poolID) {
				continue
			}
			if pos.Owner == "" {
				pos.Owner = owner
			}
			positions = append(positions, pos)
		}
		if !page.HasNextPage || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	if len(positions) == 0 {
		return positions, nil
	}

	pool, err := c.getPoolObject(ctx, poolID)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		rewards, err := c.readRewards(ctx, pool, positions[i].Owner, positions[i].PositionID)
		if err != nil {
			return nil, err
		}
		positions[i].Rewards = rewards
	}

	c.log.Debug().
		Str("owner", owner).
		Str("poolId", poolID).
		Int("positions", len(positions)).
		Msg("Fetched positions")

	return positions, nil
}

// PositionRewards returns the owed amount per rewarder coin type of a position.
func (c *Client) PositionRewards(ctx context.Context, poolID, positionID string) ([]types.RewardOwed, error) {
	pool, err := c.getPoolObject(ctx, poolID)
	if err != nil {
		return nil, err
	}
	var owner string
	if pos, err := c.GetPosition(ctx, positionID); err == nil {
		owner = pos.Owner
	}
	return c.readRewards(ctx, pool, owner, positionID)
}

// readRewards returns the owed rewards of a position. The stored amounts are
// read first; when the owner is known they are replaced by the live accrual,
// falling back to the stored figures if the node cannot simulate the read.
func (c *Client) readRewards(ctx context.Context, pool poolObject, owner, positionID string) ([]types.RewardOwed, error) {
	rewards, err := c.storedRewards(ctx, pool, positionID)
	if err != nil || len(rewards) == 0 || owner == "" {
		return rewards, err
	}

	live, err := c.liveRewards(ctx, pool, owner, positionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn().Err(err).Str("positionId", positionID).Msg("Live reward read failed, using stored amounts")
		return rewards, nil
	}
	for i := range rewards {
		if i < len(live) {
			rewards[i].AmountOwed = live[i]
		}
	}
	return rewards, nil
}

// storedRewards reads the position's entry in the pool's position table and
// pairs its reward slots with the pool's rewarder coin types by index. The
// stored amounts only move when the position is touched on chain.
func (c *Client) storedRewards(ctx context.Context, pool poolObject, positionID string) ([]types.RewardOwed, error) {
	if len(pool.RewarderCoinTypes) == 0 {
		return nil, nil
	}
	if pool.PositionTableID == "" {
		return nil, fmt.Errorf("%w: pool %s has no position table", types.ErrMalformedData, pool.Record.PoolAddress)
	}

	name := map[string]string{"type": "0x2::object::ID", "value": positionID}
	var resp objectResponse
	if err := c.rpc.Call(ctx, "suix_getDynamicFieldObject", []any{pool.PositionTableID, name}, &resp); err != nil {
		return nil, fmt.Errorf("read rewards of position %s: %w", positionID, err)
	}
	if resp.missing() {
		return nil, fmt.Errorf("%w: %s is not in pool %s", types.ErrPositionNotFound, positionID, pool.Record.PoolAddress)
	}

	var entry positionInfoEntry
	if err := resp.fields(&entry); err != nil {
		return nil, fmt.Errorf("decode rewards of position %s: %w", positionID, err)
	}
	slots := entry.Value.Fields.Value.Fields.Rewards

	rewards := make([]types.RewardOwed, len(pool.RewarderCoinTypes))
	for i, coinType := range pool.RewarderCoinTypes {
		amount := "0"
		if i < len(slots) {
			amount = string(slots[i].Fields.AmountOwned)
		}
		rewards[i] = types.RewardOwed{CoinType: coinType, AmountOwed: amount}
	}
	return rewards, nil
}

type builtTx struct {
	TxBytes string `json:"txBytes"`
}

type dryRunResult struct {
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	Events []struct {
		Type       string `json:"type"`
		ParsedJSON struct {
			Data       []moveValue `json:"data"`
			PositionID string      `json:"position_id"`
		} `json:"parsedJson"`
	} `json:"events"`
}

// liveRewards simulates fetcher_script::fetch_position_rewards as the owner.
// The call settles accrual up to now and emits the owed amounts per rewarder
// slot; nothing is signed or executed.
func (c *Client) liveRewards(ctx context.Context, pool poolObject, owner, positionID string) ([]string, error) {
	params := []any{
		owner,
		c.protocol.IntegratePackageID,
		fetcherModule,
		fetchPositionRewards,
		[]string{pool.Record.CoinTypeA, pool.Record.CoinTypeB},
		[]any{c.protocol.GlobalConfigID, address.Normalize(pool.Record.PoolAddress), positionID, ClockObjectID},
		nil,
		inspectGasBudget,
	}
	var tx builtTx
	if err := c.rpc.Call(ctx, "unsafe_moveCall", params, &tx); err != nil {
		return nil, fmt.Errorf("build reward read: %w", err)
	}

	var result dryRunResult
	if err := c.rpc.Call(ctx, "sui_dryRunTransactionBlock", []any{tx.TxBytes}, &result); err != nil {
		return nil, fmt.Errorf("simulate reward read: %w", err)
	}
	if result.Effects.Status.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrSimulationFailed, result.Effects.Status.Error)
	}

	for _, ev := range result.Events {
		if !strings.HasSuffix(ev.Type, "::"+fetcherModule+"::"+fetchPositionRewardsEvent) || !address.Equal(ev.ParsedJSON.PositionID, positionID) {
			continue
		}
		amounts := make([]string, len(ev.ParsedJSON.Data))
		for i, v := range ev.ParsedJSON.Data {
			amounts[i] = string(v)
		}
		return amounts, nil
	}
	return nil, fmt.Errorf("%w: no reward event for %s", ErrSimulationFailed, positionID)
}
