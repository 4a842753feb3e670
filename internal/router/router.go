/*

Package router talks to the swap routing aggregator. FindRoutes asks it for
exact-input routes; BuildSwap turns a chosen route into a transaction payload
that swaps hop by hop through the protocol's pools.

*/

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/clmm"
	"github.com/poolboard/poolboard/internal/config"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
)

const (
	FIND_ROUTES_ROUTE = "/find_routes"
	// Provider is the only liquidity source BuildSwap can route through.
	Provider = "CETUS"

	codeSuccess = 200
	codeNoRoute = 10001
)

// Price limits passed to pool swaps so that the amount limit alone bounds them.
const (
	minSqrtPrice = "4295048016"
	maxSqrtPrice = "79226673515401279992447579055"
)

// Move functions a swap payload calls.
const (
	coinZeroTarget       = "0x2::coin::zero"
	routerSwapFunction   = "::router::swap"
	routerCheckThreshold = "::router::check_coin_threshold"
)

var (
	ErrUnsupportedProvider = errors.New("route uses an unsupported provider")
	ErrInvalidSlippage     = errors.New("slippage must be in [0, 1)")
	ErrRouteDiscontinuous  = errors.New("route hop does not start from the previous hop's output")
)

// Router is the routing subsystem.
type Router interface {
	FindRoutes(ctx context.Context, from, to string, amountIn sdkmath.Int) ([]types.Route, error)
	BuildSwap(route types.Route, slippage sdkmath.LegacyDec) (types.TxPayload, error)
}

// Client is the HTTP client of the aggregator.
type Client struct {
	baseURL    string
	protocol   config.Protocol
	httpClient *http.Client
	log        zerolog.Logger
}

var _ Router = (*Client)(nil)

func NewClient(baseURL string, protocol config.Protocol, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		protocol:   protocol,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetForComponent("router_client"),
	}
}

// amount decodes an integer the aggregator renders as a string or a number.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amount(n.String())
	return nil
}

func (a amount) Int() (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(string(a))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %q is not an integer amount", types.ErrMalformedData, string(a))
	}
	return v, nil
}

type hopResponse struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	From      string `json:"from"`
	Target    string `json:"target"`
	Direction bool   `json:"direction"`
	FeeRate   amount `json:"fee_rate"`
	AmountIn  amount `json:"amount_in"`
	AmountOut amount `json:"amount_out"`
}

type routeResponse struct {
	Path      []hopResponse `json:"path"`
	AmountIn  amount        `json:"amount_in"`
	AmountOut amount        `json:"amount_out"`
}

type findRoutesResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Routes []routeResponse `json:"routes"`
	} `json:"data"`
}

// FindRoutes returns exact-input routes from one coin type to another. An
// empty slice means the aggregator found no path.
func (c *Client) FindRoutes(ctx context.Context, from, to string, amountIn sdkmath.Int) ([]types.Route, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return nil, fmt.Errorf("%w: swap input must be positive", types.ErrInvalidAmount)
	}

	q := url.Values{}
	q.Set("from", from)
	q.Set("target", to)
	q.Set("amount", amountIn.String())
	q.Set("by_amount_in", "true")
	q.Set("providers", Provider)
	endpoint := c.baseURL + FIND_ROUTES_ROUTE + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create route request: %w", err)
	}

	c.log.Debug().Str("from", from).Str("to", to).Str("amountIn", amountIn.String()).Msg("Requesting swap routes")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("url", endpoint).Msg("Route request failed")
		return nil, types.NewNetworkError("find_routes", from+"->"+to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewNetworkError("find_routes", from+"->"+to, fmt.Errorf("unexpected status: %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewNetworkError("find_routes", from+"->"+to, err)
	}

	var parsed findRoutesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Join(types.ErrMalformedData, fmt.Errorf("failed to parse route response: %w", err))
	}

	switch {
	case parsed.Code == codeNoRoute:
		return []types.Route{}, nil
	case parsed.Code != codeSuccess && parsed.Code != 0:
		return nil, types.NewNetworkError("find_routes", from+"->"+to, fmt.Errorf("aggregator error %d: %s", parsed.Code, parsed.Msg))
	case parsed.Data == nil:
		return []types.Route{}, nil
	}

	routes := make([]types.Route, 0, len(parsed.Data.Routes))
	for i, r := range parsed.Data.Routes {
		route, err := toRoute(r)
		if err != nil {
			c.log.Warn().Err(err).Int("routeIndex", i).Msg("Skipping undecodable route")
			continue
		}
		routes = append(routes, route)
	}

	c.log.Info().Str("from", from).Str("to", to).Int("routes", len(routes)).Msg("Received swap routes")
	return routes, nil
}

func toRoute(r routeResponse) (types.Route, error) {
	if len(r.Path) == 0 {
		return types.Route{}, fmt.Errorf("%w: route has no hops", types.ErrMalformedData)
	}
	var (
		route types.Route
		err   error
	)
	if route.AmountIn, err = r.AmountIn.Int(); err != nil {
		return types.Route{}, err
	}
	if route.AmountOut, err = r.AmountOut.Int(); err != nil {
		return types.Route{}, err
	}
	for _, h := range r.Path {
		hop := types.RouteHop{
			PoolID:   h.ID,
			Provider: h.Provider,
			From:     h.From,
			Target:   h.Target,
			AToB:     h.Direction,
		}
		if fee, err := h.FeeRate.Int(); err == nil {
			hop.FeeRate = fee.Uint64()
		}
		if hop.AmountIn, err = h.AmountIn.Int(); err != nil {
			return types.Route{}, err
		}
		if hop.AmountOut, err = h.AmountOut.Int(); err != nil {
			return types.Route{}, err
		}
		route.Hops = append(route.Hops, hop)
	}
	return route, nil
}

// BestRoute returns the route with the largest output. ok is false for an
// empty list.
func BestRoute(routes []types.Route) (best types.Route, ok bool) {
	for _, r := range routes {
		if !ok || r.AmountOut.GT(best.AmountOut) {
			best, ok = r, true
		}
	}
	return best, ok
}

// MinAmountOut applies slippage to an expected output: out * (1 - slippage),
// truncated, and never below 1.
func MinAmountOut(out sdkmath.Int, slippage sdkmath.LegacyDec) sdkmath.Int {
	bounded := sdkmath.LegacyNewDecFromInt(out).Mul(sdkmath.LegacyOneDec().Sub(slippage)).TruncateInt()
	if bounded.LT(sdkmath.OneInt()) {
		return sdkmath.OneInt()
	}
	return bounded
}

// BuildSwap builds a payload that swaps through every hop of route in order.
// Each hop after the first spends the coin the previous hop produced, so only
// the route input is drawn from the wallet. The final output is checked
// against the slippage-bounded minimum once, which bounds the whole route
// because the calls execute atomically. Every coin left over is sent back to
// the sender. The signer is told to refresh owned coin objects first.
func (c *Client) BuildSwap(route types.Route, slippage sdkmath.LegacyDec) (types.TxPayload, error) {
	if slippage.IsNil() || slippage.IsNegative() || slippage.GTE(sdkmath.LegacyOneDec()) {
		return types.TxPayload{}, ErrInvalidSlippage
	}
	if len(route.Hops) == 0 {
		return types.TxPayload{}, types.ErrNoRouteFound
	}

	minOut := MinAmountOut(route.AmountOut, slippage)
	var (
		calls    []types.MoveCall
		transfer []types.ResultRef
		output   types.ResultRef
	)
	for i, hop := range route.Hops {
		if hop.Provider != "" && hop.Provider != Provider {
			return types.TxPayload{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, hop.Provider)
		}

		input := types.CoinArg(hop.From, hop.AmountIn)
		if i > 0 {
			if prev := route.Hops[i-1]; prev.Target != hop.From {
				return types.TxPayload{}, fmt.Errorf("%w: hop %d takes %s, previous hop yields %s", ErrRouteDiscontinuous, i, hop.From, prev.Target)
			}
			input = types.CallArg{Result: &types.ResultRef{Call: output.Call, Index: output.Index}}
		}

		// router::swap takes and returns both sides of the pool; the side
		// that is not spent starts as a zero coin.
		zeroCall := len(calls)
		calls = append(calls, types.MoveCall{
			Target:        coinZeroTarget,
			TypeArguments: []string{hop.Target},
		})
		zero := types.ResultArg(zeroCall, 0)

		// Pool type arguments are always <A, B>; direction says which side is input.
		typeArgs, coinA, coinB, sqrtLimit := []string{hop.Target, hop.From}, zero, input, maxSqrtPrice
		inIdx, outIdx := 1, 0
		if hop.AToB {
			typeArgs, coinA, coinB, sqrtLimit = []string{hop.From, hop.Target}, input, zero, minSqrtPrice
			inIdx, outIdx = 0, 1
		}

		swapCall := len(calls)
		calls = append(calls, types.MoveCall{
			Target:        c.protocol.IntegratePackageID + routerSwapFunction,
			TypeArguments: typeArgs,
			Arguments: []types.CallArg{
				types.ObjectArg(c.protocol.GlobalConfigID),
				types.ObjectArg(address.Normalize(hop.PoolID)),
				coinA,
				coinB,
				types.PureArg(hop.AToB),
				types.PureArg(true), // by amount in
				types.PureArg(hop.AmountIn.String()),
				types.PureArg(sqrtLimit),
				types.PureArg(true), // spend the whole input coin
				types.ObjectArg(clmm.ClockObjectID),
			},
		})
		transfer = append(transfer, types.ResultRef{Call: swapCall, Index: inIdx})
		output = types.ResultRef{Call: swapCall, Index: outIdx}
	}

	last := route.Hops[len(route.Hops)-1]
	calls = append(calls, types.MoveCall{
		Target:        c.protocol.IntegratePackageID + routerCheckThreshold,
		TypeArguments: []string{last.Target},
		Arguments: []types.CallArg{
			types.ResultArg(output.Call, output.Index),
			types.PureArg(minOut.String()),
		},
	})
	transfer = append(transfer, output)

	c.log.Debug().
		Int("hops", len(route.Hops)).
		Int("calls", len(calls)).
		Str("amountIn", route.AmountIn.String()).
		Str("minAmountOut", minOut.String()).
		Msg("Built swap payload")

	return types.TxPayload{
		Kind:             types.ActionSwap,
		Calls:            calls,
		RefreshCoins:     true,
		TransferToSender: transfer,
	}, nil
}
