package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/config"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProtocol = config.Protocol{
	PackageID:          "0x1eab",
	IntegratePackageID: "0x996c",
	GlobalConfigID:     "0xdaa4",
	RewarderVaultID:    "0xce7b",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, testProtocol, 0)
}

func TestFindRoutes(t *testing.T) {
	t.Run("DecodesRoutes", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, FIND_ROUTES_ROUTE, r.URL.Path)
			assert.Equal(t, "0x2::sui::SUI", r.URL.Query().Get("from"))
			assert.Equal(t, "0x3::usdc::USDC", r.URL.Query().Get("target"))
			assert.Equal(t, "1000", r.URL.Query().Get("amount"))
			assert.Equal(t, "true", r.URL.Query().Get("by_amount_in"))
			w.Write([]byte(`{"code":200,"msg":"Success","data":{"routes":[
				{"amount_in":"1000","amount_out":"1950","path":[
					{"id":"0xAA","provider":"CETUS","from":"0x2::sui::SUI","target":"0x3::usdc::USDC","direction":true,"fee_rate":"2500","amount_in":"1000","amount_out":1950}
				]},
				{"amount_in":"1000","amount_out":"oops","path":[{"id":"0xbb"}]}
			]}}`))
		})

		routes, err := c.FindRoutes(context.Background(), "0x2::sui::SUI", "0x3::usdc::USDC", sdkmath.NewInt(1000))
		require.NoError(t, err)
		require.Len(t, routes, 1)

		route := routes[0]
		assert.True(t, route.AmountOut.Equal(sdkmath.NewInt(1950)))
		require.Len(t, route.Hops, 1)
		assert.Equal(t, "0xAA", route.Hops[0].PoolID)
		assert.True(t, route.Hops[0].AToB)
		assert.Equal(t, uint64(2500), route.Hops[0].FeeRate)
		assert.True(t, route.Hops[0].AmountOut.Equal(sdkmath.NewInt(1950)))
	})

	t.Run("NoRouteCode", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":10001,"msg":"no router"}`))
		})
		routes, err := c.FindRoutes(context.Background(), "a", "b", sdkmath.NewInt(1))
		require.NoError(t, err)
		assert.Empty(t, routes)
	})

	t.Run("EmptyRouteList", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":200,"data":{"routes":[]}}`))
		})
		routes, err := c.FindRoutes(context.Background(), "a", "b", sdkmath.NewInt(1))
		require.NoError(t, err)
		assert.Empty(t, routes)
	})

	t.Run("ServerError", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := c.FindRoutes(context.Background(), "a", "b", sdkmath.NewInt(1))
		assert.ErrorIs(t, err, types.ErrNetwork)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		called := false
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
		_, err := c.FindRoutes(context.Background(), "a", "b", sdkmath.ZeroInt())
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
		assert.False(t, called)
	})
}

func TestBestRoute(t *testing.T) {
	_, ok := BestRoute(nil)
	assert.False(t, ok)

	best, ok := BestRoute([]types.Route{
		{AmountOut: sdkmath.NewInt(10)},
		{AmountOut: sdkmath.NewInt(30)},
		{AmountOut: sdkmath.NewInt(20)},
	})
	require.True(t, ok)
	assert.True(t, best.AmountOut.Equal(sdkmath.NewInt(30)))
}

func TestMinAmountOut(t *testing.T) {
	slippage := sdkmath.LegacyMustNewDecFromStr("0.01")
	assert.Equal(t, "1980", MinAmountOut(sdkmath.NewInt(2000), slippage).String())
	assert.Equal(t, "98", MinAmountOut(sdkmath.NewInt(99), slippage).String())
	assert.Equal(t, "1", MinAmountOut(sdkmath.NewInt(1), slippage).String())
	assert.Equal(t, "1", MinAmountOut(sdkmath.ZeroInt(), slippage).String())
}

func TestBuildSwap(t *testing.T) {
	c := NewClient("http://unused", testProtocol, 0)
	route := types.Route{
		AmountIn:  sdkmath.NewInt(1000),
		AmountOut: sdkmath.NewInt(500),
		Hops: []types.RouteHop{
			{PoolID: "0xAA", Provider: "CETUS", From: "0x2::sui::SUI", Target: "0x3::usdc::USDC", AToB: true,
				AmountIn: sdkmath.NewInt(1000), AmountOut: sdkmath.NewInt(2000)},
			{PoolID: "0xbb", Provider: "CETUS", From: "0x3::usdc::USDC", Target: "0x4::eth::ETH", AToB: false,
				AmountIn: sdkmath.NewInt(2000), AmountOut: sdkmath.NewInt(500)},
		},
	}

	payload, err := c.BuildSwap(route, sdkmath.LegacyMustNewDecFromStr("0.01"))
	require.NoError(t, err)

	assert.Equal(t, types.ActionSwap, payload.Kind)
	assert.True(t, payload.RefreshCoins)
	require.Len(t, payload.Calls, 5)

	assert.Equal(t, "0x2::coin::zero", payload.Calls[0].Target)
	assert.Equal(t, []string{"0x3::usdc::USDC"}, payload.Calls[0].TypeArguments)

	first := payload.Calls[1]
	assert.Equal(t, "0x996c::router::swap", first.Target)
	assert.Equal(t, []string{"0x2::sui::SUI", "0x3::usdc::USDC"}, first.TypeArguments)
	assert.Equal(t, types.ObjectArg("0xaa"), first.Arguments[1])
	assert.Equal(t, types.CoinArg("0x2::sui::SUI", sdkmath.NewInt(1000)), first.Arguments[2])
	assert.Equal(t, types.ResultArg(0, 0), first.Arguments[3])
	assert.Equal(t, types.PureArg(true), first.Arguments[4])

	second := payload.Calls[3]
	assert.Equal(t, "0x996c::router::swap", second.Target)
	assert.Equal(t, []string{"0x4::eth::ETH", "0x3::usdc::USDC"}, second.TypeArguments)
	assert.Equal(t, types.ResultArg(2, 0), second.Arguments[2])
	// The intermediate USDC is the first swap's output, not a wallet coin.
	assert.Equal(t, types.ResultArg(1, 1), second.Arguments[3])
	assert.Equal(t, types.PureArg(false), second.Arguments[4])
	for _, call := range payload.Calls[2:] {
		for _, arg := range call.Arguments {
			assert.Nil(t, arg.Coin, "only the route input is drawn from the wallet")
		}
	}

	check := payload.Calls[4]
	assert.Equal(t, "0x996c::router::check_coin_threshold", check.Target)
	assert.Equal(t, []string{"0x4::eth::ETH"}, check.TypeArguments)
	assert.Equal(t, []types.CallArg{types.ResultArg(3, 0), types.PureArg("495")}, check.Arguments)

	assert.Equal(t, []types.ResultRef{{Call: 1, Index: 0}, {Call: 3, Index: 1}, {Call: 3, Index: 0}}, payload.TransferToSender)

	t.Run("SingleHop", func(t *testing.T) {
		single := types.Route{
			AmountIn:  sdkmath.NewInt(1000),
			AmountOut: sdkmath.NewInt(2000),
			Hops:      route.Hops[:1],
		}
		payload, err := c.BuildSwap(single, sdkmath.LegacyMustNewDecFromStr("0.01"))
		require.NoError(t, err)
		require.Len(t, payload.Calls, 3)
		assert.Equal(t, types.PureArg("1980"), payload.Calls[2].Arguments[1])
		assert.Equal(t, []types.ResultRef{{Call: 1, Index: 0}, {Call: 1, Index: 1}}, payload.TransferToSender)
	})

	t.Run("RejectsDiscontinuousRoute", func(t *testing.T) {
		broken := route
		broken.Hops = []types.RouteHop{route.Hops[0], route.Hops[1]}
		broken.Hops[1].From = "0x5::cetus::CETUS"
		_, err := c.BuildSwap(broken, sdkmath.LegacyMustNewDecFromStr("0.01"))
		assert.ErrorIs(t, err, ErrRouteDiscontinuous)
	})

	t.Run("RejectsOtherProviders", func(t *testing.T) {
		other := route
		other.Hops = []types.RouteHop{{Provider: "DEEPBOOK", AmountIn: sdkmath.NewInt(1)}}
		_, err := c.BuildSwap(other, sdkmath.LegacyMustNewDecFromStr("0.01"))
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("RejectsBadSlippage", func(t *testing.T) {
		_, err := c.BuildSwap(route, sdkmath.LegacyOneDec())
		assert.ErrorIs(t, err, ErrInvalidSlippage)
	})
}
