package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/actions"
	"github.com/poolboard/poolboard/internal/dashboard"
	"github.com/poolboard/poolboard/internal/metrics"
	"github.com/poolboard/poolboard/internal/positions"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/poolboard/poolboard/internal/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoard struct {
	state     dashboard.State
	refreshed [][]string
}

func (f *fakeBoard) Refresh(_ context.Context, ids []string) dashboard.State {
	f.refreshed = append(f.refreshed, ids)
	return f.state
}

func (f *fakeBoard) Snapshot() dashboard.State { return f.state }

func (f *fakeBoard) PoolIDs() []string {
	ids := make([]string, len(f.state.Pools))
	for i, p := range f.state.Pools {
		ids[i] = p.PoolAddress
	}
	return ids
}

type fakeTracker struct {
	conn    wallet.Connection
	poolIDs []string
	snap    positions.Snapshot
}

func (f *fakeTracker) Sync(_ context.Context, conn wallet.Connection, poolIDs []string) positions.Snapshot {
	f.conn, f.poolIDs = conn, poolIDs
	return f.snap
}

type fakeSession struct {
	conn wallet.Connection
}

func (f *fakeSession) Connection() wallet.Connection { return f.conn }

func (f *fakeSession) SignAndSubmit(context.Context, types.TxPayload) (types.TxReceipt, error) {
	return types.TxReceipt{}, errors.New("not used")
}

func (f *fakeSession) Connect(addr string) error {
	if addr == "" {
		return wallet.ErrAddressInvalid
	}
	f.conn = wallet.Connection{Connected: true, Address: addr}
	return nil
}

func (f *fakeSession) Disconnect() { f.conn = wallet.Connection{} }

type fakeActions struct {
	deposit  *actions.DepositRequest
	swap     *actions.SwapRequest
	position string
	err      error
}

func (f *fakeActions) result(kind types.ActionKind, target string) (types.ActionResult, error) {
	if f.err != nil {
		return types.ActionResult{}, &types.ActionError{ActionID: "act-1", Kind: kind, Phase: types.PhaseSubmit, Target: target, Err: f.err}
	}
	return types.ActionResult{ActionID: "act-1", Kind: kind, Target: target, Digest: "0xdigest"}, nil
}

func (f *fakeActions) Deposit(_ context.Context, req actions.DepositRequest) (types.ActionResult, error) {
	f.deposit = &req
	return f.result(types.ActionDeposit, req.PoolID)
}

func (f *fakeActions) Withdraw(_ context.Context, id string) (types.ActionResult, error) {
	f.position = id
	return f.result(types.ActionWithdraw, id)
}

func (f *fakeActions) CollectRewards(_ context.Context, id string) (types.ActionResult, error) {
	f.position = id
	return f.result(types.ActionCollectRewards, id)
}

func (f *fakeActions) Swap(_ context.Context, req actions.SwapRequest) (types.ActionResult, error) {
	f.swap = &req
	return f.result(types.ActionSwap, req.From+"->"+req.To)
}

type harness struct {
	board   *fakeBoard
	tracker *fakeTracker
	session *fakeSession
	actions *fakeActions
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.SetPoolView(2, 1)

	h := &harness{
		board: &fakeBoard{state: dashboard.State{
			Pools: []types.UnifiedPoolView{
				{PoolAddress: "0xAAA", Key: "0xaaa", SymbolA: "SUI", SymbolB: "USDC", HasStats: true},
				{PoolAddress: "0xbbb", Key: "0xbbb"},
			},
			UpdatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		}},
		tracker: &fakeTracker{snap: positions.Snapshot{Owner: "0xowner", Positions: types.PositionsMap{}}},
		session: &fakeSession{},
		actions: &fakeActions{},
	}
	ws := NewWebServer("0", Deps{Board: h.board, Tracker: h.tracker, Session: h.session, Actions: h.actions, Gatherer: reg})
	h.server = httptest.NewServer(ws.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func (h *harness) post(t *testing.T, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(h.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestPoolsEndpoints(t *testing.T) {
	t.Run("FetchCycle", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.get(t, "/api/pools")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["loading"])
		assert.Len(t, body["pools"], 2)
		require.Len(t, h.board.refreshed, 1)
		assert.Empty(t, h.board.refreshed[0])
	})

	t.Run("FilteredByIDs", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.get(t, "/api/pools?ids=0xaaa,%20,0xbbb")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"0xaaa", "0xbbb"}, h.board.refreshed[0])
	})

	t.Run("FetchFailure", func(t *testing.T) {
		h := newHarness(t)
		err := types.NewNetworkError("suix_queryEvents", "", errors.New("connection refused"))
		h.board.state = dashboard.State{Error: err.Error(), Err: err, Pools: []types.UnifiedPoolView{}}

		resp, body := h.get(t, "/api/pools")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Contains(t, body["error"], "connection refused")
		assert.Empty(t, body["pools"])
	})

	t.Run("Latest", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.get(t, "/api/pools/latest")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, body["pools"], 2)
		assert.Empty(t, h.board.refreshed)
	})
}

func TestPositionsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.session.conn = wallet.Connection{Connected: true, Address: "0xowner"}

	resp, body := h.get(t, "/api/positions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0xowner", body["owner"])
	assert.Equal(t, []string{"0xAAA", "0xbbb"}, h.tracker.poolIDs)
	assert.True(t, h.tracker.conn.Connected)
}

func TestWalletEndpoints(t *testing.T) {
	h := newHarness(t)

	resp, body := h.post(t, "/api/wallet/connect", `{"address":"0xowner"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "0xowner", body["address"])

	resp, _ = h.post(t, "/api/wallet/connect", `{"address":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.post(t, "/api/wallet/disconnect", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["connected"])
}

func TestActionEndpoints(t *testing.T) {
	t.Run("Deposit", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.post(t, "/api/actions/deposit", `{"pool_id":"0xaaa","amount_a":"1000","amount_b":""}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "0xdigest", body["digest"])
		assert.Equal(t, "DEPOSIT", body["kind"])
		require.NotNil(t, h.actions.deposit)
		assert.True(t, h.actions.deposit.AmountA.Equal(sdkmath.NewInt(1000)))
		assert.True(t, h.actions.deposit.AmountB.IsZero())
	})

	t.Run("DepositBadAmount", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.post(t, "/api/actions/deposit", `{"pool_id":"0xaaa","amount_a":"1.5"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Nil(t, h.actions.deposit)
	})

	t.Run("WithdrawAndCollect", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.post(t, "/api/actions/withdraw", `{"position_id":"0xp1"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "WITHDRAW", body["kind"])

		resp, body = h.post(t, "/api/actions/collect", `{"position_id":"0xp2"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "COLLECT_REWARDS", body["kind"])
		assert.Equal(t, "0xp2", h.actions.position)
	})

	t.Run("MissingPositionID", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.post(t, "/api/actions/withdraw", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownField", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.post(t, "/api/actions/swap", `{"amount":"5"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Nil(t, h.actions.swap)
	})

	t.Run("Swap", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.post(t, "/api/actions/swap", `{"amount_in":"500","from":"0x2::sui::SUI","to":"0x3::usdc::USDC"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "0x2::sui::SUI->0x3::usdc::USDC", body["target"])
		assert.True(t, h.actions.swap.AmountIn.Equal(sdkmath.NewInt(500)))
	})
}

func TestActionErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"PoolNotFound", types.ErrPoolNotFound, http.StatusNotFound},
		{"PositionNotFound", fmt.Errorf("%w: 0xp1", types.ErrPositionNotFound), http.StatusNotFound},
		{"NoRoute", types.ErrNoRouteFound, http.StatusUnprocessableEntity},
		{"NothingToCollect", types.ErrNothingToCollect, http.StatusUnprocessableEntity},
		{"Rejected", types.ErrWalletRejected, http.StatusConflict},
		{"Disconnected", types.ErrWalletDisconnected, http.StatusUnauthorized},
		{"InvalidAmount", types.ErrInvalidAmount, http.StatusBadRequest},
		{"InFlight", types.ErrActionInFlight, http.StatusTooManyRequests},
		{"Network", types.NewNetworkError("sign-and-execute", "", errors.New("eof")), http.StatusBadGateway},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.actions.err = tc.err

			resp, body := h.post(t, "/api/actions/withdraw", `{"position_id":"0xp1"}`)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, true, body["error"])
			assert.Equal(t, "act-1", body["action_id"])
			assert.Equal(t, "SUBMIT", body["phase"])
			if tc.status == http.StatusConflict {
				assert.Equal(t, true, body["cancelled"])
			} else {
				assert.NotContains(t, body, "cancelled")
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])

	degraded := newHarness(t)
	degraded.board.state.Err = types.ErrNetwork
	resp, body = degraded.get(t, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "DEGRADED", body["status"])

	mresp, err := http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "poolboard_pools_in_view 2")
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.server.URL+"/api/actions/swap", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Nil(t, h.actions.swap)
}
