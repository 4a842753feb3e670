/*

This file contains the types that flow through the action dispatcher: the
unsigned transaction payload handed to the wallet, swap routes, and the
lifecycle record of an in-flight action.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ActionKind defines the user-initiated mutations the dispatcher runs.
type ActionKind string

const (
	ActionDeposit        ActionKind = "DEPOSIT"
	ActionWithdraw       ActionKind = "WITHDRAW"
	ActionCollectRewards ActionKind = "COLLECT_REWARDS"
	ActionSwap           ActionKind = "SWAP"
)

// ActionPhase is the step an action is in. Phases only move forward.
type ActionPhase string

const (
	PhaseResolve ActionPhase = "RESOLVE" // read authoritative pool/position state
	PhaseBuild   ActionPhase = "BUILD"   // construct the unsigned payload
	PhaseSubmit  ActionPhase = "SUBMIT"  // wallet signs and broadcasts
	PhaseDone    ActionPhase = "DONE"
	PhaseFailed  ActionPhase = "FAILED"
)

// CoinInput asks the signer to source a coin of the given type and amount
// from the wallet's owned coin objects.
type CoinInput struct {
	CoinType string      `json:"coin_type"`
	Amount   sdkmath.Int `json:"amount"`
}

// CallArg is one argument of a Move call. Exactly one field is set.
type CallArg struct {
	Object string     `json:"object,omitempty"` // shared or owned object id
	Pure   any        `json:"pure,omitempty"`   // scalar, serialized by the signer
	Coin   *CoinInput `json:"coin,omitempty"`
	Result *ResultRef `json:"result,omitempty"` // output of an earlier call
}

// ResultRef names output Index of Calls[Call] in the same payload.
type ResultRef struct {
	Call  int `json:"call"`
	Index int `json:"index"`
}

func ResultArg(call, index int) CallArg {
	return CallArg{Result: &ResultRef{Call: call, Index: index}}
}

func ObjectArg(id string) CallArg { return CallArg{Object: id} }

func PureArg(v any) CallArg { return CallArg{Pure: v} }

func CoinArg(coinType string, amount sdkmath.Int) CallArg {
	return CallArg{Coin: &CoinInput{CoinType: coinType, Amount: amount}}
}

// MoveCall is a single entry-function call inside a transaction.
type MoveCall struct {
	Target        string    `json:"target"` // package::module::function
	TypeArguments []string  `json:"type_arguments"`
	Arguments     []CallArg `json:"arguments"`
}

// TxPayload is an unsigned transaction: an ordered list of Move calls that
// execute atomically once the wallet signs.
type TxPayload struct {
	Kind  ActionKind `json:"kind"`
	Calls []MoveCall `json:"calls"`
	// RefreshCoins makes the signer re-read owned coin objects before choosing
	// inputs; earlier transactions may have split or merged them.
	RefreshCoins bool `json:"refresh_coins,omitempty"`
	// TransferToSender lists call outputs the signer sends back to the sender
	// after the last call. Coins returned by non-entry calls must end up there.
	TransferToSender []ResultRef `json:"transfer_to_sender,omitempty"`
}

// TxReceipt is what the wallet returns for a broadcast transaction.
type TxReceipt struct {
	Digest string `json:"digest"`
	Status string `json:"status,omitempty"`
}

// RouteHop is one pool traversal in a swap route.
type RouteHop struct {
	PoolID    string      `json:"pool_id"`
	Provider  string      `json:"provider"`
	From      string      `json:"from"`
	Target    string      `json:"target"`
	AToB      bool        `json:"a_to_b"`
	FeeRate   uint64      `json:"fee_rate"`
	AmountIn  sdkmath.Int `json:"amount_in"`
	AmountOut sdkmath.Int `json:"amount_out"`
}

// Route is a path between two coin types as chosen by the router.
type Route struct {
	Hops      []RouteHop  `json:"hops"`
	AmountIn  sdkmath.Int `json:"amount_in"`
	AmountOut sdkmath.Int `json:"amount_out"`
}

// PendingAction is an in-flight user action. It lives only for the duration
// of one dispatcher call.
type PendingAction struct {
	ID        string      `json:"id"`
	Kind      ActionKind  `json:"kind"`
	Target    string      `json:"target"` // pool id, position id, or "from->to" for swaps
	Phase     ActionPhase `json:"phase"`
	StartedAt time.Time   `json:"started_at"`
}

// ActionResult is returned for a successfully submitted action.
type ActionResult struct {
	ActionID string     `json:"action_id"`
	Kind     ActionKind `json:"kind"`
	Target   string     `json:"target"`
	Digest   string     `json:"digest"`
}
