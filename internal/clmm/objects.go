package clmm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/types"
)

var (
	ErrUnexpectedType = errors.New("object has unexpected type")
	ErrMissingFields  = errors.New("object content is missing")
)

// objectOptions are the display options every object read asks for.
var objectOptions = map[string]bool{
	"showType":    true,
	"showContent": true,
	"showOwner":   true,
}

// moveValue decodes a Move integer that the node renders either as a JSON
// string (u64, u128) or as a JSON number (u8..u32).
type moveValue string

func (m *moveValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = moveValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = moveValue(n.String())
	return nil
}

func (m moveValue) Uint64() (uint64, error) {
	return strconv.ParseUint(string(m), 10, 64)
}

func (m moveValue) Int() (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(string(m))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%q is not an integer", string(m))
	}
	return v, nil
}

type objectResponse struct {
	Data  *objectData  `json:"data"`
	Error *objectError `json:"error"`
}

type objectError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id"`
}

type objectData struct {
	ObjectID string          `json:"objectId"`
	Type     string          `json:"type"`
	Owner    json.RawMessage `json:"owner"`
	Content  *struct {
		DataType string          `json:"dataType"`
		Type     string          `json:"type"`
		Fields   json.RawMessage `json:"fields"`
	} `json:"content"`
}

// wrapped is the {type, fields} envelope the node puts around nested structs.
type wrapped[T any] struct {
	Type   string `json:"type"`
	Fields T      `json:"fields"`
}

type uid struct {
	ID string `json:"id"`
}

type typeName struct {
	Name string `json:"name"`
}

type rewarderFields struct {
	RewardCoin wrapped[typeName] `json:"reward_coin"`
}

type poolFields struct {
	FeeRate         moveValue `json:"fee_rate"`
	TickSpacing     moveValue `json:"tick_spacing"`
	PositionManager wrapped[struct {
		Positions wrapped[struct {
			ID uid `json:"id"`
		}] `json:"positions"`
	}] `json:"position_manager"`
	RewarderManager wrapped[struct {
		Rewarders []wrapped[rewarderFields] `json:"rewarders"`
	}] `json:"rewarder_manager"`
}

type positionFields struct {
	Pool      string    `json:"pool"`
	Liquidity moveValue `json:"liquidity"`
}

type rewardInfo struct {
	AmountOwned moveValue `json:"amount_owned"`
}

// positionInfoEntry is the dynamic field holding a position's entry in the
// pool's position table: Field<ID, Node<ID, PositionInfo>>.
type positionInfoEntry struct {
	Value wrapped[struct {
		Value wrapped[struct {
			Rewards []wrapped[rewardInfo] `json:"rewards"`
		}] `json:"value"`
	}] `json:"value"`
}

// poolObject is a decoded pool plus what reward reads need.
type poolObject struct {
	Record            types.PoolRecord
	PositionTableID   string
	RewarderCoinTypes []string
}

// missing reports whether the node answered that the object does not exist.
func (r objectResponse) missing() bool {
	return r.Data == nil && r.Error != nil && (r.Error.Code == "notExists" || r.Error.Code == "deleted")
}

func (r objectResponse) fields(into any) error {
	if r.Data == nil || r.Data.Content == nil || len(r.Data.Content.Fields) == 0 {
		return ErrMissingFields
	}
	if err := json.Unmarshal(r.Data.Content.Fields, into); err != nil {
		return errors.Join(types.ErrMalformedData, err)
	}
	return nil
}

func (r objectResponse) objectType() string {
	if r.Data == nil {
		return ""
	}
	if r.Data.Type != "" {
		return r.Data.Type
	}
	if r.Data.Content != nil {
		return r.Data.Content.Type
	}
	return ""
}

func decodePool(r objectResponse) (poolObject, error) {
	t := r.objectType()
	if !strings.Contains(t, "::pool::Pool<") {
		return poolObject{}, fmt.Errorf("%w: %q is not a pool", ErrUnexpectedType, t)
	}
	args := typeArguments(t)
	if len(args) != 2 {
		return poolObject{}, fmt.Errorf("%w: pool type %q has %d type arguments", types.ErrMalformedData, t, len(args))
	}

	var f poolFields
	if err := r.fields(&f); err != nil {
		return poolObject{}, err
	}
	fee, err := f.FeeRate.Uint64()
	if err != nil {
		return poolObject{}, fmt.Errorf("%w: fee_rate: %v", types.ErrMalformedData, err)
	}
	spacing, err := f.TickSpacing.Uint64()
	if err != nil {
		return poolObject{}, fmt.Errorf("%w: tick_spacing: %v", types.ErrMalformedData, err)
	}

	obj := poolObject{
		Record: types.PoolRecord{
			PoolAddress: r.Data.ObjectID,
			CoinTypeA:   args[0],
			CoinTypeB:   args[1],
			FeeRate:     fee,
			TickSpacing: uint32(spacing),
		},
		PositionTableID: f.PositionManager.Fields.Positions.Fields.ID.ID,
	}
	for _, rw := range f.RewarderManager.Fields.Rewarders {
		obj.RewarderCoinTypes = append(obj.RewarderCoinTypes, normalizeCoinType(rw.Fields.RewardCoin.Fields.Name))
	}
	return obj, nil
}

func decodePosition(r objectResponse) (types.PositionRecord, error) {
	t := r.objectType()
	if !strings.HasSuffix(t, "::position::Position") {
		return types.PositionRecord{}, fmt.Errorf("%w: %q is not a position", ErrUnexpectedType, t)
	}
	var f positionFields
	if err := r.fields(&f); err != nil {
		return types.PositionRecord{}, err
	}
	liq, err := f.Liquidity.Int()
	if err != nil {
		return types.PositionRecord{}, fmt.Errorf("%w: liquidity: %v", types.ErrMalformedData, err)
	}
	return types.PositionRecord{
		PositionID: r.Data.ObjectID,
		Owner:      ownerAddress(r.Data.Owner),
		PoolID:     f.Pool,
		Liquidity:  liq,
	}, nil
}

// ownerAddress returns the address of an AddressOwner owner, or "" for
// shared, immutable and object-owned objects.
func ownerAddress(raw json.RawMessage) string {
	var o struct {
		AddressOwner string `json:"AddressOwner"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &o) != nil {
		return ""
	}
	return o.AddressOwner
}

// typeArguments returns the top-level generic arguments of a Move struct type:
// "0x1::pool::Pool<0x2::sui::SUI, 0x3::c::C>" yields both coin types.
func typeArguments(t string) []string {
	open := strings.IndexByte(t, '<')
	if open < 0 || !strings.HasSuffix(t, ">") {
		return nil
	}
	inner := t[open+1 : len(t)-1]

	var (
		args  []string
		depth int
		start int
	)
	for i, c := range inner {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	return append(args, strings.TrimSpace(inner[start:]))
}

// normalizeCoinType gives a TypeName the same address form as object types.
// TypeName strings carry the address without its 0x prefix.
func normalizeCoinType(t string) string {
	addr, rest, ok := strings.Cut(t, "::")
	if !ok {
		return t
	}
	return address.Normalize(addr) + "::" + rest
}
