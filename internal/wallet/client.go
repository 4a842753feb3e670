package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
)

const (
	SIGN_AND_EXECUTE_ROUTE = "/sign-and-execute"
	codeUserRejected       = "USER_REJECTED"
)

var (
	ErrAddressInvalid     = errors.New("address is invalid")
	ErrPayloadInvalid     = errors.New("transaction payload is invalid")
	ErrTxSubmitFailed     = errors.New("transaction submission failed")
	ErrTxExecutionFailed  = errors.New("transaction execution failed")
	ErrInvalidBridgeReply = errors.New("signer bridge reply is invalid")
)

// Bridge is a Wallet backed by a signer bridge: a local process holding the
// user's wallet session that signs and executes payloads on request. Bridge
// keeps the connection state for the current session.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu        sync.RWMutex
	connected bool
	address   string
}

var _ Wallet = (*Bridge)(nil)

func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetForComponent("wallet_bridge"),
	}
}

// Connect marks the wallet connected as addr.
func (b *Bridge) Connect(addr string) error {
	if addr == "" || address.Normalize(addr) == address.HexPrefix {
		return ErrAddressInvalid
	}
	b.mu.Lock()
	b.connected = true
	b.address = address.Normalize(addr)
	b.mu.Unlock()

	b.log.Info().Str("address", b.address).Msg("Wallet connected")
	return nil
}

func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.connected = false
	b.address = ""
	b.mu.Unlock()

	b.log.Info().Msg("Wallet disconnected")
}

func (b *Bridge) Connection() Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Connection{Connected: b.connected, Address: b.address}
}

type signRequest struct {
	Sender  string          `json:"sender"`
	Payload types.TxPayload `json:"payload"`
}

type signResponse struct {
	Digest string `json:"digest"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignAndSubmit asks the bridge to sign payload with the connected wallet and
// execute it. It blocks while the user is prompted.
func (b *Bridge) SignAndSubmit(ctx context.Context, payload types.TxPayload) (types.TxReceipt, error) {
	conn := b.Connection()
	if !conn.Connected {
		return types.TxReceipt{}, types.ErrWalletDisconnected
	}
	if len(payload.Calls) == 0 {
		return types.TxReceipt{}, errors.Join(ErrPayloadInvalid, errors.New("payload has no calls"))
	}

	b.log.Info().
		Str("kind", string(payload.Kind)).
		Int("callCount", len(payload.Calls)).
		Bool("refreshCoins", payload.RefreshCoins).
		Msg("SignAndSubmit: Requesting signature")

	body, err := json.Marshal(signRequest{Sender: conn.Address, Payload: payload})
	if err != nil {
		return types.TxReceipt{}, errors.Join(ErrPayloadInvalid, fmt.Errorf("failed to encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+SIGN_AND_EXECUTE_ROUTE, bytes.NewReader(body))
	if err != nil {
		return types.TxReceipt{}, errors.Join(ErrTxSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.log.Error().Err(err).Msg("SignAndSubmit: Bridge request failed")
		return types.TxReceipt{}, types.NewNetworkError("sign_and_execute", string(payload.Kind), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return types.TxReceipt{}, types.NewNetworkError("sign_and_execute", string(payload.Kind), fmt.Errorf("bridge returned %s", resp.Status))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.TxReceipt{}, types.NewNetworkError("sign_and_execute", string(payload.Kind), err)
	}

	var parsed signResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return types.TxReceipt{}, errors.Join(ErrInvalidBridgeReply, types.ErrMalformedData, err)
	}

	if parsed.Error != nil {
		if parsed.Error.Code == codeUserRejected {
			b.log.Info().Str("kind", string(payload.Kind)).Msg("SignAndSubmit: User rejected the transaction")
			return types.TxReceipt{}, fmt.Errorf("%w: %s", types.ErrWalletRejected, parsed.Error.Message)
		}
		b.log.Error().Str("code", parsed.Error.Code).Str("message", parsed.Error.Message).Msg("SignAndSubmit: Bridge reported an error")
		return types.TxReceipt{}, types.NewNetworkError("sign_and_execute", string(payload.Kind),
			errors.Join(ErrTxSubmitFailed, fmt.Errorf("%s: %s", parsed.Error.Code, parsed.Error.Message)))
	}
	if resp.StatusCode != http.StatusOK {
		return types.TxReceipt{}, types.NewNetworkError("sign_and_execute", string(payload.Kind),
			errors.Join(ErrTxSubmitFailed, fmt.Errorf("bridge returned %s", resp.Status)))
	}
	if parsed.Digest == "" {
		return types.TxReceipt{}, errors.Join(ErrInvalidBridgeReply, errors.New("reply has no digest"))
	}

	receipt := types.TxReceipt{Digest: parsed.Digest, Status: parsed.Status}
	if parsed.Status == "failure" {
		b.log.Error().Str("digest", receipt.Digest).Msg("SignAndSubmit: Transaction executed with failure status")
		return receipt, fmt.Errorf("%w: %s", ErrTxExecutionFailed, receipt.Digest)
	}

	b.log.Info().
		Str("digest", receipt.Digest).
		Str("status", receipt.Status).
		Msg("SignAndSubmit: Transaction executed successfully")

	return receipt, nil
}
