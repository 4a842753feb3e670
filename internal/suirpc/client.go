package suirpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrRPCRequestFailed = errors.New("RPC request failed")
	ErrInvalidResponse  = errors.New("response data is invalid")
)

// Request defines the structure of a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Response defines the structure of a JSON-RPC 2.0 response. Result is kept
// raw and decoded by the caller into its own shape.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error (code %d): %s", e.Code, e.Message)
}

// Client is a JSON-RPC client for a Sui full node. It is created once per
// process and shared by reference.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
	log        zerolog.Logger
}

// NewClient returns a client for the node at url. A zero timeout leaves
// requests bounded only by the caller's context.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetForComponent("sui_rpc"),
	}
}

// Call invokes method with params and decodes the result into result, which
// may be nil when the caller does not need it.
//
// Transport failures and non-200 replies are returned as *types.NetworkError.
// A node-side error is returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	req := Request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to marshal JSON-RPC request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	c.log.Debug().Str("method", method).Int64("id", req.ID).Msg("Executing RPC call")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("endpoint", c.url).Msg("Failed to execute HTTP request")
		return types.NewNetworkError(method, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewNetworkError(method, "", fmt.Errorf("HTTP request failed with status: %s", resp.Status))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewNetworkError(method, "", fmt.Errorf("failed to read response body: %w", err))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.log.Error().Err(err).Str("method", method).Int("bodyLength", len(respBody)).Msg("Failed to unmarshal JSON-RPC response")
		return errors.Join(ErrInvalidResponse, types.ErrMalformedData, err)
	}
	if rpcResp.Error != nil {
		c.log.Warn().Str("method", method).Int("code", rpcResp.Error.Code).Str("message", rpcResp.Error.Message).Msg("Node returned RPC error")
		return rpcResp.Error
	}

	c.log.Debug().Str("method", method).Dur("elapsed", time.Since(start)).Msg("RPC call completed")

	if result == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return errors.Join(ErrInvalidResponse, fmt.Errorf("%s returned an empty result", method))
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return errors.Join(ErrInvalidResponse, types.ErrMalformedData, fmt.Errorf("failed to decode %s result: %w", method, err))
	}
	return nil
}
