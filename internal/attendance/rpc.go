package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// ErrRPC wraps errors reported inside a JSON-RPC error envelope.
var ErrRPC = errors.New("attendance rpc error")

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

var rpcID atomic.Int64

// call posts a JSON-RPC "call" to endpoint and decodes the result into T.
func call[T any](ctx context.Context, c *Client, endpoint string, params any) (T, error) {
	var zero T

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      rpcID.Add(1),
	})
	if err != nil {
		return zero, fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: c.sessionID})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return zero, fmt.Errorf("could not decode response: %w", err)
	}
	if envelope.Error != nil {
		msg := envelope.Error.Data.Message
		if msg == "" {
			msg = envelope.Error.Message
		}
		return zero, fmt.Errorf("%w: %s", ErrRPC, msg)
	}

	var result T
	if len(envelope.Result) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return zero, fmt.Errorf("could not unmarshal result: %w", err)
	}
	return result, nil
}

// readErrorBody returns at most the first 512 bytes of body.
func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return "(unreadable body)"
	}
	return string(bytes.TrimSpace(data))
}
