// Package rpcselector adapts the chain's JSON-RPC surface to the
// priority failover executor: object-get, multi-object-get,
// dynamic-field-get, and a naming-service lookup, each racing against a
// per-call timeout. There is no JSON-RPC client library anywhere in
// this repository's reference corpus, so requests are built directly
// over net/http and encoding/json, in the same doRequest-over-
// http.Client shape the corpus uses for other chain-RPC clients.
package rpcselector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/walrus-tools/sites-gateway/internal/failover"
)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ObjectResponse is the subset of a chain object response the core needs:
// its version, optional raw BCS payload, optional display map, and
// whether the node reported a structured error instead of data.
type ObjectResponse struct {
	ObjectID string
	Version  string
	Display  map[string]string
	BCS      []byte
	Error    *RPCError
}

// Present reports whether the response carries object data: no
// structured error and at least one of BCS bytes, display fields or an
// object id. An empty response reports false; whether that makes it
// invalid is judged by the caller, not the selector (§4.2).
func (r ObjectResponse) Present() bool {
	return r.Error == nil && (r.BCS != nil || r.Display != nil || r.ObjectID != "")
}

// NameRecord is the result of a naming-service lookup.
type NameRecord struct {
	TargetAddress string
}

// RPCError mirrors a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Selector drives chain-RPC calls over a priority list of full-node
// endpoints via the failover executor.
type Selector struct {
	executor   *failover.Executor
	httpClient *http.Client
	timeout    time.Duration
}

// New constructs a Selector. callTimeout bounds each individual RPC
// call (default 7s per §6's configuration table, enforced by the
// caller via config.ChainConfig).
func New(list failover.List, retryDelay, callTimeout time.Duration, httpClient *http.Client) *Selector {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Selector{
		executor:   failover.New(list, retryDelay),
		httpClient: httpClient,
		timeout:    callTimeout,
	}
}

// GetObject fetches a single chain object by id.
func (s *Selector) GetObject(ctx context.Context, objectID string, options map[string]bool) (ObjectResponse, error) {
	v, err := s.executor.Invoke(ctx, func(ctx context.Context, url string) failover.Outcome {
		return s.call(ctx, url, "sui_getObject", []any{objectID, options})
	})
	if err != nil {
		return ObjectResponse{}, err
	}
	resp, err := decodeObjectResponse(v.(json.RawMessage))
	if err != nil {
		return ObjectResponse{}, err
	}
	return resp, nil
}

// MultiGetObject fetches several chain objects in one round trip;
// results preserve input order.
func (s *Selector) MultiGetObject(ctx context.Context, objectIDs []string, options map[string]bool) ([]ObjectResponse, error) {
	v, err := s.executor.Invoke(ctx, func(ctx context.Context, url string) failover.Outcome {
		return s.call(ctx, url, "sui_multiGetObjects", []any{objectIDs, options})
	})
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(v.(json.RawMessage), &raw); err != nil {
		return nil, fmt.Errorf("rpcselector: decoding multiGetObjects result: %w", err)
	}
	out := make([]ObjectResponse, len(raw))
	for i, r := range raw {
		resp, err := decodeObjectResponse(r)
		if err != nil {
			return nil, fmt.Errorf("rpcselector: decoding multiGetObjects[%d]: %w", i, err)
		}
		out[i] = resp
	}
	return out, nil
}

// GetDynamicFieldObject fetches a dynamic-field child object keyed by
// (parentID, key-type, key-bytes).
func (s *Selector) GetDynamicFieldObject(ctx context.Context, parentID string, keyType string, keyValue any) (ObjectResponse, error) {
	v, err := s.executor.Invoke(ctx, func(ctx context.Context, url string) failover.Outcome {
		return s.call(ctx, url, "suix_getDynamicFieldObject", []any{
			parentID,
			map[string]any{"type": keyType, "value": keyValue},
		})
	})
	if err != nil {
		return ObjectResponse{}, err
	}
	return decodeObjectResponse(v.(json.RawMessage))
}

// GetNameRecord resolves a naming-service name (e.g. "label.sui") to its
// target address, returning (nil, nil) when the name has no record.
func (s *Selector) GetNameRecord(ctx context.Context, name string) (*NameRecord, error) {
	v, err := s.executor.Invoke(ctx, func(ctx context.Context, url string) failover.Outcome {
		return s.call(ctx, url, "suix_resolveNameServiceAddress", []any{name})
	})
	if err != nil {
		return nil, err
	}

	var target *string
	if err := json.Unmarshal(v.(json.RawMessage), &target); err != nil {
		return nil, fmt.Errorf("rpcselector: decoding name record: %w", err)
	}
	if target == nil {
		return nil, nil
	}
	return &NameRecord{TargetAddress: *target}, nil
}

// call performs one JSON-RPC POST against url and classifies the
// outcome per §4.2: timeout or transport error -> RetrySame; an
// RPC-level structured error is returned to the caller as-is (it is not
// itself a transport failure); success carries the raw result bytes.
func (s *Selector) call(ctx context.Context, url, method string, params []any) failover.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return failover.Outcome{Kind: failover.Stop, Err: fmt.Errorf("rpcselector: marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failover.Outcome{Kind: failover.Stop, Err: fmt.Errorf("rpcselector: building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return failover.Outcome{Kind: failover.RetrySame, Err: fmt.Errorf("rpcselector: call timed out: %w", err)}
		}
		return failover.Outcome{Kind: failover.RetrySame, Err: fmt.Errorf("rpcselector: transport error: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failover.Outcome{Kind: failover.RetrySame, Err: fmt.Errorf("rpcselector: reading response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return failover.Outcome{Kind: failover.RetrySame, Err: fmt.Errorf("rpcselector: unexpected status %d", resp.StatusCode)}
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return failover.Outcome{Kind: failover.RetrySame, Err: fmt.Errorf("rpcselector: decoding JSON-RPC envelope: %w", err)}
	}

	if rpcResp.Error != nil {
		// A structured RPC-level error is a valid response, not a
		// transport failure; it is wrapped as an {"error": ...} envelope
		// so the decode helpers below can surface it to the caller, who
		// judges what it means (§4.2).
		wrapped, err := json.Marshal(struct {
			Error *RPCError `json:"error"`
		}{rpcResp.Error})
		if err != nil {
			return failover.Outcome{Kind: failover.Stop, Err: fmt.Errorf("rpcselector: re-marshaling RPC error: %w", err)}
		}
		return failover.Outcome{Kind: failover.Success, Value: json.RawMessage(wrapped)}
	}

	return failover.Outcome{Kind: failover.Success, Value: rpcResp.Result}
}

type rawObjectResponse struct {
	Data *struct {
		ObjectID string            `json:"objectId"`
		Version  string            `json:"version"`
		Display  map[string]string `json:"display"`
		Bcs      *struct {
			BcsBytes string `json:"bcsBytes"`
		} `json:"bcs"`
	} `json:"data"`
	Error *RPCError `json:"error"`
}

func decodeObjectResponse(raw json.RawMessage) (ObjectResponse, error) {
	if len(raw) == 0 {
		return ObjectResponse{}, nil
	}

	var parsed rawObjectResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ObjectResponse{}, fmt.Errorf("rpcselector: decoding object response: %w", err)
	}
	if parsed.Error != nil {
		return ObjectResponse{Error: parsed.Error}, nil
	}
	if parsed.Data == nil {
		return ObjectResponse{}, nil
	}

	out := ObjectResponse{
		ObjectID: parsed.Data.ObjectID,
		Version:  parsed.Data.Version,
		Display:  parsed.Data.Display,
	}
	if parsed.Data.Bcs != nil && parsed.Data.Bcs.BcsBytes != "" {
		decoded, err := decodeBase64(parsed.Data.Bcs.BcsBytes)
		if err != nil {
			return ObjectResponse{}, fmt.Errorf("rpcselector: decoding bcsBytes: %w", err)
		}
		out.BCS = decoded
	}
	return out, nil
}
