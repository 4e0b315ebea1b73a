package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"lumen-wallet/go-core/internal/events"
	"lumen-wallet/go-core/internal/vault"
	"lumen-wallet/go-core/internal/vaultcrypt"
	"lumen-wallet/go-core/pkg/models"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	started := time.Now()
	result, rpcErr := s.dispatchRPC(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.log.Error("rpc failed", "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		s.log.Info("rpc response", "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil

	case "wallet_request":
		var params struct {
			Request models.Request `json:"request"`
			TabID   int64          `json:"tab_id"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		if err := s.dispatcher.HandleRequest(ctx, params.Request, params.TabID); err != nil {
			return nil, appError(err)
		}
		return map[string]bool{"queued": true}, nil

	case "wallet_events":
		all, err := s.queue.FetchAll(ctx)
		if err != nil {
			return nil, appError(err)
		}
		return all, nil

	case "wallet_event":
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil || params.ID == "" {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		event, err := s.queue.FetchByID(ctx, params.ID)
		if err != nil {
			return nil, appError(err)
		}
		return event, nil

	case "wallet_approve_sign":
		var params struct {
			ID       string `json:"id"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil || params.ID == "" {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		creds := vaultcrypt.Credentials{Method: models.EncryptionPasswordDerived, Password: params.Password}
		if err := s.dispatcher.ApproveSign(ctx, params.ID, creds); err != nil {
			return nil, appError(err)
		}
		return map[string]bool{"resolved": true}, nil

	case "wallet_approve_connect":
		var params struct {
			ID       string   `json:"id"`
			Accounts [][]byte `json:"accounts"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil || params.ID == "" {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		if err := s.dispatcher.ApproveConnect(ctx, params.ID, params.Accounts); err != nil {
			return nil, appError(err)
		}
		return map[string]bool{"resolved": true}, nil

	case "wallet_dismiss":
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil || params.ID == "" {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		if err := s.dispatcher.Dismiss(ctx, params.ID); err != nil {
			return nil, appError(err)
		}
		return map[string]bool{"dismissed": true}, nil

	case "wallet_poll":
		if s.relay == nil {
			return nil, &rpcError{Code: -32601, Message: "method not found"}
		}
		signals := s.relay.Drain()
		if signals == nil {
			signals = []Signal{}
		}
		return signals, nil

	case "wallet_window_closed":
		// The persisted window record is pruned on the next hydrate.
		if s.relay == nil {
			return nil, &rpcError{Code: -32601, Message: "method not found"}
		}
		var params struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil || params.ID == 0 {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		s.relay.WindowClosed(params.ID)
		return map[string]bool{"closed": true}, nil

	case "wallet_verify_password":
		var params struct {
			Password string `json:"password"`
		}
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, &rpcError{Code: -32602, Message: "invalid params"}
		}
		ok, err := s.vault.VerifyPassword(ctx, params.Password)
		if err != nil {
			return nil, appError(err)
		}
		return map[string]bool{"valid": ok}, nil

	default:
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	}
}

// appError maps core error kinds onto stable application codes so the UI
// can branch without string matching.
func appError(err error) *rpcError {
	switch {
	case errors.Is(err, events.ErrNotFound), errors.Is(err, vault.ErrNotFound):
		return &rpcError{Code: -32004, Message: "not found"}
	case errors.Is(err, vault.ErrInvalidCredentialMethod):
		return &rpcError{Code: -32005, Message: "invalid credential method"}
	case errors.Is(err, vault.ErrPasswordLocked):
		return &rpcError{Code: -32006, Message: "password attempts locked"}
	case errors.Is(err, vaultcrypt.ErrDecryptionFailed):
		return &rpcError{Code: -32007, Message: "decryption failed"}
	case errors.Is(err, vaultcrypt.ErrMalformedData), errors.Is(err, events.ErrMalformedData), errors.Is(err, vault.ErrMalformedData):
		return &rpcError{Code: -32008, Message: "malformed data"}
	default:
		return &rpcError{Code: -32000, Message: err.Error()}
	}
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: -32600, Message: "invalid request"},
	})
}
