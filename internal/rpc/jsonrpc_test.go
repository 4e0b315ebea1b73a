package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lumen-wallet/go-core/internal/dispatch"
	"lumen-wallet/go-core/internal/events"
	"lumen-wallet/go-core/internal/storage"
	"lumen-wallet/go-core/internal/vault"
	"lumen-wallet/go-core/internal/vaultcrypt"
	"lumen-wallet/go-core/internal/windows"
	"lumen-wallet/go-core/pkg/models"
)

type nullFabric struct{}

func (nullFabric) NotifyWindow(context.Context, int64, string) error { return nil }
func (nullFabric) RespondToTab(context.Context, int64, models.Response) error {
	return nil
}

type nullHost struct{ nextID int64 }

func (h *nullHost) ListWindows(context.Context) ([]windows.HostWindow, error) { return nil, nil }
func (h *nullHost) OpenWindow(context.Context, string, windows.Geometry) (*windows.HostWindow, error) {
	h.nextID++
	return &windows.HostWindow{ID: h.nextID}, nil
}
func (h *nullHost) CurrentWindow(context.Context) (windows.HostWindow, error) {
	return windows.HostWindow{}, nil
}

func newTestServer(t *testing.T) (*Server, *vault.Vault, *events.Queue) {
	t.Helper()
	store := storage.NewMemoryStore()
	queue := events.NewQueue(store)
	registry := windows.NewRegistry(store, &nullHost{}, nil)
	v := vault.New(store, nil)
	dispatcher := dispatch.New(queue, registry, nullFabric{}, v, dispatch.Ed25519Signer{}, nil)
	return NewServer("127.0.0.1:0", dispatcher, queue, v, nil), v, queue
}

func postRPC(t *testing.T, handler http.Handler, body string) rpcResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode rpc response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func callRPC(t *testing.T, handler http.Handler, method string, params any) rpcResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  json.RawMessage(raw),
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return postRPC(t, handler, string(body))
}

func TestRPCParseAndShapeErrors(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	resp := postRPC(t, handler, "{not json")
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected parse error, got %+v", resp)
	}

	resp = postRPC(t, handler, `{"jsonrpc":"1.0","id":1,"method":"health_check"}`)
	if resp.Error == nil || resp.Error.Code != -32600 {
		t.Fatalf("expected invalid request, got %+v", resp)
	}

	resp = callRPC(t, handler, "no_such_method", struct{}{})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestRPCRejectsGetRequests(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRPCRejectsOversizedBody(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	big := bytes.Repeat([]byte("a"), int(maxRPCBodyBytes)+1)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(big))
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestRPCWalletRequestFlow(t *testing.T) {
	server, v, queue := newTestServer(t)
	handler := server.Handler()
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	creds := vaultcrypt.Credentials{Method: models.EncryptionPasswordDerived, Password: "hunter2"}
	if _, err := v.ImportAccount(ctx, pub, priv.Seed(), creds); err != nil {
		t.Fatalf("import account: %v", err)
	}

	signParams, err := json.Marshal(models.SignBytesParams{Payload: []byte("payload"), Signer: pub})
	if err != nil {
		t.Fatalf("marshal sign params: %v", err)
	}
	resp := callRPC(t, handler, "wallet_request", map[string]any{
		"tab_id": 3,
		"request": models.Request{
			ID:     "r1",
			Client: models.ClientInfo{Origin: "https://dapp.example"},
			Method: "signBytes",
			Params: signParams,
		},
	})
	if resp.Error != nil {
		t.Fatalf("wallet_request failed: %+v", resp.Error)
	}

	if _, err := queue.FetchByID(ctx, "r1"); err != nil {
		t.Fatalf("request not queued: %v", err)
	}
	resp = callRPC(t, handler, "wallet_event", map[string]string{"id": "r1"})
	if resp.Error != nil {
		t.Fatalf("wallet_event failed: %+v", resp.Error)
	}

	// Wrong password surfaces the decryption-failed code.
	resp = callRPC(t, handler, "wallet_approve_sign", map[string]string{"id": "r1", "password": "wrong"})
	if resp.Error == nil || resp.Error.Code != -32007 {
		t.Fatalf("expected decryption-failed code, got %+v", resp)
	}

	resp = callRPC(t, handler, "wallet_approve_sign", map[string]string{"id": "r1", "password": "hunter2"})
	if resp.Error != nil {
		t.Fatalf("approve failed: %+v", resp.Error)
	}
	resp = callRPC(t, handler, "wallet_event", map[string]string{"id": "r1"})
	if resp.Error == nil || resp.Error.Code != -32004 {
		t.Fatalf("expected not-found after resolution, got %+v", resp)
	}
}

func TestRPCVerifyPassword(t *testing.T) {
	server, v, _ := newTestServer(t)
	handler := server.Handler()
	if err := v.SetPassword(context.Background(), "hunter2"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	resp := callRPC(t, handler, "wallet_verify_password", map[string]string{"password": "hunter2"})
	if resp.Error != nil {
		t.Fatalf("verify failed: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if !strings.Contains(string(raw), `"valid":true`) {
		t.Fatalf("expected valid=true, got %s", raw)
	}
}

func TestRPCPollRequiresRelay(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp := callRPC(t, server.Handler(), "wallet_poll", struct{}{})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method not found without a relay, got %+v", resp)
	}
}

func TestRPCPollDrainsRelaySignals(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := events.NewQueue(store)
	relay := NewRelay(nil)
	registry := windows.NewRegistry(store, relay, nil)
	v := vault.New(store, nil)
	dispatcher := dispatch.New(queue, registry, relay, v, dispatch.Ed25519Signer{}, nil)
	server := NewServer("127.0.0.1:0", dispatcher, queue, v, nil)
	server.AttachRelay(relay)
	handler := server.Handler()

	resp := callRPC(t, handler, "wallet_request", map[string]any{
		"tab_id": 3,
		"request": models.Request{
			ID:     "r1",
			Client: models.ClientInfo{Origin: "https://dapp.example"},
			Method: "connect",
		},
	})
	if resp.Error != nil {
		t.Fatalf("wallet_request failed: %+v", resp.Error)
	}

	signals := pollSignals(t, handler)
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %+v", signals)
	}
	if signals[0].Type != SignalOpenWindow || !strings.Contains(signals[0].URL, "event=r1") {
		t.Fatalf("expected an open-window signal for r1, got %+v", signals[0])
	}
	windowID := signals[0].WindowID

	if got := pollSignals(t, handler); len(got) != 0 {
		t.Fatalf("second poll must be empty, got %+v", got)
	}

	resp = callRPC(t, handler, "wallet_window_closed", map[string]int64{"id": windowID})
	if resp.Error != nil {
		t.Fatalf("wallet_window_closed failed: %+v", resp.Error)
	}
	if err := relay.NotifyWindow(context.Background(), windowID, "r1"); err == nil {
		t.Fatal("closed window must not accept notifications")
	}
}

func pollSignals(t *testing.T, handler http.Handler) []Signal {
	t.Helper()
	resp := callRPC(t, handler, "wallet_poll", struct{}{})
	if resp.Error != nil {
		t.Fatalf("wallet_poll failed: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("remarshal poll result: %v", err)
	}
	var signals []Signal
	if err := json.Unmarshal(raw, &signals); err != nil {
		t.Fatalf("decode poll result: %v", err)
	}
	return signals
}
