// Package dispatch is the privileged-side half of the request protocol.
// An inbound request is persisted to the event queue first, then routed to
// an open privileged window or one opened for it; the eventual decision
// flows back to the originating tab and the queue entry is removed.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"lumen-wallet/go-core/internal/events"
	"lumen-wallet/go-core/internal/platform/ratelimiter"
	"lumen-wallet/go-core/internal/vault"
	"lumen-wallet/go-core/internal/vaultcrypt"
	"lumen-wallet/go-core/internal/windows"
	"lumen-wallet/go-core/pkg/models"
)

// Fabric is the privileged side of the host messaging fabric: a light
// notification channel to open UI windows and a response channel back to
// the originating tab.
type Fabric interface {
	NotifyWindow(ctx context.Context, windowID int64, eventID string) error
	RespondToTab(ctx context.Context, tabID int64, resp models.Response) error
}

// Signer turns raw private-key bytes and an opaque payload into a
// signature. The vault hands key bytes to it transiently, for the
// duration of one call.
type Signer interface {
	Sign(ctx context.Context, privateKey, payload []byte) ([]byte, error)
}

const (
	defaultOriginRate  = 5
	defaultOriginBurst = 10
)

type Dispatcher struct {
	queue   *events.Queue
	windows *windows.Registry
	fabric  Fabric
	vault   *vault.Vault
	signer  Signer
	log     *slog.Logger
	now     func() time.Time
	origins *ratelimiter.PerKey
}

func New(queue *events.Queue, registry *windows.Registry, fabric Fabric, v *vault.Vault, signer Signer, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		queue:   queue,
		windows: registry,
		fabric:  fabric,
		vault:   v,
		signer:  signer,
		log:     log,
		now:     time.Now,
		origins: ratelimiter.New(defaultOriginRate, defaultOriginBurst, 10*time.Minute),
	}
}

// HandleRequest accepts an inbound request from tabID. Persisting the
// event is the durability boundary: once SaveOrReplace returns, the
// request survives the privileged process being killed. Only then is a UI
// window notified or opened.
func (d *Dispatcher) HandleRequest(ctx context.Context, req models.Request, tabID int64) error {
	kind, ok := models.KindForMethod(req.Method)
	if !ok {
		requestsTotal.WithLabelValues("unknown", "unsupported").Inc()
		return d.fabric.RespondToTab(ctx, tabID, models.Response{
			RequestID: req.ID,
			Method:    req.Method,
			Error:     &models.ResponseError{Code: models.ErrorCodeMethodNotSupported, Message: "method is not supported"},
		})
	}
	if !d.allowOrigin(req.Client.Origin) {
		requestsTotal.WithLabelValues(string(kind), "rate_limited").Inc()
		return d.fabric.RespondToTab(ctx, tabID, models.Response{
			RequestID: req.ID,
			Method:    req.Method,
			Error:     &models.ResponseError{Code: models.ErrorCodeTooManyRequests, Message: "too many requests from origin"},
		})
	}

	event := models.PendingEvent{
		ID:        req.ID,
		Kind:      kind,
		Method:    req.Method,
		Params:    req.Params,
		Client:    req.Client,
		TabID:     tabID,
		CreatedAt: d.now().UTC(),
	}
	if err := d.queue.SaveOrReplace(ctx, event); err != nil {
		return fmt.Errorf("persist event %s: %w", event.ID, err)
	}
	requestsTotal.WithLabelValues(string(kind), "accepted").Inc()
	d.log.Info("request queued", "event_id", event.ID, "kind", event.Kind, "origin", event.Client.Origin)

	return d.ensureWindow(ctx, event.ID)
}

// ensureWindow routes the event id to an already-open main window or
// opens one with the id encoded into its initial URL. The notification
// carries only the id: the UI pulls full details from the queue, so a
// slow reader never sees a stale payload.
func (d *Dispatcher) ensureWindow(ctx context.Context, eventID string) error {
	open, err := d.windows.GetByType(ctx, models.WindowTypeMain)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		if err := d.fabric.NotifyWindow(ctx, open[0].WindowID, eventID); err == nil {
			return nil
		}
		d.log.Warn("window notification failed, opening a new window", "event_id", eventID)
	}
	params := url.Values{"event": {eventID}}
	if _, err := d.windows.CreateWindow(ctx, models.WindowTypeMain, params, nil); err != nil {
		return err
	}
	return nil
}

// Resolve sends a success result back to the event's originating tab and
// removes the queue entry.
func (d *Dispatcher) Resolve(ctx context.Context, eventID string, result json.RawMessage) error {
	return d.finish(ctx, eventID, result, nil)
}

// Reject sends an error back to the event's originating tab and removes
// the queue entry.
func (d *Dispatcher) Reject(ctx context.Context, eventID, code, message string) error {
	return d.finish(ctx, eventID, nil, &models.ResponseError{Code: code, Message: message})
}

// Dismiss is the user closing the flow without deciding: equivalent to a
// user-declined rejection.
func (d *Dispatcher) Dismiss(ctx context.Context, eventID string) error {
	return d.Reject(ctx, eventID, models.ErrorCodeUserDeclined, "request was dismissed")
}

func (d *Dispatcher) finish(ctx context.Context, eventID string, result json.RawMessage, respErr *models.ResponseError) error {
	event, err := d.queue.FetchByID(ctx, eventID)
	if err != nil {
		return err
	}
	resp := models.Response{
		RequestID: event.ID,
		Method:    event.Method,
		Result:    result,
		Error:     respErr,
	}
	if err := d.fabric.RespondToTab(ctx, event.TabID, resp); err != nil {
		return fmt.Errorf("respond to tab %d: %w", event.TabID, err)
	}
	outcome := "resolved"
	if respErr != nil {
		outcome = respErr.Code
	}
	responsesTotal.WithLabelValues(string(event.Kind), outcome).Inc()
	d.log.Info("request finished", "event_id", event.ID, "outcome", outcome)
	return d.queue.RemoveByID(ctx, event.ID)
}

// SignResult is the payload of a resolved signing event.
type SignResult struct {
	Signature []byte `json:"signature"`
	PublicKey []byte `json:"public_key"`
}

// ApproveSign decrypts the signer's key under creds, signs the event's
// payload, and resolves the event with the signature. Key bytes never
// leave this call.
func (d *Dispatcher) ApproveSign(ctx context.Context, eventID string, creds vaultcrypt.Credentials) error {
	event, err := d.queue.FetchByID(ctx, eventID)
	if err != nil {
		return err
	}
	switch event.Kind {
	case models.EventKindSignBytes, models.EventKindSignTransactions, models.EventKindSignAndSend:
	default:
		return fmt.Errorf("event %s is a %q flow, not a signing flow", eventID, event.Kind)
	}
	var params models.SignBytesParams
	if err := json.Unmarshal(event.Params, &params); err != nil {
		return fmt.Errorf("%w: event %s params: %v", events.ErrMalformedData, eventID, err)
	}

	privateKey, err := d.vault.GetDecrypted(ctx, params.Signer, creds)
	if err != nil {
		return err
	}
	signature, err := d.signer.Sign(ctx, privateKey, params.Payload)
	zeroKey(privateKey)
	if err != nil {
		return fmt.Errorf("sign payload for event %s: %w", eventID, err)
	}

	result, err := json.Marshal(SignResult{Signature: signature, PublicKey: params.Signer})
	if err != nil {
		return err
	}
	return d.Resolve(ctx, eventID, result)
}

// ApproveConnect resolves a connect event with the approved account
// public keys.
func (d *Dispatcher) ApproveConnect(ctx context.Context, eventID string, accounts [][]byte) error {
	event, err := d.queue.FetchByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Kind != models.EventKindConnect {
		return fmt.Errorf("event %s is a %q flow, not a connect flow", eventID, event.Kind)
	}
	result, err := json.Marshal(struct {
		Accounts [][]byte `json:"accounts"`
	}{Accounts: accounts})
	if err != nil {
		return err
	}
	return d.Resolve(ctx, eventID, result)
}

func (d *Dispatcher) allowOrigin(origin string) bool {
	return d.origins.Allow(origin, d.now())
}

func zeroKey(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
