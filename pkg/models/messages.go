package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind tags a pending cross-context request with the flow that will
// resolve it.
type EventKind string

const (
	EventKindConnect          EventKind = "connect"
	EventKindDisconnect       EventKind = "disconnect"
	EventKindSignBytes        EventKind = "sign_bytes"
	EventKindSignTransactions EventKind = "sign_transactions"
	EventKindSignAndSend      EventKind = "sign_and_send_transactions"
	EventKindDeepLink         EventKind = "deep_link"
)

// requestMethods is the fixed allow-list of methods a page context may
// invoke. Anything else is rejected before a message is sent.
var requestMethods = map[string]EventKind{
	"connect":                 EventKindConnect,
	"disconnect":              EventKindDisconnect,
	"signBytes":               EventKindSignBytes,
	"signTransactions":        EventKindSignTransactions,
	"signAndSendTransactions": EventKindSignAndSend,
}

// KindForMethod maps an allow-listed request method to its event kind.
func KindForMethod(method string) (EventKind, bool) {
	kind, ok := requestMethods[method]
	return kind, ok
}

// ClientInfo identifies the page that originated a request. Origin is the
// only field the privileged side trusts; display name and icon are
// presentation hints.
type ClientInfo struct {
	Origin      string `json:"origin"`
	DisplayName string `json:"display_name,omitempty"`
	IconRef     string `json:"icon_ref,omitempty"`
}

// Request crosses the host messaging fabric from the page context to the
// privileged context. ID is the caller-chosen correlation id.
type Request struct {
	ID     string          `json:"id"`
	Client ClientInfo      `json:"client"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

const (
	ErrorCodeDecryptionFailed   = "decryption_failed"
	ErrorCodeInvalidCredential  = "invalid_credential_method"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeMalformedData      = "malformed_data"
	ErrorCodeMethodNotSupported = "method_not_supported"
	ErrorCodeMethodTimedOut     = "method_timed_out"
	ErrorCodeUserDeclined       = "user_declined"
	ErrorCodeTooManyRequests    = "too_many_requests"
	ErrorCodeUnknown            = "unknown"
)

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response travels back to the originating tab. Exactly one of Result and
// Error is set.
type Response struct {
	RequestID string          `json:"request_id"`
	Method    string          `json:"method"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ResponseError  `json:"error,omitempty"`
}

// PendingEvent is the durable record of a request the privileged context
// has accepted but not yet resolved. At most one event exists per id; a
// save with an existing id replaces in place.
type PendingEvent struct {
	ID        string          `json:"id"`
	Kind      EventKind       `json:"kind"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	Client    ClientInfo      `json:"client"`
	TabID     int64           `json:"tab_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignBytesParams is the payload of a signBytes / signTransactions event.
// Payloads are opaque signable bytes; the core never interprets them.
type SignBytesParams struct {
	Payload []byte `json:"payload"`
	Signer  []byte `json:"signer"`
}
