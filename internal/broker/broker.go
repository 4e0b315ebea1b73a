// Package broker is the page-side half of the request protocol. A call
// becomes a correlated message sent through the host fabric; the caller
// blocks on a one-shot channel until the matching response arrives, the
// timeout fires, or its context ends. Responses with unknown ids are
// discarded, so fabric fan-out to every tab is safe.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lumen-wallet/go-core/pkg/models"
)

var (
	ErrMethodNotSupported = errors.New("method is not supported")
	ErrMethodTimedOut     = errors.New("no response before the timeout")
)

const DefaultTimeout = 2 * time.Minute

// Messenger sends a request into the host messaging fabric.
type Messenger interface {
	Send(ctx context.Context, req models.Request) error
}

type Broker struct {
	messenger Messenger
	client    models.ClientInfo
	timeout   time.Duration
	newID     func() string
	log       *slog.Logger

	mu      sync.Mutex
	pending map[string]chan models.Response
}

func New(messenger Messenger, client models.ClientInfo, timeout time.Duration, log *slog.Logger) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		messenger: messenger,
		client:    client,
		timeout:   timeout,
		newID:     uuid.NewString,
		log:       log,
		pending:   make(map[string]chan models.Response),
	}
}

// Call sends method with params and waits for the correlated response.
// Unsupported methods fail before any message is sent. After a timeout
// the call's id is no longer tracked, so a response arriving later has no
// observable effect.
func (b *Broker) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if _, ok := models.KindForMethod(method); !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotSupported, method)
	}

	id := b.newID()
	ch := make(chan models.Response, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer b.forget(id)

	req := models.Request{
		ID:     id,
		Client: b.client,
		Method: method,
		Params: params,
	}
	if err := b.messenger.Send(ctx, req); err != nil {
		return nil, fmt.Errorf("send request %s: %w", method, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		b.log.Warn("request timed out", "method", method, "id", id)
		return nil, fmt.Errorf("%w: %s", ErrMethodTimedOut, method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleResponse delivers an inbound response to its waiting call.
// Delivery is at-most-once: the first matching response claims the id;
// anything after, and anything with an untracked id, is dropped.
func (b *Broker) HandleResponse(resp models.Response) {
	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	if ok {
		delete(b.pending, resp.RequestID)
	}
	b.mu.Unlock()
	if !ok {
		b.log.Debug("discarding unmatched response", "request_id", resp.RequestID)
		return
	}
	ch <- resp
}

func (b *Broker) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// InFlight reports how many calls are awaiting responses.
func (b *Broker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
