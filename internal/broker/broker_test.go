package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lumen-wallet/go-core/pkg/models"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []models.Request
	sendErr error
}

func (m *fakeMessenger) Send(_ context.Context, req models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, req)
	return nil
}

func (m *fakeMessenger) lastSent(t *testing.T) models.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no request was sent")
	}
	return m.sent[len(m.sent)-1]
}

func testClient() models.ClientInfo {
	return models.ClientInfo{Origin: "https://dapp.example", DisplayName: "Example dApp"}
}

func TestCallResolvesWithMatchingResponse(t *testing.T) {
	messenger := &fakeMessenger{}
	b := New(messenger, testClient(), time.Second, nil)

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	go func() {
		defer close(done)
		result, callErr = b.Call(context.Background(), "signBytes", json.RawMessage(`{"payload":"AQID"}`))
	}()

	req := waitForSend(t, messenger)
	if req.Client.Origin != "https://dapp.example" {
		t.Fatalf("caller identity missing from request: %+v", req.Client)
	}
	b.HandleResponse(models.Response{
		RequestID: req.ID,
		Method:    req.Method,
		Result:    json.RawMessage(`{"signature":"abc"}`),
	})
	<-done

	if callErr != nil {
		t.Fatalf("call failed: %v", callErr)
	}
	if string(result) != `{"signature":"abc"}` {
		t.Fatalf("unexpected result %s", result)
	}
	if b.InFlight() != 0 {
		t.Fatalf("listener leaked: %d in flight", b.InFlight())
	}
}

func TestCallRejectsWithCarriedError(t *testing.T) {
	messenger := &fakeMessenger{}
	b := New(messenger, testClient(), time.Second, nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), "connect", nil)
		done <- err
	}()

	req := waitForSend(t, messenger)
	b.HandleResponse(models.Response{
		RequestID: req.ID,
		Method:    req.Method,
		Error:     &models.ResponseError{Code: models.ErrorCodeUserDeclined, Message: "declined"},
	})

	err := <-done
	var respErr *models.ResponseError
	if !errors.As(err, &respErr) || respErr.Code != models.ErrorCodeUserDeclined {
		t.Fatalf("expected user_declined response error, got %v", err)
	}
}

func TestCallUnsupportedMethodSendsNothing(t *testing.T) {
	messenger := &fakeMessenger{}
	b := New(messenger, testClient(), time.Second, nil)

	_, err := b.Call(context.Background(), "stealKeys", nil)
	if !errors.Is(err, ErrMethodNotSupported) {
		t.Fatalf("expected ErrMethodNotSupported, got %v", err)
	}
	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	if len(messenger.sent) != 0 {
		t.Fatalf("message was sent for unsupported method: %+v", messenger.sent)
	}
}

func TestCallTimesOutAndDiscardsLateResponse(t *testing.T) {
	messenger := &fakeMessenger{}
	b := New(messenger, testClient(), 20*time.Millisecond, nil)

	_, err := b.Call(context.Background(), "signBytes", nil)
	if !errors.Is(err, ErrMethodTimedOut) {
		t.Fatalf("expected ErrMethodTimedOut, got %v", err)
	}
	if b.InFlight() != 0 {
		t.Fatalf("listener leaked after timeout: %d in flight", b.InFlight())
	}

	// A response arriving after the timeout must have no observable effect.
	req := messenger.lastSent(t)
	b.HandleResponse(models.Response{RequestID: req.ID, Method: req.Method, Result: json.RawMessage(`"late"`)})
	if b.InFlight() != 0 {
		t.Fatalf("late response re-registered the id: %d in flight", b.InFlight())
	}
}

func TestUnmatchedResponseIsIgnored(t *testing.T) {
	b := New(&fakeMessenger{}, testClient(), time.Second, nil)
	// Must not panic or register anything.
	b.HandleResponse(models.Response{RequestID: "never-issued"})
	if b.InFlight() != 0 {
		t.Fatalf("unmatched response tracked: %d in flight", b.InFlight())
	}
}

func TestCallHonorsContextCancellation(t *testing.T) {
	messenger := &fakeMessenger{}
	b := New(messenger, testClient(), time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Call(ctx, "connect", nil)
		done <- err
	}()
	waitForSend(t, messenger)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSendFailureSurfaces(t *testing.T) {
	messenger := &fakeMessenger{sendErr: errors.New("fabric down")}
	b := New(messenger, testClient(), time.Second, nil)
	if _, err := b.Call(context.Background(), "connect", nil); err == nil {
		t.Fatal("expected send failure to surface")
	}
	if b.InFlight() != 0 {
		t.Fatalf("listener leaked after send failure: %d in flight", b.InFlight())
	}
}

func waitForSend(t *testing.T, m *fakeMessenger) models.Request {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		if len(m.sent) > 0 {
			req := m.sent[len(m.sent)-1]
			m.mu.Unlock()
			return req
		}
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("request was never sent")
	return models.Request{}
}
