package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lumen-wallet/go-core/internal/windows"
	"lumen-wallet/go-core/pkg/models"
)

const (
	SignalOpenWindow   = "open_window"
	SignalNotifyWindow = "notify_window"
	SignalTabResponse  = "tab_response"
)

// Signal is one outbound instruction for the UI shell: open a popup,
// refresh a window that is already showing, or deliver a response to a
// page tab. The shell drains them over wallet_poll.
type Signal struct {
	Type     string           `json:"type"`
	WindowID int64            `json:"window_id,omitempty"`
	TabID    int64            `json:"tab_id,omitempty"`
	EventID  string           `json:"event_id,omitempty"`
	URL      string           `json:"url,omitempty"`
	Left     int              `json:"left,omitempty"`
	Top      int              `json:"top,omitempty"`
	Width    int              `json:"width,omitempty"`
	Height   int              `json:"height,omitempty"`
	Response *models.Response `json:"response,omitempty"`
}

// Relay bridges the core to a UI shell that lives in another process.
// It plays the window host and the response fabric: window opens and tab
// responses become queued signals, and the shell reports window closes
// back so the live window list stays truthful.
type Relay struct {
	log *slog.Logger

	mu      sync.Mutex
	nextID  int64
	open    map[int64]windows.HostWindow
	signals []Signal
}

func NewRelay(log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		log:  log,
		open: make(map[int64]windows.HostWindow),
	}
}

func (r *Relay) ListWindows(_ context.Context) ([]windows.HostWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]windows.HostWindow, 0, len(r.open))
	for _, w := range r.open {
		list = append(list, w)
	}
	return list, nil
}

func (r *Relay) OpenWindow(_ context.Context, rawURL string, geometry windows.Geometry) (*windows.HostWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	handle := windows.HostWindow{ID: r.nextID, Geometry: geometry}
	r.open[handle.ID] = handle
	r.signals = append(r.signals, Signal{
		Type:     SignalOpenWindow,
		WindowID: handle.ID,
		URL:      rawURL,
		Left:     geometry.Left,
		Top:      geometry.Top,
		Width:    geometry.Width,
		Height:   geometry.Height,
	})
	return &handle, nil
}

func (r *Relay) CurrentWindow(_ context.Context) (windows.HostWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.open {
		if w.Focused {
			return w, nil
		}
	}
	return windows.HostWindow{}, nil
}

// NotifyWindow queues a refresh for an open window. An unknown id is an
// error so the dispatcher falls back to opening a fresh popup.
func (r *Relay) NotifyWindow(_ context.Context, windowID int64, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.open[windowID]; !ok {
		return fmt.Errorf("window %d is not open", windowID)
	}
	r.signals = append(r.signals, Signal{
		Type:     SignalNotifyWindow,
		WindowID: windowID,
		EventID:  eventID,
	})
	return nil
}

func (r *Relay) RespondToTab(_ context.Context, tabID int64, resp models.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, Signal{
		Type:     SignalTabResponse,
		TabID:    tabID,
		Response: &resp,
	})
	return nil
}

// Drain returns every queued signal and clears the queue.
func (r *Relay) Drain() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.signals
	r.signals = nil
	return drained
}

// WindowClosed records that the shell closed a window.
func (r *Relay) WindowClosed(windowID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, windowID)
}
