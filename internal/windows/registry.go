// Package windows tracks the privileged UI windows the extension has
// open. The persisted records are a cache of the host platform's window
// list, never a source of truth: they are reconciled on every cold start
// and pruned when the platform no longer reports the window.
package windows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"lumen-wallet/go-core/internal/storage"
	"lumen-wallet/go-core/pkg/models"
)

const windowPrefix = "windows/"

type Geometry struct {
	Left   int
	Top    int
	Width  int
	Height int
}

type HostWindow struct {
	ID       int64
	Focused  bool
	Geometry Geometry
}

// Host is the platform windowing collaborator. OpenWindow returns nil
// without error when the platform declines to allocate a window.
type Host interface {
	ListWindows(ctx context.Context) ([]HostWindow, error)
	OpenWindow(ctx context.Context, rawURL string, geometry Geometry) (*HostWindow, error)
	CurrentWindow(ctx context.Context) (HostWindow, error)
}

// Position is an explicit placement hint for CreateWindow. When absent the
// popup is centered over the focused host window.
type Position struct {
	Left int
	Top  int
}

const (
	popupWidth  = 375
	popupHeight = 600
)

var entryDocuments = map[models.WindowType]string{
	models.WindowTypeMain:         "index.html",
	models.WindowTypeBackground:   "background.html",
	models.WindowTypeRegistration: "register.html",
}

type Registry struct {
	store storage.Store
	host  Host
	log   *slog.Logger
}

func NewRegistry(store storage.Store, host Host, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: store, host: host, log: log}
}

func windowKey(id int64) string {
	return windowPrefix + strconv.FormatInt(id, 10)
}

// CreateWindow opens the entry document for typ as a popup and records it.
// Window creation is best-effort UI: a host refusal is logged and reported
// as a nil handle, not an error.
func (r *Registry) CreateWindow(ctx context.Context, typ models.WindowType, searchParams url.Values, hint *Position) (*HostWindow, error) {
	document, ok := entryDocuments[typ]
	if !ok {
		return nil, fmt.Errorf("unknown window type %q", typ)
	}
	rawURL := document
	if len(searchParams) > 0 {
		rawURL += "?" + searchParams.Encode()
	}

	geometry := Geometry{Width: popupWidth, Height: popupHeight}
	if hint != nil {
		geometry.Left = hint.Left
		geometry.Top = hint.Top
	} else {
		geometry.Left, geometry.Top = r.centeredPosition(ctx)
	}

	handle, err := r.host.OpenWindow(ctx, rawURL, geometry)
	if err != nil || handle == nil {
		r.log.Warn("host declined to open window", "type", typ, "error", err)
		return nil, nil
	}

	record := models.AppWindowRecord{
		WindowID: handle.ID,
		Type:     typ,
		Left:     geometry.Left,
		Top:      geometry.Top,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, windowKey(handle.ID), raw); err != nil {
		return nil, err
	}
	return handle, nil
}

// centeredPosition places the popup over the middle of the focused host
// window, falling back to the origin when the host cannot report one.
func (r *Registry) centeredPosition(ctx context.Context) (int, int) {
	current, err := r.host.CurrentWindow(ctx)
	if err != nil {
		r.log.Warn("current window unavailable, using default position", "error", err)
		return 0, 0
	}
	left := current.Geometry.Left + (current.Geometry.Width-popupWidth)/2
	top := current.Geometry.Top + (current.Geometry.Height-popupHeight)/2
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	return left, top
}

// Hydrate reconciles persisted records against the host platform's live
// window list, pruning every record whose window no longer exists. Run on
// every privileged-context cold start; records may be stale from a
// previous process's lifetime.
func (r *Registry) Hydrate(ctx context.Context) error {
	live, err := r.host.ListWindows(ctx)
	if err != nil {
		return err
	}
	liveIDs := make(map[int64]struct{}, len(live))
	for _, w := range live {
		liveIDs[w.ID] = struct{}{}
	}

	raw, err := r.store.GetAll(ctx, windowPrefix)
	if err != nil {
		return err
	}
	var stale []string
	for key, value := range raw {
		var record models.AppWindowRecord
		if err := json.Unmarshal(value, &record); err != nil {
			stale = append(stale, key)
			continue
		}
		if _, ok := liveIDs[record.WindowID]; !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	r.log.Info("pruned stale window records", "count", len(stale))
	return r.store.Remove(ctx, stale...)
}

func (r *Registry) GetByType(ctx context.Context, typ models.WindowType) ([]models.AppWindowRecord, error) {
	raw, err := r.store.GetAll(ctx, windowPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]models.AppWindowRecord, 0, len(raw))
	for _, value := range raw {
		var record models.AppWindowRecord
		if err := json.Unmarshal(value, &record); err != nil {
			continue
		}
		if record.Type == typ {
			out = append(out, record)
		}
	}
	return out, nil
}

// Remove drops the record for a window the extension closed itself.
func (r *Registry) Remove(ctx context.Context, windowID int64) error {
	return r.store.Remove(ctx, windowKey(windowID))
}
