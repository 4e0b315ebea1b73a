// Package events holds the durable queue of pending cross-context
// requests. The queue is the single source of truth for what the
// extension is currently waiting to resolve; the host platform may kill
// the privileged process between a request arriving and the human
// responding, so every entry lives in the persistent store.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"lumen-wallet/go-core/internal/storage"
	"lumen-wallet/go-core/pkg/models"
)

const eventPrefix = "events/"

var (
	ErrNotFound      = errors.New("pending event not found")
	ErrMalformedData = errors.New("persisted event is malformed")
)

type Queue struct {
	store storage.Store
}

func NewQueue(store storage.Store) *Queue {
	return &Queue{store: store}
}

func eventKey(id string) string {
	return eventPrefix + id
}

// SaveOrReplace upserts by id. Saving the same event twice is a no-op the
// second time; saving a different payload under an existing id replaces it
// in place, never duplicates.
func (q *Queue) SaveOrReplace(ctx context.Context, event models.PendingEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, eventKey(event.ID), raw)
}

func (q *Queue) FetchByID(ctx context.Context, id string) (models.PendingEvent, error) {
	raw, ok, err := q.store.Get(ctx, eventKey(id))
	if err != nil {
		return models.PendingEvent{}, err
	}
	if !ok {
		return models.PendingEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var event models.PendingEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return models.PendingEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedData, id, err)
	}
	return event, nil
}

func (q *Queue) FetchAll(ctx context.Context) ([]models.PendingEvent, error) {
	raw, err := q.store.GetAll(ctx, eventPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingEvent, 0, len(raw))
	for key, value := range raw {
		var event models.PendingEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedData, key, err)
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *Queue) FetchByKind(ctx context.Context, kind models.EventKind) ([]models.PendingEvent, error) {
	all, err := q.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingEvent, 0, len(all))
	for _, event := range all {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out, nil
}

// RemoveByID removes the entry for id. Removing an id that is not queued
// is a no-op.
func (q *Queue) RemoveByID(ctx context.Context, id string) error {
	return q.store.Remove(ctx, eventKey(id))
}
