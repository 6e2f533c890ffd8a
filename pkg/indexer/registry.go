package indexer

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"

	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
)

// Handler persists the entities of one event kind inside the transaction that
// stores the event's log. logID is the primary key of the stored log row.
type Handler interface {
	Persist(ctx context.Context, tx *sql.Tx, ev *Event, logID int64) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, tx *sql.Tx, ev *Event, logID int64) error

// Persist calls f.
func (f HandlerFunc) Persist(ctx context.Context, tx *sql.Tx, ev *Event, logID int64) error {
	return f(ctx, tx, ev, logID)
}

var (
	registry = make(map[string]Handler)
	mu       sync.RWMutex
)

// Register registers the handler for the given event name.
// This is typically called in init() functions of storer packages.
// The name is case-insensitive.
func Register(eventName string, h Handler) {
	mu.Lock()
	defer mu.Unlock()

	name := strings.ToLower(eventName)
	if _, exists := registry[name]; exists {
		logger.GetDefaultLogger().Infof("handler for event %s already registered. It will be overwritten.", eventName)
	}

	registry[name] = h
}

// GetHandler returns the handler for the given event name, or nil.
func GetHandler(eventName string) Handler {
	mu.RLock()
	defer mu.RUnlock()

	return registry[strings.ToLower(eventName)]
}

// ListRegistered returns the sorted names of all events with a handler.
func ListRegistered() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)

	return names
}
