// Package watcher turns filesystem notifications for the local content
// directory into a stream of per-item change events for the watch daemon.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MKhiriev/go-confluence-sync/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// EventKind classifies what happened to a local content file.
type EventKind int

const (
	// Modified covers creation and content writes alike; the next sync pass
	// decides which by consulting the state store.
	Modified EventKind = iota
	// Removed covers deletion and rename-away.
	Removed
)

// Event reports one observed change to a local content file.
type Event struct {
	LocalID string
	Kind    EventKind
}

// Watcher watches the content directory and emits an Event per content file
// change. Non-content files (temp files from atomic writes, editor droppings)
// are filtered out before they reach the consumer.
type Watcher struct {
	fs     *fsnotify.Watcher
	dir    string
	log    *logger.Logger
	events chan Event
	errs   chan error
	done   chan struct{}
}

// New starts watching dir. The caller owns the returned Watcher and must call
// Stop when done.
func New(dir string, log *logger.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err = fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		fs:     fs,
		dir:    dir,
		log:    log,
		events: make(chan Event, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

// Events returns the channel of filtered content-file events. The channel is
// closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop shuts the watcher down and closes the event channel.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return
		case fsEvent, ok := <-w.fs.Events:
			if !ok {
				return
			}
			event, relevant := w.classify(fsEvent)
			if !relevant {
				continue
			}
			w.log.Debug().Str("local_id", event.LocalID).Stringer("op", fsEvent.Op).Msg("content file changed")
			select {
			case w.events <- event:
			case <-w.done:
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				w.log.Error().Err(err).Msg("dropping watcher error, channel full")
			}
		}
	}
}

// classify maps a raw fsnotify event onto a content-file Event, reporting
// false for files the sync engine does not track.
func (w *Watcher) classify(fsEvent fsnotify.Event) (Event, bool) {
	name := filepath.Base(fsEvent.Name)
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return Event{}, false
	}

	localID := strings.TrimSuffix(name, ".json")

	switch {
	case fsEvent.Op.Has(fsnotify.Remove) || fsEvent.Op.Has(fsnotify.Rename):
		return Event{LocalID: localID, Kind: Removed}, true
	case fsEvent.Op.Has(fsnotify.Create) || fsEvent.Op.Has(fsnotify.Write):
		return Event{LocalID: localID, Kind: Modified}, true
	default:
		// Chmod and friends carry no content change.
		return Event{}, false
	}
}
