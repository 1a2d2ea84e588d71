// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch follows a directory of network files.
//
// Every *.yaml, *.yml and *.hcl file in the directory (not its
// subdirectories) is a network named after the file stem: "xor.yaml"
// is the network "xor". Bursts of editor writes are debounced into one
// batch per quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed for a network file.
type Op int

const (
	// OpUpsert means the file was created or written.
	OpUpsert Op = iota

	// OpRemove means the file was removed or renamed away.
	OpRemove
)

// String returns "upsert" or "remove".
func (op Op) String() string {
	switch op {
	case OpUpsert:
		return "upsert"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one debounced change to a network file.
type Change struct {
	// Path is the file path.
	Path string

	// Name is the network name (the file stem).
	Name string

	// Format is the document format derived from the extension.
	Format netfile.Format

	Op   Op
	Time time.Time
}

// Handler receives each debounced batch. Changes are deduplicated per path,
// keeping the latest.
type Handler func(ctx context.Context, changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is delivered.
	Debounce time.Duration

	// BufferSize bounds pending raw events; overflow is dropped.
	BufferSize int

	// Logger receives watcher errors. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns a 200ms debounce.
func DefaultOptions() Options {
	return Options{
		Debounce:   200 * time.Millisecond,
		BufferSize: 256,
	}
}

// Watcher watches one directory for network file changes.
//
// Thread Safety: Start and Stop are safe to call from any goroutine. The
// handler is called from a single goroutine.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New creates a Watcher for dir. opts may be nil.
func New(dir string, handler Handler, opts *Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultOptions().BufferSize
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		watcher:  fw,
		handler:  handler,
		debounce: opts.Debounce,
		logger:   logger,
		changes:  make(chan Change, bufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Scan returns an OpUpsert change for every network file currently in the
// directory, sorted by path. It is used to load the directory once before
// watching it.
func (w *Watcher) Scan() ([]Change, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	now := time.Now()
	var changes []Change
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if c, ok := classify(filepath.Join(w.dir, e.Name()), OpUpsert, now); ok {
			changes = append(changes, c)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// Start begins watching. It returns immediately; batches are delivered
// until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	// Stop waits for the loops only when watching is set.
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watching = true

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching and waits for a pending batch to be delivered.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		wasWatching := w.watching
		w.watching = false
		w.mu.Unlock()

		if wasWatching {
			<-w.stopped
		}
	})
}

// IsWatching reports whether Start has been called and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			op := OpUpsert
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				op = OpRemove
			} else if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			change, ok := classify(event.Name, op, time.Now())
			if !ok {
				continue
			}
			select {
			case w.changes <- change:
			default:
				w.logger.Warn("watch buffer full, dropping change",
					slog.String("path", change.Path))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("dir", w.dir), slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer close(w.stopped)

	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			w.handler(ctx, deduplicate(batch))
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// classify turns a path into a Change if it names a network file.
func classify(path string, op Op, at time.Time) (Change, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return Change{}, false
	}
	format, err := netfile.FormatFromPath(path)
	if err != nil {
		return Change{}, false
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return Change{}, false
	}
	return Change{Path: path, Name: name, Format: format, Op: op, Time: at}, true
}

// deduplicate keeps the latest change per path, in first-seen order.
func deduplicate(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	result := make([]Change, 0, len(changes))
	for _, c := range changes {
		if idx, ok := seen[c.Path]; ok {
			result[idx] = c
			continue
		}
		seen[c.Path] = len(result)
		result = append(result, c)
	}
	return result
}
