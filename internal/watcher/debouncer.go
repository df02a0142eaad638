package watcher

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Debouncer groups rapid file changes together. A batch is flushed once no
// event arrived for the delay; within a batch the last event per path wins.
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending map[string]ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 16),
		pending: make(map[string]ChangeEvent),
	}
}

// Add queues an event.
func (d *Debouncer) Add(event ChangeEvent) {
	d.events <- event
}

// Output returns the channel of flushed batches.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Run consumes events until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case event := <-d.events:
			d.addEvent(ctx, event)
		}
	}
}

// Stop cancels a pending flush.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) addEvent(ctx context.Context, event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending[event.Path] = merge(d.pending[event.Path], event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.flush(ctx)
	})
}

// merge keeps a create that is followed by writes a create.
func merge(prev, next ChangeEvent) ChangeEvent {
	if prev.Path != "" && prev.Type == EventTypeCreated && next.Type == EventTypeModified {
		next.Type = EventTypeCreated
	}
	return next
}

func (d *Debouncer) flush(ctx context.Context) {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}
	events := make([]ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		events = append(events, event)
	}
	d.pending = make(map[string]ChangeEvent)
	d.mutex.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	case <-ctx.Done():
	}
}
