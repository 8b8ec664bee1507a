// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher delivers entries to a Sink asynchronously through a buffered
// channel with a single consumer goroutine. Record never blocks the caller:
// when the buffer is full the entry is dropped and counted.
type Dispatcher struct {
	sink      Sink
	logger    *slog.Logger
	ch        chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// DefaultBufferSize is the dispatcher channel capacity when none is given.
const DefaultBufferSize = 1024

// writeTimeout bounds a single sink write so a stalled store cannot wedge
// the consumer goroutine.
const writeTimeout = 15 * time.Second

// NewDispatcher creates a Dispatcher and starts its consumer goroutine.
// Close must be called to drain and stop it.
func NewDispatcher(sink Sink, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		ch:     make(chan Entry, buffer),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case entry := <-d.ch:
			d.write(entry)
		case <-d.done:
			// Drain whatever is buffered before exiting.
			for {
				select {
				case entry := <-d.ch:
					d.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.sink.Write(ctx, entry); err != nil {
		d.logger.Error("audit write failed",
			"action", string(entry.Action),
			"entry_id", entry.ID.String(),
			"error", err)
	}
}

// Record implements Recorder. Entries offered after Close are dropped.
func (d *Dispatcher) Record(_ context.Context, entry Entry) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- entry:
	case <-d.done:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of entries discarded due to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close drains the buffer and stops the consumer goroutine.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Compile-time interface check.
var _ Recorder = (*Dispatcher)(nil)
