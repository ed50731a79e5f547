// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"codeberg.org/kantama/portal/internal/metrics"
)

var (
	// ErrQueueFull is returned when the delivery queue has no room left.
	ErrQueueFull = errors.New("notice queue is full")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("sender is closed")
)

type job struct {
	ctx  context.Context
	to   string
	kind Kind
	data Data
}

// AsyncSender queues notices and delivers them from a fixed pool of workers,
// so request handlers never wait on the mail relay.
type AsyncSender struct {
	next   Sender
	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewAsyncSender starts workers goroutines draining a queue of queueSize.
func NewAsyncSender(next Sender, workers, queueSize int) *AsyncSender {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)

	s := &AsyncSender{
		next: next,
		jobs: make(chan job, queueSize),
	}
	for range workers {
		s.wg.Add(1)
		go s.work()
	}
	return s
}

// Send enqueues the notice. It fails with ErrQueueFull instead of blocking.
func (s *AsyncSender) Send(ctx context.Context, to string, kind Kind, data Data) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: %w", ErrDelivery, ErrClosed)
	}

	select {
	case s.jobs <- job{ctx: context.WithoutCancel(ctx), to: to, kind: kind, data: data}:
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrDelivery, ErrQueueFull)
	}
}

// Close stops accepting notices and waits until the queue is drained.
func (s *AsyncSender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AsyncSender) work() {
	defer s.wg.Done()
	for j := range s.jobs {
		if err := s.next.Send(j.ctx, j.to, j.kind, j.data); err != nil {
			slog.Warn("notification_failed", "to", j.to, "kind", string(j.kind), "error", err)
			metrics.NotificationsFailed.WithLabelValues(string(j.kind)).Inc()
		}
	}
}
