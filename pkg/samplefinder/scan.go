package samplefinder

import (
	"context"

	"github.com/google/uuid"
)

// eventBuffer lets a background scan run a little ahead of a slow consumer.
const eventBuffer = 64

// Scan is a FindMatches call running on its own goroutine.
type Scan struct {
	ID    string
	Query string
	Root  string

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	matches []Match
	err     error
}

// Start launches FindMatches in the background. Events() must be drained,
// or Wait called, for the scan to make progress.
func (f *Finder) Start(ctx context.Context, queryPath, root string, threshold Threshold) *Scan {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scan{
		ID:     uuid.NewString(),
		Query:  queryPath,
		Root:   root,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(s.done)
		defer cancel()
		defer close(s.events)
		s.matches, s.err = f.FindMatches(ctx, queryPath, root, threshold, s.events)
	}()
	return s
}

// Events is closed when the scan finishes.
func (s *Scan) Events() <-chan Event { return s.events }

// Done is closed once results are available.
func (s *Scan) Done() <-chan struct{} { return s.done }

func (s *Scan) Cancel() { s.cancel() }

// Wait discards any undelivered events and blocks until the scan finishes.
func (s *Scan) Wait() ([]Match, error) {
	for range s.events {
	}
	<-s.done
	return s.matches, s.err
}
