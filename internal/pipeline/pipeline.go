// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline runs peak annotation over a pool of workers and feeds
// the results to a single supervisor.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kortschak/utr/internal/annotate"
	"github.com/kortschak/utr/internal/model"
)

// Annotator evaluates a single peak.
type Annotator interface {
	Annotate(model.Peak) annotate.Message
}

// Factory returns the Annotator for the worker with the given index.
// Each worker calls its Factory once before evaluating its batch, so
// resources opened by the Factory belong to that worker alone.
type Factory func(worker int) (Annotator, error)

// Progress is notified of each peak processed.
type Progress interface {
	Increment(n int64)
}

// WorkerError is the failure of a pipeline worker.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

const (
	// DefaultPoll is the default supervisor polling interval.
	DefaultPoll = 100 * time.Millisecond

	// BufferPerWorker is the default number of result messages
	// buffered for each worker.
	BufferPerWorker = 4
)

// Config holds the parameters for Run.
type Config struct {
	// Workers is the number of workers. Values less than one are
	// treated as one.
	Workers int

	// Buffer is the capacity of the result channel. If zero,
	// BufferPerWorker messages per worker may be buffered.
	Buffer int

	// Poll is the maximum time the supervisor waits for a message
	// before checking worker state. If zero, DefaultPoll is used.
	Poll time.Duration

	// Progress receives progress notifications. It may be nil.
	Progress Progress

	// Log is the run logger. It may be nil.
	Log *zap.SugaredLogger
}

// Batches partitions peaks into at most n contiguous batches with sizes
// differing by no more than one.
func Batches(peaks []model.Peak, n int) [][]model.Peak {
	if len(peaks) == 0 {
		return nil
	}
	n = max(1, min(n, len(peaks)))
	batches := make([][]model.Peak, 0, n)
	size, rem := len(peaks)/n, len(peaks)%n
	for i := 0; i < n; i++ {
		l := size
		if i < rem {
			l++
		}
		batches = append(batches, peaks[:l:l])
		peaks = peaks[l:]
	}
	return batches
}

// Run annotates peaks using workers obtained from newAnnotator and passes
// each result to fold. fold is only ever called from the goroutine that
// called Run. Messages are delivered in no particular order.
//
// If a worker fails or ctx is cancelled, outstanding workers are stopped
// and the first error is returned after all buffered results have been
// passed to fold.
func Run(ctx context.Context, peaks []model.Peak, newAnnotator Factory, fold func(annotate.Message), cfg Config) error {
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = BufferPerWorker * max(1, cfg.Workers)
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	batches := Batches(peaks, cfg.Workers)
	log.Debugf("evaluating %s peaks in %d batches", humanize.Comma(int64(len(peaks))), len(batches))

	results := make(chan annotate.Message, cfg.Buffer)
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range batches {
		g.Go(func() (err error) {
			defer func() {
				r := recover()
				if r != nil {
					log.Debugf("worker %d panic: %v\n%s", i, r, debug.Stack())
					err = &WorkerError{Worker: i, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			a, err := newAnnotator(i)
			if err != nil {
				return &WorkerError{Worker: i, Err: err}
			}
			for _, p := range b {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				msg := a.Annotate(p)
				select {
				case results <- msg:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			log.Debugf("worker %d completed %d peaks", i, len(b))
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var n int64
	deliver := func(msg annotate.Message) {
		fold(msg)
		n++
		if cfg.Progress != nil {
			cfg.Progress.Increment(1)
		}
	}
	for {
		select {
		case msg := <-results:
			deliver(msg)
		case err := <-done:
			for {
				select {
				case msg := <-results:
					deliver(msg)
				default:
					log.Debugf("supervisor received %s messages", humanize.Comma(n))
					return err
				}
			}
		case <-time.After(cfg.Poll):
		}
	}
}
