// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/utr/internal/annotate"
	"github.com/kortschak/utr/internal/model"
)

func peaks(n int) []model.Peak {
	p := make([]model.Peak, n)
	for i := range p {
		p[i] = model.Peak{Chrom: "chr1", Name: fmt.Sprintf("peak_%d", i), Range: model.Range{Start: i*100 + 1, End: i*100 + 50}}
	}
	return p
}

func TestBatches(t *testing.T) {
	tests := []struct {
		peaks int
		n     int
		want  []int
	}{
		{peaks: 0, n: 4, want: nil},
		{peaks: 10, n: 1, want: []int{10}},
		{peaks: 10, n: 3, want: []int{4, 3, 3}},
		{peaks: 10, n: 0, want: []int{10}},
		{peaks: 2, n: 4, want: []int{1, 1}},
	}
	for _, test := range tests {
		p := peaks(test.peaks)
		b := Batches(p, test.n)
		var got []int
		var flat []model.Peak
		for _, batch := range b {
			got = append(got, len(batch))
			flat = append(flat, batch...)
		}
		if !cmp.Equal(got, test.want) {
			t.Errorf("unexpected batch sizes for %d peaks in %d batches: got:%v want:%v", test.peaks, test.n, got, test.want)
		}
		if len(flat) != 0 && !cmp.Equal(flat, p) {
			t.Errorf("batches do not partition peaks contiguously for %d peaks in %d batches", test.peaks, test.n)
		}
	}
}

type echo struct{}

func (echo) Annotate(p model.Peak) annotate.Message {
	return annotate.Message{Peak: p, Outcome: annotate.NoUTR}
}

type counter struct{ n atomic.Int64 }

func (c *counter) Increment(n int64) { c.n.Add(n) }

func TestRun(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		p := peaks(100)
		var progress counter
		var got []string
		err := Run(context.Background(), p,
			func(int) (Annotator, error) { return echo{}, nil },
			func(m annotate.Message) { got = append(got, m.Peak.Name) },
			Config{Workers: workers, Buffer: 4, Progress: &progress},
		)
		if err != nil {
			t.Errorf("unexpected error with %d workers: %v", workers, err)
		}
		var want []string
		for _, q := range p {
			want = append(want, q.Name)
		}
		sort.Strings(got)
		sort.Strings(want)
		if !cmp.Equal(got, want) {
			t.Errorf("unexpected messages with %d workers:\n%s", workers, cmp.Diff(want, got))
		}
		if n := progress.n.Load(); n != int64(len(p)) {
			t.Errorf("unexpected progress with %d workers: got:%d want:%d", workers, n, len(p))
		}
	}
}

type tally struct {
	n *atomic.Int64
}

func (t tally) Annotate(p model.Peak) annotate.Message {
	t.n.Add(1)
	return annotate.Message{Peak: p, Outcome: annotate.NoUTR}
}

func TestRunDefaultBufferBounded(t *testing.T) {
	const workers = 2
	var annotated atomic.Int64
	var (
		first     = true
		seenFirst int64
	)
	err := Run(context.Background(), peaks(1000),
		func(int) (Annotator, error) { return tally{&annotated}, nil },
		func(annotate.Message) {
			if first {
				first = false
				time.Sleep(50 * time.Millisecond)
				seenFirst = annotated.Load()
			}
		},
		Config{Workers: workers},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One delivered message, a full channel and one pending send
	// per worker.
	limit := int64(1 + BufferPerWorker*workers + workers)
	if seenFirst > limit {
		t.Errorf("unexpected number of annotated peaks while supervisor was blocked: got:%d want<=%d", seenFirst, limit)
	}
	if n := annotated.Load(); n != 1000 {
		t.Errorf("unexpected number of annotated peaks: got:%d want:1000", n)
	}
}

var errOpen = errors.New("cannot open index")

func TestRunFactoryError(t *testing.T) {
	err := Run(context.Background(), peaks(10),
		func(i int) (Annotator, error) {
			if i == 1 {
				return nil, errOpen
			}
			return echo{}, nil
		},
		func(annotate.Message) {},
		Config{Workers: 2},
	)
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("expected worker error, got: %v", err)
	}
	if werr.Worker != 1 || !errors.Is(err, errOpen) {
		t.Errorf("unexpected worker error: %v", werr)
	}
}

type panicker struct{}

func (panicker) Annotate(model.Peak) annotate.Message { panic("bad peak") }

func TestRunPanic(t *testing.T) {
	err := Run(context.Background(), peaks(10),
		func(int) (Annotator, error) { return panicker{}, nil },
		func(annotate.Message) {},
		Config{Workers: 2},
	)
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("expected worker error, got: %v", err)
	}
}

func TestRunCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n int
	err := Run(ctx, peaks(100),
		func(int) (Annotator, error) { return echo{}, nil },
		func(annotate.Message) { n++ },
		Config{Workers: 4, Buffer: 1},
	)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: got:%v want:%v", err, context.Canceled)
	}
	if n == 100 {
		t.Error("expected cancelled run to stop early")
	}
}
