// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// progressBar is a terminal progress bar for a single task.
type progressBar struct {
	tracker *progress.Tracker
	done    chan struct{}
}

func newProgress(w io.Writer, msg string, total int) *progressBar {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(true)
	pw.SetTrackerLength(40)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true

	p := &progressBar{
		tracker: &progress.Tracker{Message: msg, Total: int64(total), Units: progress.UnitsDefault},
		done:    make(chan struct{}),
	}
	pw.AppendTracker(p.tracker)
	go func() {
		defer close(p.done)
		pw.Render()
	}()
	return p
}

// Increment advances the bar by n.
func (p *progressBar) Increment(n int64) { p.tracker.Increment(n) }

// Done completes the bar and waits for the final render.
func (p *progressBar) Done() {
	p.tracker.MarkAsDone()
	<-p.done
}
