// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package macs

import (
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/utr/internal/model"
)

func TestCallPeakBuildCommand(t *testing.T) {
	c := CallPeak{Treatment: "forward.bam", Name: "forward", OutDir: ".cache", NoModel: true, ExtSize: 200, Broad: true}
	cmd, err := c.BuildCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"macs2", "callpeak", "-t", "forward.bam", "-n", "forward", "--outdir", ".cache", "--nomodel", "--extsize", "200", "--broad"}
	if !cmp.Equal(cmd.Args, want) {
		t.Errorf("unexpected command:\n%s", cmp.Diff(want, cmd.Args))
	}

	_, err = CallPeak{Name: "forward"}.BuildCommand()
	if err == nil {
		t.Error("expected error for missing treatment")
	}
}

func TestParseBroadPeak(t *testing.T) {
	const peaks = `chr1	13999	17300	forward_peak_1	45	.	3.1	6.2	4.5
track name=ignored
chr2	0	10	forward_peak_2	12	.	1.5	2.0	0.5
`
	got, err := ParseBroadPeak(strings.NewReader(peaks), seq.Plus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Peak{
		{Chrom: "chr1", Range: model.Range{Start: 14000, End: 17300}, Name: "forward_peak_1", Score: 45, Strand: seq.Plus, SignalValue: 3.1, PValue: 6.2, QValue: 4.5},
		{Chrom: "chr2", Range: model.Range{Start: 1, End: 10}, Name: "forward_peak_2", Score: 12, Strand: seq.Plus, SignalValue: 1.5, PValue: 2, QValue: 0.5},
	}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected peaks:\n%s", cmp.Diff(want, got))
	}

	for _, bad := range []string{
		"chr1\t10\t20\tp\n",
		"chr1\tx\t20\tp\t1\t.\t1\t1\t1\n",
		"chr1\t20\t20\tp\t1\t.\t1\t1\t1\n",
		"chr1\t10\t20\tp\t1\t.\t1\tNaN?\t1\n",
	} {
		_, err := ParseBroadPeak(strings.NewReader(bad), seq.Minus)
		if err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestBroadPeakFile(t *testing.T) {
	if got, want := BroadPeakFile(".cache", "reverse"), ".cache/reverse_peaks.broadPeak"; got != want {
		t.Errorf("unexpected file name: got:%q want:%q", got, want)
	}
}
