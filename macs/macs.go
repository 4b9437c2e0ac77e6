// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package macs provides types and functions for invoking the MACS2 peak
// caller and interpreting the returned results.
package macs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/external"

	"github.com/kortschak/utr/internal/model"
)

// CallPeak is the MACS2 callpeak subcommand.
type CallPeak struct {
	// Usage: macs2 callpeak -t <file> [option ...]
	//
	// For details relating to options and parameters, see the MACS2 documentation.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}macs2{{end}}{{split}}callpeak"` // macs2 callpeak

	// Input:
	Treatment string `buildarg:"-t{{split}}{{.}}"`                        // -t <s>
	Format    string `buildarg:"{{with .}}-f{{split}}{{.}}{{end}}"`       // -f <s>
	GSize     string `buildarg:"{{with .}}-g{{split}}{{.}}{{end}}"`       // -g <s>
	Name      string `buildarg:"{{with .}}-n{{split}}{{.}}{{end}}"`       // -n <s>
	OutDir    string `buildarg:"{{with .}}--outdir{{split}}{{.}}{{end}}"` // --outdir <s>

	// Model:
	NoModel bool `buildarg:"{{if .}}--nomodel{{end}}"`               // --nomodel
	ExtSize int  `buildarg:"{{if .}}--extsize{{split}}{{.}}{{end}}"` // --extsize <n>

	// Peak calling:
	Broad       bool    `buildarg:"{{if .}}--broad{{end}}"`                      // --broad
	QValue      float64 `buildarg:"{{if .}}-q{{split}}{{.}}{{end}}"`             // -q <f.>
	BroadCutoff float64 `buildarg:"{{if .}}--broad-cutoff{{split}}{{.}}{{end}}"` // --broad-cutoff <f.>

	// ExtraFlags will be passed through to macs2 as flags.
	ExtraFlags string
}

func (c CallPeak) BuildCommand() (*exec.Cmd, error) {
	if c.Treatment == "" {
		return nil, errors.New("macs2 callpeak: missing treatment filename")
	}
	var extra []string
	if c.ExtraFlags != "" {
		extra = strings.Split(c.ExtraFlags, " ")
	}
	cl := external.Must(external.Build(c))
	return exec.Command(cl[0], append(cl[1:], extra...)...), nil
}

// BroadPeakFile returns the path of the broad peak output of a callpeak
// run with the given output directory and name.
func BroadPeakFile(dir, name string) string {
	return filepath.Join(dir, name+"_peaks.broadPeak")
}

// ParseBroadPeak reads BED6+3 broad peak records from r, assigning each
// the given strand. Coordinates are 0-based half-open in the input.
func ParseBroadPeak(r io.Reader, strand seq.Strand) ([]model.Peak, error) {
	// column indices for broadPeak.
	const (
		chrom = iota
		start
		end
		name
		score
		_ // strand
		signalValue
		pValue
		qValue
		numFields
	)

	var peaks []model.Peak
	sc := bufio.NewScanner(r)
	var line int
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 || bytes.HasPrefix(b, []byte("#")) || bytes.HasPrefix(b, []byte("track")) {
			continue
		}
		f := strings.Split(string(b), "\t")
		if len(f) != numFields {
			return nil, fmt.Errorf("unexpected number of fields in peak line %d: got:%d want:%d", line, len(f), numFields)
		}
		var (
			p   = model.Peak{Chrom: f[chrom], Name: f[name], Strand: strand}
			err error
			s   int
			e   int
		)
		s, err = strconv.Atoi(f[start])
		if err != nil {
			return nil, fmt.Errorf("error in peak line %d: %w", line, err)
		}
		e, err = strconv.Atoi(f[end])
		if err != nil {
			return nil, fmt.Errorf("error in peak line %d: %w", line, err)
		}
		p.Range = model.FromHalfOpen(s, e)
		if !p.Range.Valid() {
			return nil, fmt.Errorf("empty peak at line %d", line)
		}
		p.Score, err = strconv.Atoi(f[score])
		if err != nil {
			return nil, fmt.Errorf("error in peak line %d: %w", line, err)
		}
		for _, v := range []struct {
			dst *float64
			col int
		}{
			{dst: &p.SignalValue, col: signalValue},
			{dst: &p.PValue, col: pValue},
			{dst: &p.QValue, col: qValue},
		} {
			*v.dst, err = strconv.ParseFloat(f[v.col], 64)
			if err != nil {
				return nil, fmt.Errorf("error in peak line %d: %w", line, err)
			}
		}
		peaks = append(peaks, p)
	}
	return peaks, sc.Err()
}
