// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gt provides types for invoking the GenomeTools gt program.
package gt

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/biogo/external"
)

// GFF3 is the gt gff3 GFF3 parser, sorter and tidier.
type GFF3 struct {
	// Usage: gt gff3 [option ...] [GFF3_file ...]
	//
	// For details relating to options and parameters, see the GenomeTools manual.
	//
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}gt{{end}}{{split}}gff3"` // gt gff3

	Sort      bool   `buildarg:"{{if .}}-sort{{end}}"`              // -sort
	RetainIDs bool   `buildarg:"{{if .}}-retainids{{end}}"`         // -retainids
	Tidy      bool   `buildarg:"{{if .}}-tidy{{end}}"`              // -tidy
	Force     bool   `buildarg:"{{if .}}-force{{end}}"`             // -force
	Out       string `buildarg:"{{with .}}-o{{split}}{{.}}{{end}}"` // -o <s>

	// In is the input GFF3 file.
	In string

	// ExtraFlags will be passed through to gt gff3 as flags.
	ExtraFlags string
}

func (g GFF3) BuildCommand() (*exec.Cmd, error) {
	if g.In == "" {
		return nil, errors.New("gt gff3: missing input filename")
	}
	var extra []string
	if g.ExtraFlags != "" {
		extra = strings.Split(g.ExtraFlags, " ")
	}
	cl := external.Must(external.Build(g))
	args := append(cl[1:], extra...)
	return exec.Command(cl[0], append(args, g.In)...), nil
}
