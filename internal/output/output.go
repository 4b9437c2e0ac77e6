// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package output writes merged annotations in the requested dialect and
// tidies the result.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kortschak/utr/gt"
	"github.com/kortschak/utr/internal/gff"
	"github.com/kortschak/utr/internal/model"
)

// Write writes the features of sets to w in the given dialect. Each
// inferred 3' UTR follows the features of its gene and, for GTF, is
// followed by an exon with the same coordinates. Coding gene features
// are omitted from GTF output since their gene_id attributes represent
// them implicitly.
func Write(w io.Writer, sets []model.FeatureSet, dialect model.Dialect) error {
	gw := gff.NewWriter(w, dialect, true)
	for _, set := range sets {
		geneID := set.Gene.ID
		for _, f := range set.Features {
			if dialect == model.GTF && model.IsType(f.Type, model.CodingGeneTypes) {
				continue
			}
			err := gw.Write(gff.Translate(f, dialect, geneID))
			if err != nil {
				return fmt.Errorf("%s: %w", f.ID, err)
			}
		}
		if set.UTR == nil {
			continue
		}
		utr := gff.Translate(set.UTR, dialect, geneID)
		err := gw.Write(utr)
		if err != nil {
			return fmt.Errorf("%s: %w", set.UTR.ID, err)
		}
		if dialect == model.GTF {
			exon := utr.Clone()
			exon.Type = model.Exon
			err = gw.Write(exon)
			if err != nil {
				return fmt.Errorf("%s: %w", set.UTR.ID, err)
			}
		}
	}
	return gw.Flush()
}

// TidyError is the failure of the external sort and tidy step.
type TidyError struct {
	Err error
}

func (e *TidyError) Error() string { return "gt gff3: " + e.Err.Error() }
func (e *TidyError) Unwrap() error { return e.Err }

// Finalizer produces the final output file from a staged annotation.
type Finalizer struct {
	// Cmd is the gt executable. If empty, gt is found in the PATH.
	Cmd string

	// Force allows the output file to be overwritten.
	Force bool

	// Log receives the output of gt. It may be nil.
	Log io.Writer

	// Logger is the run logger. It may be nil.
	Logger *zap.SugaredLogger
}

// Finalize writes the staged annotation to dst. GFF3 annotations are
// sorted and tidied by gt gff3. If gt is missing or fails, or the
// annotation is GTF, the staged file is copied to dst. A gt failure is
// logged and does not result in an error.
func (f Finalizer) Finalize(ctx context.Context, staged, dst string, dialect model.Dialect) error {
	log := f.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if dialect == model.GFF3 {
		err := f.tidy(ctx, staged, dst)
		if err == nil {
			log.Infof("successfully formatted GFF3 output file %s using genometools", dst)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			log.Warn("genometools binary can't be called: please ensure it is installed")
		}
		log.Warnf("some issues were encountered when processing output file: %v", err)
	}
	return copyFile(dst, staged)
}

func (f Finalizer) tidy(ctx context.Context, staged, dst string) error {
	cmd, err := gt.GFF3{Cmd: f.Cmd, Sort: true, RetainIDs: true, Tidy: true, Force: f.Force, Out: dst, In: staged}.BuildCommand()
	if err != nil {
		return &TidyError{Err: err}
	}
	cmd = exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
	cmd.Stdout = f.Log
	cmd.Stderr = f.Log
	err = cmd.Run()
	if err != nil {
		return &TidyError{Err: err}
	}
	_, err = os.Stat(dst)
	if err != nil {
		return &TidyError{Err: err}
	}
	return nil
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	err = os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
