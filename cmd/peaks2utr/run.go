// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/biogo/biogo/seq"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kortschak/utr/internal/annotate"
	"github.com/kortschak/utr/internal/config"
	"github.com/kortschak/utr/internal/criteria"
	"github.com/kortschak/utr/internal/featuredb"
	"github.com/kortschak/utr/internal/logging"
	"github.com/kortschak/utr/internal/merge"
	"github.com/kortschak/utr/internal/model"
	"github.com/kortschak/utr/internal/output"
	"github.com/kortschak/utr/internal/pipeline"
	"github.com/kortschak/utr/internal/preprocess"
	"github.com/kortschak/utr/internal/sidetable"
	"github.com/kortschak/utr/macs"
)

const summaryFile = "summary_stats.txt"

var strands = []seq.Strand{seq.Plus, seq.Minus}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	err := os.MkdirAll(cfg.CacheDir, 0o755)
	if err != nil {
		return err
	}

	dbPath, err := prepare(ctx, cfg, log)
	if err != nil {
		return err
	}

	db, err := featuredb.Open(dbPath)
	if err != nil {
		return err
	}
	err = checkChromosomes(cfg.BAMIn, db)
	if err != nil {
		return err
	}

	var peaks []model.Peak
	for _, s := range strands {
		p, err := readPeaks(cfg, s)
		if err != nil {
			return err
		}
		log.Infof("read %s %s strand peaks", humanize.Comma(int64(len(p))), model.StrandName(s))
		peaks = append(peaks, p...)
	}

	failures := criteria.NewFailures()
	opts := annotate.Options{
		MaxDistance:     cfg.MaxDistance,
		Mode:            cfg.Mode(),
		FivePrimeExt:    cfg.FivePrimeExt,
		DoPseudo:        cfg.DoPseudo,
		NoStrandOverlap: cfg.NoStrandOverlap,
		Dialect:         db.Dialect(),
	}
	factory := func(worker int) (pipeline.Annotator, error) {
		idx, err := featuredb.Open(dbPath)
		if err != nil {
			return nil, err
		}
		tables := make(map[seq.Strand]sidetable.Tables)
		for _, s := range strands {
			tables[s], err = sidetable.Load(cfg.CacheDir, s, cfg.MinPileups)
			if err != nil {
				return nil, err
			}
		}
		return annotate.New(idx, tables, opts, failures, log.With("worker", worker)), nil
	}

	annotations := merge.New()
	bar := newProgress(os.Stderr, "iterating over peaks to annotate 3' UTRs", len(peaks))
	err = pipeline.Run(ctx, peaks, factory, annotations.Add, pipeline.Config{
		Workers:  cfg.Processors,
		Progress: bar,
		Log:      log,
	})
	bar.Done()
	if err != nil {
		return err
	}
	inferred := annotations.Len()
	n := annotations.Reconcile(db)
	log.Infof("inferred 3' UTRs for %s genes, carrying %s unchanged genes",
		humanize.Comma(int64(inferred)), humanize.Comma(int64(n)))

	err = writeOutput(ctx, cfg, log, annotations)
	if err != nil {
		return err
	}

	f, err := os.Create(summaryFile)
	if err != nil {
		return err
	}
	err = merge.WriteSummary(f, annotations.Summary(failures), name)
	if err != nil {
		f.Close()
		return err
	}
	log.Infof("summary statistics written to %s", summaryFile)
	return f.Close()
}

// prepare builds the cached intermediate files for the run and returns
// the path to the feature index.
func prepare(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (string, error) {
	bams, err := splitStrands(cfg, log)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(cfg.GFFIn), filepath.Ext(cfg.GFFIn))
	dbPath := cfg.Cached(base + ".db")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return buildIndex(cfg, log, dbPath)
	})
	for i, s := range strands {
		s := s
		bam := bams[i]
		g.Go(func() error {
			return prepareStrand(ctx, cfg, log, s, bam)
		})
	}
	return dbPath, g.Wait()
}

// splitStrands writes the forward and reverse strand reads of the input
// alignments to the cache, returning their paths.
func splitStrands(cfg *config.Config, log *zap.SugaredLogger) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(cfg.BAMIn), filepath.Ext(cfg.BAMIn))
	paths := make([]string, len(strands))
	missing := false
	for i, s := range strands {
		paths[i] = cfg.Cached(base + "." + model.StrandName(s) + ".bam")
		if !exists(paths[i]) {
			missing = true
		}
	}
	if !missing {
		log.Infof("using cached strand alignments for %s", cfg.BAMIn)
		return paths, nil
	}

	log.Infof("splitting %s into forward and reverse strands", cfg.BAMIn)
	src, err := os.Open(cfg.BAMIn)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	var tmps [2]*os.File
	for i := range tmps {
		tmps[i], err = os.CreateTemp(cfg.CacheDir, "split-*.bam")
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmps[i].Name())
		defer tmps[i].Close()
	}
	nf, nr, err := preprocess.SplitStrands(src, tmps[0], tmps[1], cfg.Processors)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.BAMIn, err)
	}
	log.Debugf("split %s forward and %s reverse reads", humanize.Comma(int64(nf)), humanize.Comma(int64(nr)))
	for i, f := range tmps {
		err = f.Close()
		if err != nil {
			return nil, err
		}
		err = os.Rename(f.Name(), paths[i])
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func buildIndex(cfg *config.Config, log *zap.SugaredLogger, path string) error {
	if exists(path) {
		log.Infof("using cached feature index %s", path)
		return nil
	}
	log.Infof("building feature index for %s", cfg.GFFIn)
	f, err := os.Open(cfg.GFFIn)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := featuredb.Create(path, f, cfg.InputDialect())
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%s: %w", cfg.GFFIn, err)
	}
	log.Debugf("indexed %s features", humanize.Comma(int64(n)))
	return nil
}

// prepareStrand builds the truncation points, coverage gaps and peaks
// for one strand.
func prepareStrand(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, s seq.Strand, bam string) error {
	strand := model.StrandName(s)
	if !cfg.SkipSoftClip {
		err := cached(cfg.Cached(sidetable.PointsFile(s)), log, func(w io.Writer) error {
			log.Infof("piling up %s strand soft-clipped read tails", strand)
			f, err := os.Open(bam)
			if err != nil {
				return err
			}
			defer f.Close()
			p, err := preprocess.PileupSoftClips(f, cfg.MinPolyTail)
			if err != nil {
				return fmt.Errorf("%s: %w", bam, err)
			}
			return p.Filter(cfg.MinPileups).WriteJSON(w)
		})
		if err != nil {
			return err
		}
	}
	err := cached(cfg.Cached(sidetable.GapsFile(s)), log, func(w io.Writer) error {
		log.Infof("finding %s strand zero coverage regions", strand)
		f, err := os.Open(bam)
		if err != nil {
			return err
		}
		defer f.Close()
		err = preprocess.ZeroCoverage(f, w)
		if err != nil {
			return fmt.Errorf("%s: %w", bam, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return callPeaks(ctx, cfg, log, s, bam)
}

func callPeaks(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, s seq.Strand, bam string) error {
	strand := model.StrandName(s)
	if exists(macs.BroadPeakFile(cfg.CacheDir, strand)) {
		log.Infof("using cached %s strand peaks", strand)
		return nil
	}
	log.Infof("calling %s strand peaks", strand)
	cmd, err := macs.CallPeak{
		Cmd:       cfg.MACS2,
		Treatment: bam,
		Name:      strand,
		OutDir:    cfg.CacheDir,
		NoModel:   true,
		ExtSize:   200,
		Broad:     true,
	}.BuildCommand()
	if err != nil {
		return err
	}
	macsLog, err := os.Create(cfg.Logged(strand + "_macs.log"))
	if err != nil {
		return err
	}
	defer macsLog.Close()
	capture := logging.Capture(log)
	defer capture.Close()

	cmd = exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
	cmd.Stdout = io.MultiWriter(macsLog, capture)
	cmd.Stderr = cmd.Stdout
	err = cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("macs2 can't be called: please ensure it is installed: %w", err)
		}
		return fmt.Errorf("macs2 callpeak %s strand: %w", strand, err)
	}
	return nil
}

func readPeaks(cfg *config.Config, s seq.Strand) ([]model.Peak, error) {
	f, err := os.Open(macs.BroadPeakFile(cfg.CacheDir, model.StrandName(s)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := macs.ParseBroadPeak(f, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return p, nil
}

func checkChromosomes(bam string, db *featuredb.DB) error {
	f, err := os.Open(bam)
	if err != nil {
		return err
	}
	defer f.Close()
	refs, err := preprocess.References(f)
	if err != nil {
		return fmt.Errorf("%s: %w", bam, err)
	}
	if len(preprocess.SharedChromosomes(refs, db.Chromosomes())) == 0 {
		return errors.New("no chromosome names in common between alignments and annotation")
	}
	return nil
}

func writeOutput(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, annotations *merge.Annotations) error {
	staged := cfg.Cached("staged" + filepath.Ext(cfg.Output))
	f, err := os.Create(staged)
	if err != nil {
		return err
	}
	err = output.Write(f, annotations.Sets(), cfg.OutputDialect())
	if err != nil {
		f.Close()
		return err
	}
	err = f.Close()
	if err != nil {
		return err
	}

	gtLog, err := os.Create(cfg.Logged("gt_gff3.log"))
	if err != nil {
		return err
	}
	defer gtLog.Close()
	capture := logging.Capture(log)
	defer capture.Close()
	err = output.Finalizer{
		Cmd:    cfg.GT,
		Force:  cfg.Force,
		Log:    io.MultiWriter(gtLog, capture),
		Logger: log,
	}.Finalize(ctx, staged, cfg.Output, cfg.OutputDialect())
	if err != nil {
		return err
	}
	log.Infof("annotations written to %s", cfg.Output)
	return nil
}

// cached calls build to write the file at path if it does not already
// exist. The file is written to a temporary file in the same directory
// and moved into place when build succeeds.
func cached(path string, log *zap.SugaredLogger, build func(io.Writer) error) error {
	if exists(path) {
		log.Infof("using cached %s", path)
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	err = build(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
