// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// peaks2utr is a 3' UTR annotation tool. It calls peaks of read coverage
// on each strand of a stranded 3'-end alignment file using MACS2 and
// iterates the peaks through a set of criteria to decide whether each
// describes the 3' UTR of a nearby gene, before writing the inferred UTRs
// into a copy of the input GFF3 or GTF annotation.
//
// Soft-clipped reads with poly-A/T tails and regions of zero read
// coverage are used to refine UTR boundaries. Intermediate files are
// kept in a cache directory that is removed at exit unless --keep-cache
// is given, and a summary of the run is written to summary_stats.txt.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kortschak/utr/internal/config"
	"github.com/kortschak/utr/internal/logging"
)

const (
	name     = "peaks2utr"
	debugLog = name + "_debug.log"
)

func main() {
	os.Exit(Main())
}

// exitCode is an error that has already been reported.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

// Main runs peaks2utr and returns the process exit status.
func Main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newCommand().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
	return 1
}

func newCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   name + " [flags] GFF_IN BAM_IN",
		Short: "Infer 3' UTRs from stranded 3'-end sequencing peaks",
		Long: `Use MACS2 to build forward and reverse peaks files for the given BAM file.
Iterate peaks through a set of criteria to determine UTR viability, before
annotating in the GFF_IN annotation.

Flags may also be set with PEAKS2UTR_* environment variables or a YAML
configuration file.`,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v, args[0], args[1])
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "YAML configuration file")
	config.AddFlags(cmd.Flags())
	return cmd
}

// execute runs the annotation with logging and cache cleanup, reporting
// failures to the log.
func execute(ctx context.Context, cfg *config.Config) error {
	log, closeLog, err := logging.New(os.Stdout, cfg.Logged(debugLog))
	if err != nil {
		return err
	}
	defer closeLog()

	log.Debugf("%s %q", name, os.Args[1:])
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	if !cfg.KeepCache {
		defer func() {
			log.Info("clearing cache")
			err := os.RemoveAll(cfg.CacheDir)
			if err != nil {
				log.Warnf("failed to clear cache: %v", err)
			}
		}()
	}

	err = run(ctx, cfg, log)
	switch {
	case err == nil:
		log.Infof("%s finished successfully", name)
		return nil
	case errors.Is(err, context.Canceled):
		log.Error("user interrupted processing: aborting")
		return exitCode(130)
	default:
		log.Errorf("%v: see %s for details", err, cfg.Logged(debugLog))
		return exitCode(1)
	}
}
