// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the run configuration of peaks2utr, built from
// command line flags, PEAKS2UTR_* environment variables and an optional
// YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kortschak/utr/internal/criteria"
	"github.com/kortschak/utr/internal/gff"
	"github.com/kortschak/utr/internal/model"
)

const envPrefix = "PEAKS2UTR"

// Config is the run configuration.
type Config struct {
	GFFIn string `mapstructure:"-"`
	BAMIn string `mapstructure:"-"`

	MaxDistance     int  `mapstructure:"max-distance"`
	OverrideUTR     bool `mapstructure:"override-utr"`
	ExtendUTR       bool `mapstructure:"extend-utr"`
	FivePrimeExt    int  `mapstructure:"five-prime-ext"`
	SkipSoftClip    bool `mapstructure:"skip-soft-clip"`
	MinPileups      int  `mapstructure:"min-pileups"`
	MinPolyTail     int  `mapstructure:"min-poly-tail"`
	Processors      int  `mapstructure:"processors"`
	DoPseudo        bool `mapstructure:"do-pseudo"`
	NoStrandOverlap bool `mapstructure:"no-strand-overlap"`

	Output    string `mapstructure:"output"`
	GTF       bool   `mapstructure:"gtf"`
	Force     bool   `mapstructure:"force"`
	KeepCache bool   `mapstructure:"keep-cache"`

	CacheDir string `mapstructure:"cache-dir"`
	LogDir   string `mapstructure:"log-dir"`
	GT       string `mapstructure:"gt"`
	MACS2    string `mapstructure:"macs2"`

	warnings []string
}

// AddFlags adds the run flags to fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.Int("max-distance", 200, "maximum distance in bases that UTR can be from a transcript")
	fs.Bool("override-utr", false, "ignore already annotated 3' UTRs in criteria")
	fs.Bool("extend-utr", false, "extend previously existing 3' UTR annotations where possible")
	fs.Int("five-prime-ext", 0, "a peak within this many bases of a gene's 5'-end should be assumed to belong to it")
	fs.Bool("skip-soft-clip", false, "skip the resource-intensive logic to pileup soft-clipped read edges")
	fs.Int("min-pileups", 10, "minimum number of piled-up mapped reads for UTR cut-off")
	fs.Int("min-poly-tail", 10, "minimum length of poly-A/T tail considered in soft-clipped reads")
	fs.IntP("processors", "p", 1, "how many processor cores to use")
	fs.Bool("do-pseudo", false, "include pseudogenes when searching for genes near peaks")
	fs.Bool("no-strand-overlap", false, "prevent UTRs from overlapping genes on the opposite strand")
	fs.StringP("output", "o", "", "output filename")
	fs.Bool("gtf", false, "write output in GTF format")
	fs.BoolP("force", "f", false, "overwrite outputs if they exist")
	fs.Bool("keep-cache", false, "keep cached files on run completion")
	fs.String("cache-dir", ".cache", "directory for intermediate files")
	fs.String("log-dir", ".log", "directory for log files")
	fs.String("gt", "", "path to the genometools gt executable")
	fs.String("macs2", "", "path to the macs2 executable")
}

// NewViper returns a viper instance bound to the flags in fs and to the
// PEAKS2UTR_* environment. If path is not empty, the YAML configuration
// file at path is read.
func NewViper(fs *pflag.FlagSet, path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	err := v.BindPFlags(fs)
	if err != nil {
		return nil, fmt.Errorf("config: failed to bind flags: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		err = v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", path, err)
		}
	}
	return v, nil
}

// Load returns the validated configuration held by v for the given
// annotation and alignment inputs.
func Load(v *viper.Viper, gffIn, bamIn string) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	cfg.GFFIn = gffIn
	cfg.BAMIn = bamIn
	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	err = cfg.resolveOutput()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the consistency of c.
func (c *Config) Validate() error {
	switch {
	case c.GFFIn == "" || c.BAMIn == "":
		return errors.New("annotation and alignment inputs are required")
	case c.OverrideUTR && c.ExtendUTR:
		return errors.New("only one of --extend-utr and --override-utr can be used simultaneously")
	case c.Processors < 1:
		return fmt.Errorf("invalid number of processors: %d", c.Processors)
	case c.MaxDistance < 0:
		return fmt.Errorf("invalid max distance: %d", c.MaxDistance)
	case c.FivePrimeExt < 0:
		return fmt.Errorf("invalid 5' extension: %d", c.FivePrimeExt)
	case c.MinPileups < 0:
		return fmt.Errorf("invalid minimum pileups: %d", c.MinPileups)
	case c.MinPolyTail < 1:
		return fmt.Errorf("invalid minimum poly tail length: %d", c.MinPolyTail)
	}
	return nil
}

// resolveOutput sets the output path and dialect, and checks that the
// output may be written.
func (c *Config) resolveOutput() error {
	if c.Output == "" {
		base := strings.TrimSuffix(filepath.Base(c.GFFIn), filepath.Ext(c.GFFIn))
		ext := ".new.gff"
		if c.GTF {
			ext = ".new.gtf"
		}
		c.Output = base + ext
	}
	switch strings.ToLower(filepath.Ext(c.Output)) {
	case ".gtf":
		c.GTF = true
	case ".gff", ".gff3":
		if c.GTF {
			c.warnings = append(c.warnings, fmt.Sprintf("writing GTF output to %s", c.Output))
		}
	}
	_, err := os.Stat(c.Output)
	if err == nil && !c.Force {
		return fmt.Errorf("%s already exists: re-run with -f flag to force overwrite of output files", c.Output)
	}
	return nil
}

// Warnings returns the non-fatal configuration problems found by Load.
func (c *Config) Warnings() []string { return c.warnings }

// Mode returns the handling of existing 3' UTRs.
func (c *Config) Mode() criteria.Mode {
	switch {
	case c.OverrideUTR:
		return criteria.Override
	case c.ExtendUTR:
		return criteria.Extend
	}
	return criteria.Keep
}

// InputDialect returns the dialect of the annotation input.
func (c *Config) InputDialect() model.Dialect { return gff.DialectFromPath(c.GFFIn) }

// OutputDialect returns the dialect of the annotation output.
func (c *Config) OutputDialect() model.Dialect {
	if c.GTF {
		return model.GTF
	}
	return model.GFF3
}

// Cached returns the path of the named file in the cache directory.
func (c *Config) Cached(name string) string { return filepath.Join(c.CacheDir, name) }

// Logged returns the path of the named file in the log directory.
func (c *Config) Logged(name string) string { return filepath.Join(c.LogDir, name) }
