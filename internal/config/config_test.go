// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/kortschak/utr/internal/criteria"
	"github.com/kortschak/utr/internal/model"
)

func load(t *testing.T, args []string, configFile string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("peaks2utr", pflag.ContinueOnError)
	AddFlags(fs)
	err := fs.Parse(args)
	if err != nil {
		t.Fatalf("unexpected error parsing flags: %v", err)
	}
	v, err := NewViper(fs, configFile)
	if err != nil {
		t.Fatalf("unexpected error building configuration: %v", err)
	}
	pos := fs.Args()
	for len(pos) < 2 {
		pos = append(pos, "")
	}
	return Load(v, pos[0], pos[1])
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	err = os.Chdir(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := load(t, []string{"data/genes.gff3", "reads.bam"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxDistance != 200 || cfg.MinPileups != 10 || cfg.MinPolyTail != 10 || cfg.Processors != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Output != "genes.new.gff" || cfg.OutputDialect() != model.GFF3 {
		t.Errorf("unexpected output: %s %v", cfg.Output, cfg.OutputDialect())
	}
	if cfg.Mode() != criteria.Keep {
		t.Errorf("unexpected mode: %v", cfg.Mode())
	}
	if got := cfg.Cached("forward.bam"); got != filepath.Join(".cache", "forward.bam") {
		t.Errorf("unexpected cache path: %s", got)
	}
}

func TestLoadFlags(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := load(t, []string{"--max-distance=2500", "-p", "4", "--extend-utr", "--gtf", "genes.gtf", "reads.bam"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxDistance != 2500 || cfg.Processors != 4 {
		t.Errorf("unexpected flag values: %+v", cfg)
	}
	if cfg.Mode() != criteria.Extend {
		t.Errorf("unexpected mode: %v", cfg.Mode())
	}
	if cfg.Output != "genes.new.gtf" || cfg.OutputDialect() != model.GTF || cfg.InputDialect() != model.GTF {
		t.Errorf("unexpected output: %s %v input:%v", cfg.Output, cfg.OutputDialect(), cfg.InputDialect())
	}
}

func TestLoadEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PEAKS2UTR_FIVE_PRIME_EXT", "50")
	t.Setenv("PEAKS2UTR_OVERRIDE_UTR", "true")
	cfg, err := load(t, []string{"genes.gff", "reads.bam"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FivePrimeExt != 50 || cfg.Mode() != criteria.Override {
		t.Errorf("environment not applied: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "peaks2utr.yaml")
	err := os.WriteFile(path, []byte("min-pileups: 3\noutput: result.gtf\n"), 0o664)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := load(t, []string{"genes.gff", "reads.bam"}, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinPileups != 3 {
		t.Errorf("config file not applied: %+v", cfg)
	}
	if cfg.Output != "result.gtf" || !cfg.GTF {
		t.Errorf("GTF output not inferred from output path: %s gtf=%t", cfg.Output, cfg.GTF)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	err := os.WriteFile("genes.new.gff", nil, 0o664)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		args []string
		want string
	}{
		{args: []string{"genes.gff"}, want: "required"},
		{args: []string{"--override-utr", "--extend-utr", "genes.gff", "reads.bam"}, want: "only one of"},
		{args: []string{"-p", "0", "genes.gff", "reads.bam"}, want: "processors"},
		{args: []string{"--max-distance=-1", "genes.gff", "reads.bam"}, want: "max distance"},
		{args: []string{"--min-poly-tail=0", "genes.gff", "reads.bam"}, want: "poly tail"},
		{args: []string{"genes.gff", "reads.bam"}, want: "already exists"},
	} {
		_, err := load(t, test.args, "")
		if err == nil || !strings.Contains(err.Error(), test.want) {
			t.Errorf("unexpected error for %v: got:%v want:%q", test.args, err, test.want)
		}
	}

	cfg, err := load(t, []string{"-f", "genes.gff", "reads.bam"}, "")
	if err != nil {
		t.Errorf("unexpected error with force: %v", err)
	} else if cfg.Output != "genes.new.gff" {
		t.Errorf("unexpected output: %s", cfg.Output)
	}
}

func TestGTFToGFFWarning(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := load(t, []string{"--gtf", "-o", "out.gff3", "genes.gff", "reads.bam"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Warnings()) != 1 {
		t.Errorf("expected a warning for GTF output to GFF path, got: %v", cfg.Warnings())
	}
}
