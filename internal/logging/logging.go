// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the run logger and capture of external tool
// output.
package logging

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger that writes INFO and above to console and all
// messages to a new file at debugPath. The returned function flushes
// the logger and closes the debug file.
func New(console io.Writer, debugPath string) (*zap.SugaredLogger, func() error, error) {
	err := os.MkdirAll(filepath.Dir(debugPath), 0o755)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Create(debugPath)
	if err != nil {
		return nil, nil, err
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(cfg)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(console)), zapcore.InfoLevel),
		zapcore.NewCore(enc, zapcore.Lock(f), zapcore.DebugLevel),
	)
	log := zap.New(core).Sugar()
	return log, func() error {
		_ = log.Sync()
		return f.Close()
	}, nil
}

// Capture returns a writer that logs each non-blank line written to it
// at debug level, prefixed with a tab. Close must be called to flush the
// final line.
func Capture(log *zap.SugaredLogger) io.WriteCloser {
	r, w := io.Pipe()
	c := &capture{PipeWriter: w, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if len(bytes.TrimSpace(sc.Bytes())) == 0 {
				continue
			}
			log.Debugf("\t%s", sc.Bytes())
		}
		err := sc.Err()
		if err != nil && err != io.EOF {
			_ = r.CloseWithError(err)
		}
	}()
	return c
}

type capture struct {
	*io.PipeWriter
	done chan struct{}
}

func (c *capture) Close() error {
	err := c.PipeWriter.Close()
	<-c.done
	return err
}
