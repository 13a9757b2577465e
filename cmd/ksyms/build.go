// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/goretk/ksyms"
)

type buildParams struct {
	configFile string
	listing    string
	object     string
	output     string
	charset    string
	kinds      string
	strict     bool
}

func addBuildParams(cmd *kingpin.CmdClause) *buildParams {
	p := &buildParams{}
	cmd.Flag("config.file", "YAML file with the build settings. Flags override it.").Envar("KSYMS_CONFIG_FILE").StringVar(&p.configFile)
	cmd.Flag("listing", `nm listing to read, "-" for stdin. (default "symbols.txt")`).Short('l').StringVar(&p.listing)
	cmd.Flag("object", "Read the symbols from an ELF, PE or Mach-O file instead of a listing.").Short('b').StringVar(&p.object)
	cmd.Flag("output", `Symbol table to write, "-" for stdout. (default "symbols.dat")`).Short('o').Envar("KSYMS_OUTPUT").StringVar(&p.output)
	cmd.Flag("charset", "Charset of the stored names: ascii or latin1. (default \"ascii\")").Envar("KSYMS_CHARSET").StringVar(&p.charset)
	cmd.Flag("kinds", `Comma separated symbol kinds to keep. (default "T,t")`).StringVar(&p.kinds)
	cmd.Flag("strict", "Fail if any symbol had to be skipped. Plain nm listings contain undefined (U, w) lines that are always skipped, so use it with filtered listings or --object.").BoolVar(&p.strict)
	return p
}

func build(logger log.Logger, p *buildParams) error {
	cfg := defaultBuildConfig()
	if p.configFile != "" {
		if err := loadBuildConfig(p.configFile, &cfg); err != nil {
			return err
		}
	}
	p.apply(&cfg)
	if err := cfg.validate(); err != nil {
		return err
	}
	charset, _ := ksyms.ParseCharset(cfg.Charset)
	kinds, _ := cfg.kinds()

	var skipped *multierror.Error
	b := ksyms.NewBuilder(
		ksyms.WithCharset(charset),
		ksyms.WithKinds(kinds...),
		ksyms.WithWarningHandler(func(err error) {
			var tw *ksyms.TruncationWarning
			if errors.As(err, &tw) {
				level.Warn(logger).Log("msg", "symbol name is too long and will be truncated", "symbol", tw.Symbol.Name, "length", tw.Length)
				return
			}
			level.Warn(logger).Log("msg", "skipping symbol", "err", err)
			skipped = multierror.Append(skipped, err)
		}),
	)

	// The whole input is read before the output is touched, a failure here
	// leaves any existing table in place.
	var err error
	if cfg.Object != "" {
		err = readObject(logger, b, cfg.Object)
	} else {
		err = readListing(logger, b, cfg.Listing)
	}
	if err != nil {
		return err
	}

	if cfg.Strict && skipped.ErrorOrNil() != nil {
		return fmt.Errorf("%d symbols rejected in strict mode: %w", len(skipped.Errors), skipped)
	}

	n, err := writeTable(cfg.Output, b)
	if err != nil {
		return err
	}
	level.Info(logger).Log(
		"msg", "symbol table written",
		"path", cfg.Output,
		"symbols", humanize.Comma(int64(b.Len())),
		"skipped", skippedCount(skipped),
		"size", humanize.Bytes(uint64(n)),
	)
	return nil
}

func readListing(logger log.Logger, b *ksyms.Builder, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open listing: %w", err)
		}
		defer f.Close()
		r = f
	}
	lines, err := ksyms.ReadListing(r, b)
	if err != nil {
		return fmt.Errorf("failed to read listing %s: %w", path, err)
	}
	level.Debug(logger).Log("msg", "listing read", "path", path, "lines", lines, "symbols", b.Len())
	return nil
}

func readObject(logger log.Logger, b *ksyms.Builder, path string) error {
	f, err := ksyms.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open object file %s: %w", path, err)
	}
	defer f.Close()

	entries, err := f.TextSymbols()
	if err != nil {
		return fmt.Errorf("failed to read the symbols of %s: %w", path, err)
	}
	for _, e := range entries {
		if err := b.Add(e); err != nil {
			var eerr *ksyms.EncodingError
			if !errors.As(err, &eerr) {
				return err
			}
			b.Warn(err)
		}
	}
	kv := []interface{}{"msg", "object file read", "path", path, "arch", f.FileInfo.Arch, "entries", len(entries), "symbols", b.Len()}
	if id, err := f.BuildID(); err == nil {
		kv = append(kv, "build_id", id)
	}
	level.Debug(logger).Log(kv...)
	return nil
}

// writeTable writes the table next to path and renames it into place, so an
// interrupted run never leaves a truncated table behind.
func writeTable(path string, b *ksyms.Builder) (int64, error) {
	if path == "-" {
		return b.WriteTo(os.Stdout)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := b.WriteTo(tmp)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write symbol table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync symbol table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close symbol table: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, fmt.Errorf("failed to set symbol table permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to move symbol table into place: %w", err)
	}
	return n, nil
}

func skippedCount(err *multierror.Error) int {
	if err == nil {
		return 0
	}
	return len(err.Errors)
}
