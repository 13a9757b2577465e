// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goretk/ksyms"
)

// buildConfig holds the settings of a table build. It can be loaded from a
// YAML file; command line flags take precedence over it.
type buildConfig struct {
	Listing string   `yaml:"listing"`
	Object  string   `yaml:"object"`
	Output  string   `yaml:"output"`
	Charset string   `yaml:"charset"`
	Kinds   []string `yaml:"kinds"`
	Strict  bool     `yaml:"strict"`
}

func defaultBuildConfig() buildConfig {
	return buildConfig{
		Listing: "symbols.txt",
		Output:  "symbols.dat",
		Charset: string(ksyms.CharsetASCII),
		Kinds:   []string{"T", "t"},
	}
}

func loadBuildConfig(path string, cfg *buildConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// apply overrides the configuration with the flags that have been set.
func (p *buildParams) apply(cfg *buildConfig) {
	if p.listing != "" {
		cfg.Listing = p.listing
		cfg.Object = ""
	}
	if p.object != "" {
		cfg.Object = p.object
	}
	if p.output != "" {
		cfg.Output = p.output
	}
	if p.charset != "" {
		cfg.Charset = p.charset
	}
	if p.kinds != "" {
		cfg.Kinds = strings.Split(p.kinds, ",")
	}
	if p.strict {
		cfg.Strict = true
	}
}

func (c *buildConfig) validate() error {
	if c.Output == "" {
		return errors.New("no output file")
	}
	if c.Listing == "" && c.Object == "" {
		return errors.New("no input: set a listing or an object file")
	}
	if len(c.Kinds) == 0 {
		return errors.New("no symbol kinds selected")
	}
	if _, err := c.kinds(); err != nil {
		return err
	}
	_, err := ksyms.ParseCharset(c.Charset)
	return err
}

func (c *buildConfig) kinds() ([]ksyms.Kind, error) {
	kinds := make([]ksyms.Kind, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		k = strings.TrimSpace(k)
		if len(k) != 1 {
			return nil, fmt.Errorf("invalid symbol kind %q: must be a single character", k)
		}
		kinds = append(kinds, ksyms.Kind(k[0]))
	}
	return kinds, nil
}
