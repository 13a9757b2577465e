// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/goretk/ksyms"
)

type tableParams struct {
	table   string
	charset string
}

func addTableParams(cmd *kingpin.CmdClause) *tableParams {
	p := &tableParams{}
	cmd.Arg("table", "Symbol table file.").Required().ExistingFileVar(&p.table)
	cmd.Flag("charset", "Charset of the stored names: ascii or latin1.").Default("ascii").Envar("KSYMS_CHARSET").StringVar(&p.charset)
	return p
}

func (p *tableParams) open() (*ksyms.Table, error) {
	charset, err := ksyms.ParseCharset(p.charset)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.table)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol table: %w", err)
	}
	tab, err := ksyms.DecodeCharset(data, charset)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p.table, err)
	}
	return tab, nil
}

type dumpParams struct {
	*tableParams
}

func addDumpParams(cmd *kingpin.CmdClause) *dumpParams {
	return &dumpParams{tableParams: addTableParams(cmd)}
}

func dump(out io.Writer, p *dumpParams) error {
	tab, err := p.open()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Address", "Name"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, sym := range tab.Symbols {
		table.Append([]string{strconv.Itoa(i), fmt.Sprintf("%016x", sym.Address), sym.Name})
	}
	table.SetFooter([]string{"", "symbols", strconv.Itoa(tab.Len())})
	table.Render()
	return nil
}

type lookupParams struct {
	*tableParams
	addrs []string
}

func addLookupParams(cmd *kingpin.CmdClause) *lookupParams {
	p := &lookupParams{tableParams: addTableParams(cmd)}
	cmd.Arg("address", "Hexadecimal addresses to resolve, with or without 0x.").Required().StringsVar(&p.addrs)
	return p
}

func lookup(out io.Writer, p *lookupParams) error {
	tab, err := p.open()
	if err != nil {
		return err
	}
	if !tab.Sorted() {
		return fmt.Errorf("%s is not sorted by address, lookups would be wrong", p.table)
	}
	for _, s := range p.addrs {
		addr, err := parseAddress(s)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%016x    %s\n", addr, tab.Resolve(addr)); err != nil {
			return err
		}
	}
	return nil
}

func parseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

type callsParams struct {
	*tableParams
	object     string
	unresolved bool
}

func addCallsParams(cmd *kingpin.CmdClause) *callsParams {
	p := &callsParams{tableParams: addTableParams(cmd)}
	cmd.Arg("object", "Object file the table was built from.").Required().ExistingFileVar(&p.object)
	cmd.Flag("unresolved", "Only print calls whose target doesn't start a symbol.").BoolVar(&p.unresolved)
	return p
}

func calls(logger log.Logger, out io.Writer, p *callsParams) error {
	tab, err := p.open()
	if err != nil {
		return err
	}
	if !tab.Sorted() {
		return fmt.Errorf("%s is not sorted by address", p.table)
	}
	f, err := ksyms.Open(p.object)
	if err != nil {
		return fmt.Errorf("failed to open object file %s: %w", p.object, err)
	}
	defer f.Close()

	base, code, err := f.CodeSection()
	if err != nil {
		return fmt.Errorf("failed to read the code of %s: %w", p.object, err)
	}
	sites, err := ksyms.ResolveCallSites(code, base, f.FileInfo.Arch, tab)
	if err != nil {
		return err
	}

	mismatched := 0
	for _, site := range sites {
		exact := site.Resolved && site.CalleeOffset == 0
		if !exact {
			mismatched++
		}
		if p.unresolved && exact {
			continue
		}
		if _, err := fmt.Fprintln(out, site); err != nil {
			return err
		}
	}
	level.Info(logger).Log("msg", "call sites resolved", "calls", len(sites), "mismatched", mismatched)
	return nil
}

type nmParams struct {
	object string
}

func addNMParams(cmd *kingpin.CmdClause) *nmParams {
	p := &nmParams{}
	cmd.Arg("object", "ELF, PE or Mach-O file.").Required().ExistingFileVar(&p.object)
	return p
}

func nm(out io.Writer, p *nmParams) error {
	f, err := ksyms.Open(p.object)
	if err != nil {
		return fmt.Errorf("failed to open object file %s: %w", p.object, err)
	}
	defer f.Close()
	entries, err := f.TextSymbols()
	if err != nil {
		return fmt.Errorf("failed to read the symbols of %s: %w", p.object, err)
	}
	return ksyms.WriteListing(out, entries)
}
