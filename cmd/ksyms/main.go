// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

// Command ksyms builds and inspects the symbol tables a kernel loads at boot
// to resolve addresses in backtraces.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
}

var (
	consoleOutput io.Writer = os.Stderr
	logger                  = log.NewLogfmtLogger(log.NewSyncWriter(consoleOutput))
)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Builds and inspects kernel symbol tables.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)

	buildCmd := app.Command("build", "Serialize the function symbols of an nm listing or an object file into a symbol table.")
	buildParams := addBuildParams(buildCmd)

	dumpCmd := app.Command("dump", "Print the records of a symbol table.")
	dumpParams := addDumpParams(dumpCmd)

	lookupCmd := app.Command("lookup", "Resolve addresses to <symbol + offset>.")
	lookupParams := addLookupParams(lookupCmd)

	callsCmd := app.Command("calls", "List the direct calls of an object file resolved through a symbol table.")
	callsParams := addCallsParams(callsCmd)

	nmCmd := app.Command("nm", "Print the text symbols of an object file in nm format.")
	nmParams := addNMParams(nmCmd)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	var err error
	switch parsedCmd {
	case buildCmd.FullCommand():
		err = build(logger, buildParams)
	case dumpCmd.FullCommand():
		err = dump(os.Stdout, dumpParams)
	case lookupCmd.FullCommand():
		err = lookup(os.Stdout, lookupParams)
	case callsCmd.FullCommand():
		err = calls(logger, os.Stdout, callsParams)
	case nmCmd.FullCommand():
		err = nm(os.Stdout, nmParams)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
		os.Exit(1)
	}
	os.Exit(checkError(err))
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
