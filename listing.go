// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const maxListingLineLen = 1 << 20

// ReadListing feeds every line of an nm listing read from r to b and returns
// the number of lines read.
//
// Lines that can't be used are reported to the builder's warning handler with
// their line number and otherwise ignored. A read error is returned as is and
// means the table must not be emitted.
func ReadListing(r io.Reader, b *Builder) (int, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxListingLineLen)

	lines := 0
	for s.Scan() {
		lines++
		err := b.Ingest(s.Text())
		if err == nil {
			continue
		}
		if errors.Is(err, ErrFinalized) {
			return lines, err
		}
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Line = lines
		}
		b.Warn(err)
	}
	if err := s.Err(); err != nil {
		return lines, fmt.Errorf("error when reading the listing after line %d: %w", lines, err)
	}
	return lines, nil
}

// WriteListing writes entries in nm format, one per line.
func WriteListing(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintln(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}
