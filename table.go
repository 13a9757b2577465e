// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Table is a decoded symbol table.
type Table struct {
	Symbols []Symbol
}

// Decode parses a serialized symbol table. Names are decoded as ASCII; use
// DecodeCharset for tables built with another charset.
func Decode(data []byte) (*Table, error) {
	return DecodeCharset(data, CharsetASCII)
}

// DecodeCharset parses a serialized symbol table with names in charset c.
func DecodeCharset(data []byte, c Charset) (*Table, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for the header", ErrInvalidTable, len(data))
	}
	count := binary.BigEndian.Uint64(data[:HeaderSize])
	body := uint64(len(data) - HeaderSize)
	if body%RecordSize != 0 || body/RecordSize != count {
		return nil, fmt.Errorf("%w: header claims %d symbols but the table holds %d bytes of records", ErrInvalidTable, count, body)
	}

	tab := &Table{Symbols: make([]Symbol, 0, count)}
	for off := HeaderSize; off < len(data); off += RecordSize {
		rec := data[off : off+RecordSize]
		name, err := c.Decode(decodeFixedField(rec[AddressSize:]))
		if err != nil {
			return nil, fmt.Errorf("error when decoding the name of record %d: %w", len(tab.Symbols), err)
		}
		tab.Symbols = append(tab.Symbols, Symbol{
			Address: binary.BigEndian.Uint64(rec[:AddressSize]),
			Name:    name,
		})
	}
	return tab, nil
}

// ReadTable reads and decodes a whole table from r.
func ReadTable(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error when reading the symbol table: %w", err)
	}
	return Decode(data)
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	return len(t.Symbols)
}

// Sorted reports whether the symbols are in ascending address order, which
// Lookup requires.
func (t *Table) Sorted() bool {
	return sort.SliceIsSorted(t.Symbols, func(i, j int) bool {
		return t.Symbols[i].Address < t.Symbols[j].Address
	})
}

// Lookup returns the symbol containing addr and the offset of addr from its
// start. The table is searched by bisection, so it must be sorted.
//
// Addresses below the first symbol return ErrSymbolNotFound. Addresses at or
// past the last symbol resolve to the last symbol since its end is unknown.
func (t *Table) Lookup(addr uint64) (Symbol, uint64, error) {
	n := len(t.Symbols)
	if n == 0 || addr < t.Symbols[0].Address {
		return Symbol{}, 0, ErrSymbolNotFound
	}
	// Index of the first symbol past addr; the one before it contains addr.
	i := sort.Search(n, func(i int) bool {
		return t.Symbols[i].Address > addr
	})
	sym := t.Symbols[i-1]
	return sym, addr - sym.Address, nil
}

// Resolve formats addr the way a kernel backtrace prints a frame:
// "<name + 0xoff>", or "<??>" if no symbol contains it.
func (t *Table) Resolve(addr uint64) string {
	sym, off, err := t.Lookup(addr)
	if err != nil {
		return "<??>"
	}
	return fmt.Sprintf("<%s + %#x>", sym.Name, off)
}
