// This file is part of ksyms.
//
// Copyright (C) 2019-2024 GoRE Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package ksyms

import (
	"cmp"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"slices"
)

func openELF(r io.ReaderAt) (*elfFile, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("error when parsing the ELF file: %w", err)
	}
	return &elfFile{file: f, reader: r}, nil
}

var _ fileHandler = (*elfFile)(nil)

type elfFile struct {
	file   *elf.File
	reader io.ReaderAt
}

func (e *elfFile) getTextSymbols() ([]Entry, error) {
	syms, err := e.file.Symbols()
	if err != nil {
		// A stripped file has no symbol table.
		if !errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("error when getting the symbols: %w", err)
		}
		return nil, ErrSymbolNotFound
	}

	var entries []Entry
	for _, sym := range syms {
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_SECTION, elf.STT_FILE:
			continue
		}
		if int(sym.Section) <= 0 || int(sym.Section) >= len(e.file.Sections) {
			// Undefined, absolute and common symbols.
			continue
		}
		if !isExecSection(e.file.Sections[sym.Section]) {
			continue
		}
		var kind Kind
		switch elf.ST_BIND(sym.Info) {
		case elf.STB_GLOBAL:
			kind = KindGlobalText
		case elf.STB_LOCAL:
			kind = KindLocalText
		case elf.STB_WEAK:
			kind = 'W'
		default:
			continue
		}
		entries = append(entries, Entry{Symbol: Symbol{Address: sym.Value, Name: sym.Name}, Kind: kind})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return entries, nil
}

func isExecSection(s *elf.Section) bool {
	return s.Type == elf.SHT_PROGBITS &&
		s.Flags&elf.SHF_ALLOC != 0 &&
		s.Flags&elf.SHF_EXECINSTR != 0
}

func (e *elfFile) Close() error {
	err := e.file.Close()
	if err != nil {
		return err
	}
	return tryClose(e.reader)
}

func (e *elfFile) getCodeSection() (uint64, []byte, error) {
	section := e.file.Section(".text")
	if section == nil {
		return 0, nil, ErrSectionDoesNotExist
	}
	data, err := section.Data()
	if err != nil {
		return 0, nil, fmt.Errorf("error when getting the code section: %w", err)
	}
	return section.Addr, data, nil
}

func (e *elfFile) getBuildID() (string, error) {
	section := e.file.Section(gnuBuildIDSection)
	if section == nil {
		return "", ErrSectionDoesNotExist
	}
	data, err := section.Data()
	if err != nil {
		return "", fmt.Errorf("error when reading the build ID note: %w", err)
	}
	return parseGNUBuildID(data, e.file.ByteOrder)
}

func (e *elfFile) getFileInfo() *FileInfo {
	var wordSize int
	class := e.file.FileHeader.Class
	if class == elf.ELFCLASS32 {
		wordSize = intSize32
	}
	if class == elf.ELFCLASS64 {
		wordSize = intSize64
	}

	var arch string
	switch e.file.Machine {
	case elf.EM_386:
		arch = Arch386
	case elf.EM_MIPS:
		arch = ArchMIPS
	case elf.EM_X86_64:
		arch = ArchAMD64
	case elf.EM_ARM:
		arch = ArchARM
	case elf.EM_AARCH64:
		arch = ArchARM64
	}

	return &FileInfo{
		ByteOrder: e.file.FileHeader.ByteOrder,
		OS:        e.file.OSABI.String(),
		WordSize:  wordSize,
		Arch:      arch,
	}
}
