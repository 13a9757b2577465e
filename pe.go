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
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// COFF storage classes.
const (
	imageSymClassExternal = 2
	imageSymClassStatic   = 3
)

func openPE(r io.ReaderAt) (peF *peFile, err error) {
	// Parsing by the file by debug/pe can panic if the PE file is malformed.
	// To prevent a crash, we recover the panic and return it as an error
	// instead.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("error when processing PE file, probably corrupt: %s", rec)
		}
	}()

	f, err := pe.NewFile(r)
	if err != nil {
		err = fmt.Errorf("error when parsing the PE file: %w", err)
		return
	}

	imageBase := uint64(0)

	switch hdr := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(hdr.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = hdr.ImageBase
	case nil:
		// Object files have no optional header, addresses are section relative.
	default:
		err = errors.New("unknown optional header type")
		return
	}

	peF = &peFile{file: f, reader: r, imageBase: imageBase}
	return
}

var _ fileHandler = (*peFile)(nil)

type peFile struct {
	file      *pe.File
	reader    io.ReaderAt
	imageBase uint64
}

func (p *peFile) getTextSymbols() ([]Entry, error) {
	if len(p.file.Symbols) == 0 {
		return nil, ErrSymbolNotFound
	}

	var entries []Entry
	for _, s := range p.file.Symbols {
		// Zero is undefined, negative numbers are absolute and debug symbols.
		if s.SectionNumber <= 0 {
			continue
		}
		if int(s.SectionNumber) > len(p.file.Sections) {
			return nil, fmt.Errorf("invalid section number in symbol table")
		}
		sect := p.file.Sections[s.SectionNumber-1]
		if sect.Characteristics&(pe.IMAGE_SCN_CNT_CODE|pe.IMAGE_SCN_MEM_EXECUTE) == 0 {
			continue
		}
		var kind Kind
		switch s.StorageClass {
		case imageSymClassExternal:
			kind = KindGlobalText
		case imageSymClassStatic:
			kind = KindLocalText
		default:
			continue
		}
		addr := p.imageBase + uint64(sect.VirtualAddress) + uint64(s.Value)
		entries = append(entries, Entry{Symbol: Symbol{Address: addr, Name: s.Name}, Kind: kind})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return entries, nil
}

func (p *peFile) Close() error {
	err := p.file.Close()
	if err != nil {
		return err
	}
	return tryClose(p.reader)
}

func (p *peFile) getCodeSection() (uint64, []byte, error) {
	section := p.file.Section(".text")
	if section == nil {
		return 0, nil, ErrSectionDoesNotExist
	}
	data, err := section.Data()
	return p.imageBase + uint64(section.VirtualAddress), data, err
}

func (p *peFile) getBuildID() (string, error) {
	return "", ErrSectionDoesNotExist
}

func (p *peFile) getFileInfo() *FileInfo {
	fi := &FileInfo{ByteOrder: binary.LittleEndian, OS: "windows"}
	switch p.file.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		fi.WordSize = intSize32
		fi.Arch = Arch386
	case pe.IMAGE_FILE_MACHINE_ARM64:
		fi.WordSize = intSize64
		fi.Arch = ArchARM64
	default:
		fi.WordSize = intSize64
		fi.Arch = ArchAMD64
	}
	return fi
}
