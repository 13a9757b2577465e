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
	"fmt"
	"io"
	"slices"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// nlist n_type bits.
const (
	machoStabMask = 0xe0
	machoTypeMask = 0x0e
	machoTypeSect = 0x0e
	machoExternal = 0x01
)

func openMachO(r io.ReaderAt) (*machoFile, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("error when parsing the Mach-O file: %w", err)
	}
	return &machoFile{file: f, reader: r}, nil
}

var _ fileHandler = (*machoFile)(nil)

type machoFile struct {
	file   *macho.File
	reader io.ReaderAt
}

func (m *machoFile) getTextSymbols() ([]Entry, error) {
	if m.file.Symtab == nil {
		return nil, ErrSymbolNotFound
	}

	var entries []Entry
	for _, s := range m.file.Symtab.Syms {
		if s.Type&machoStabMask != 0 {
			// Skip stab debug info.
			continue
		}
		if s.Type&machoTypeMask != machoTypeSect {
			continue
		}
		// Section numbers are 1-based.
		if s.Sect == 0 || int(s.Sect) > len(m.file.Sections) {
			continue
		}
		if m.file.Sections[s.Sect-1].Name != "__text" {
			continue
		}
		kind := KindLocalText
		if s.Type&machoExternal != 0 {
			kind = KindGlobalText
		}
		entries = append(entries, Entry{Symbol: Symbol{Address: s.Value, Name: s.Name}, Kind: kind})
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return entries, nil
}

func (m *machoFile) Close() error {
	err := m.file.Close()
	if err != nil {
		return err
	}
	return tryClose(m.reader)
}

func (m *machoFile) getCodeSection() (uint64, []byte, error) {
	var section *types.Section
	for _, sect := range m.file.Sections {
		if sect.Name == "__text" {
			section = sect
			break
		}
	}
	if section == nil {
		return 0, nil, ErrSectionDoesNotExist
	}
	data, err := section.Data()
	return section.Addr, data, err
}

func (m *machoFile) getBuildID() (string, error) {
	return "", ErrSectionDoesNotExist
}

func (m *machoFile) getFileInfo() *FileInfo {
	fi := &FileInfo{
		ByteOrder: m.file.ByteOrder,
		OS:        "macOS",
	}
	switch m.file.CPU {
	case types.CPUI386:
		fi.WordSize = intSize32
		fi.Arch = Arch386
	case types.CPUAmd64:
		fi.WordSize = intSize64
		fi.Arch = ArchAMD64
	case types.CPUArm64:
		fi.WordSize = intSize64
		fi.Arch = ArchARM64
	}
	return fi
}
