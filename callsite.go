// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// CallSite is a direct call found in machine code, with both ends resolved
// through a symbol table.
type CallSite struct {
	// Source is the address of the call instruction.
	Source uint64
	// Target is the address being called.
	Target uint64
	// Caller is the symbol containing Source. Zero if unresolved.
	Caller Symbol
	// CallerOffset is the offset of Source in Caller.
	CallerOffset uint64
	// Callee is the symbol containing Target. Zero if unresolved.
	Callee Symbol
	// CalleeOffset is the offset of Target in Callee. A call that doesn't land
	// on a symbol start usually means the table is stale or incomplete.
	CalleeOffset uint64
	// Resolved is true if both Caller and Callee were found.
	Resolved bool
}

func (c CallSite) String() string {
	return fmt.Sprintf("%#x <%s + %#x> -> %#x <%s + %#x>", c.Source, c.Caller.Name, c.CallerOffset, c.Target, c.Callee.Name, c.CalleeOffset)
}

// ResolveCallSites decodes code, located at base, and returns its direct
// calls with source and target resolved through tab. The decoder skips bytes
// it doesn't understand, so data embedded in code only costs spurious hits.
// tab must be sorted.
func ResolveCallSites(code []byte, base uint64, arch string, tab *Table) ([]CallSite, error) {
	var targets [][2]uint64
	switch arch {
	case ArchAMD64:
		targets = x86Calls(code, base, 64)
	case Arch386:
		targets = x86Calls(code, base, 32)
	case ArchARM64:
		targets = arm64Calls(code, base)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedArch, arch)
	}

	sites := make([]CallSite, 0, len(targets))
	for _, t := range targets {
		site := CallSite{Source: t[0], Target: t[1]}
		caller, coff, err1 := tab.Lookup(site.Source)
		callee, toff, err2 := tab.Lookup(site.Target)
		if err1 == nil {
			site.Caller, site.CallerOffset = caller, coff
		}
		if err2 == nil {
			site.Callee, site.CalleeOffset = callee, toff
		}
		site.Resolved = err1 == nil && err2 == nil
		sites = append(sites, site)
	}
	return sites, nil
}

func x86Calls(code []byte, base uint64, mode int) [][2]uint64 {
	var calls [][2]uint64
	for off := 0; off < len(code); {
		addr := base + uint64(off)
		// ENDBR64 and ENDBR32 are not known by x86asm.
		if off+4 <= len(code) && code[off] == 0xf3 && code[off+1] == 0x0f &&
			code[off+2] == 0x1e && (code[off+3] == 0xfa || code[off+3] == 0xfb) {
			off += 4
			continue
		}
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil {
			off++
			continue
		}
		if inst.Op == x86asm.CALL {
			if rel, ok := inst.Args[0].(x86asm.Rel); ok {
				target := addr + uint64(inst.Len) + uint64(int64(rel))
				if mode == 32 {
					target &= 0xffffffff
				}
				calls = append(calls, [2]uint64{addr, target})
			}
		}
		off += inst.Len
	}
	return calls
}

func arm64Calls(code []byte, base uint64) [][2]uint64 {
	const insnLen = 4
	var calls [][2]uint64
	for off := 0; off+insnLen <= len(code); off += insnLen {
		inst, err := arm64asm.Decode(code[off : off+insnLen])
		if err != nil || inst.Op != arm64asm.BL {
			continue
		}
		if rel, ok := inst.Args[0].(arm64asm.PCRel); ok {
			addr := base + uint64(off)
			calls = append(calls, [2]uint64{addr, addr + uint64(int64(rel))})
		}
	}
	return calls
}
