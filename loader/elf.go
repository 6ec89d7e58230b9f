// Package loader lifts instruction streams out of ELF executables so that
// compiled test functions can be fed to the differential harness.
package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// DefaultStreamLimit bounds how many instructions are lifted when the caller
// does not give a limit.
const DefaultStreamLimit = 4096

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Perm contains the segment protection flags.
	Perm arch.Perm
}

// Program represents a parsed ARM executable.
type Program struct {
	// EntryPoint is the entry address with the interworking bit cleared.
	EntryPoint uint64
	// Thumb is set for 32-bit ARM executables whose entry is Thumb code.
	Thumb bool
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
}

// Stream is a straight-line instruction stream lifted from an executable.
// Exactly one of Words and Halfwords is populated.
type Stream struct {
	Entry     uint64
	Words     []uint32
	Halfwords []uint16
}

// Load parses an AArch64 ELF64 or a 32-bit ARM ELF32 binary.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	prog := &Program{EntryPoint: f.Entry}

	switch f.Machine {
	case elf.EM_AARCH64:
		if f.Class != elf.ELFCLASS64 {
			return nil, fmt.Errorf("not a 64-bit AArch64 ELF file")
		}
	case elf.EM_ARM:
		if f.Class != elf.ELFCLASS32 {
			return nil, fmt.Errorf("not a 32-bit ARM ELF file")
		}
		prog.Thumb = f.Entry&1 != 0
		prog.EntryPoint = f.Entry &^ 1
	default:
		return nil, fmt.Errorf("not an ARM ELF file (machine type: %v)", f.Machine)
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var perm arch.Perm
		if phdr.Flags&elf.PF_R != 0 {
			perm |= arch.PermRead
		}
		if phdr.Flags&elf.PF_W != 0 {
			perm |= arch.PermWrite
		}
		if phdr.Flags&elf.PF_X != 0 {
			perm |= arch.PermExec
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Perm:     perm,
		})
	}

	return prog, nil
}

// code returns the file-backed bytes of the executable segment holding addr,
// starting at addr.
func (p *Program) code(addr uint64) ([]byte, error) {
	for _, seg := range p.Segments {
		if seg.Perm&arch.PermExec == 0 {
			continue
		}
		if addr >= seg.VirtAddr && addr < seg.VirtAddr+uint64(len(seg.Data)) {
			return seg.Data[addr-seg.VirtAddr:], nil
		}
	}
	return nil, fmt.Errorf("no executable segment holds 0x%x", addr)
}

// Words lifts A64 instructions starting at addr. Lifting stops before the
// first RET, at the end of the segment, or after limit words.
func (p *Program) Words(addr uint64, limit int) ([]uint32, error) {
	if addr%4 != 0 {
		return nil, fmt.Errorf("address 0x%x is not word aligned", addr)
	}
	data, err := p.code(addr)
	if err != nil {
		return nil, err
	}

	var words []uint32
	for off := 0; off+4 <= len(data) && len(words) < limit; off += 4 {
		w := binary.LittleEndian.Uint32(data[off:])
		if w == insts.RetWord {
			break
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("no instructions at 0x%x", addr)
	}
	return words, nil
}

// Halfwords lifts Thumb code starting at addr. Lifting stops before the first
// BX LR, at the end of the segment, or once limit halfwords are taken. A
// 32-bit Thumb instruction is never split.
func (p *Program) Halfwords(addr uint64, limit int) ([]uint16, error) {
	if addr%2 != 0 {
		return nil, fmt.Errorf("address 0x%x is not halfword aligned", addr)
	}
	data, err := p.code(addr)
	if err != nil {
		return nil, err
	}

	var hws []uint16
	for off := 0; off+2 <= len(data) && len(hws) < limit; off += 2 {
		hw := binary.LittleEndian.Uint16(data[off:])
		if hw == insts.ThumbBXLR {
			break
		}
		if isThumbWide(hw) {
			if off+4 > len(data) || len(hws)+2 > limit {
				break
			}
			off += 2
			hws = append(hws, hw, binary.LittleEndian.Uint16(data[off:]))
			continue
		}
		hws = append(hws, hw)
	}
	if len(hws) == 0 {
		return nil, fmt.Errorf("no instructions at 0x%x", addr)
	}
	return hws, nil
}

// isThumbWide reports whether hw is the first half of a 32-bit Thumb
// instruction.
func isThumbWide(hw uint16) bool {
	switch hw >> 11 {
	case 0x1D, 0x1E, 0x1F:
		return true
	}
	return false
}

// LoadStream loads path and lifts the stream at its entry point. A limit of
// zero or less means DefaultStreamLimit.
func LoadStream(path string, limit int) (*Stream, error) {
	prog, err := Load(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultStreamLimit
	}

	s := &Stream{Entry: prog.EntryPoint}
	if prog.Thumb {
		s.Halfwords, err = prog.Halfwords(prog.EntryPoint, limit)
	} else {
		s.Words, err = prog.Words(prog.EntryPoint, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
