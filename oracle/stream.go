package oracle

import (
	"encoding/binary"
	"fmt"
)

// Width is the encoding width of an instruction stream.
type Width uint8

// Stream widths. The first emission fixes the width of a stream.
const (
	WidthUnset Width = iota
	Width32          // fixed 4-byte A64 words
	Width16          // 2-byte Thumb halfwords
)

// Bytes returns the size of one instruction.
func (w Width) Bytes() uint64 {
	switch w {
	case Width32:
		return 4
	case Width16:
		return 2
	default:
		return 0
	}
}

func (w Width) String() string {
	switch w {
	case Width32:
		return "32-bit"
	case Width16:
		return "16-bit"
	default:
		return "unset"
	}
}

// EmitWord appends a 4-byte instruction to the code region of every engine.
func (e *Environment) EmitWord(word uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], word)
	return e.emit(Width32, b[:])
}

// EmitHalfword appends a 2-byte instruction to the code region of every
// engine.
func (e *Environment) EmitHalfword(hw uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], hw)
	return e.emit(Width16, b[:])
}

// Width returns the width fixed by the first emission.
func (e *Environment) Width() Width {
	return e.width
}

// Emitted returns the number of bytes emitted since the region start.
func (e *Environment) Emitted() uint64 {
	return e.cursor - e.config.Layout.CodeBase
}

func (e *Environment) emit(w Width, b []byte) error {
	if !e.ready {
		return fmt.Errorf("%w: emit before setup", ErrConfiguration)
	}
	if e.finalized {
		return fmt.Errorf("%w: emit after the stream was run", ErrConfiguration)
	}
	if e.width != WidthUnset && e.width != w {
		return fmt.Errorf("%w: %s instruction in a %s stream", ErrConfiguration, w, e.width)
	}
	if err := e.write(b); err != nil {
		return err
	}
	e.width = w
	return nil
}

// write copies b to the cursor in every engine and advances it.
func (e *Environment) write(b []byte) error {
	if e.cursor+uint64(len(b)) > e.config.Layout.CodeEnd() {
		return fmt.Errorf("writing %d bytes at 0x%X: %w", len(b), e.cursor, ErrCodeRegionFull)
	}
	for _, eng := range e.engines() {
		if err := eng.WriteMemory(e.cursor, b); err != nil {
			return fmt.Errorf("emit to %s: %w", eng.Name(), err)
		}
	}
	e.cursor += uint64(len(b))
	return nil
}
