// Package arch defines the engine-neutral architectural vocabulary shared by
// the subject engine, the reference engine and the oracle that compares them.
//
// It covers:
//   - the architectural State snapshot (general, vector, flag and FP registers)
//   - 128-bit vector values with typed lane views
//   - FPCR/FPSR control and status words in their ARM bit layout
//   - floating-point bit-pattern classification per precision
//   - the Engine, Subject and Reference interfaces consumed by the oracle
package arch

import "fmt"

// NumRegs is the number of general-purpose register slots. Index 31 holds
// the stack pointer.
const NumRegs = 32

// SP is the register index that aliases the stack pointer.
const SP = 31

// NumVectors is the number of 128-bit vector registers.
const NumVectors = 32

// Flag names a single condition or mode flag.
type Flag uint8

// Condition and mode flags.
const (
	FlagN     Flag = iota // Negative
	FlagZ                 // Zero
	FlagC                 // Carry
	FlagV                 // Overflow
	FlagQ                 // Saturation
	FlagThumb             // Thumb instruction-set mode
)

// ConditionFlags lists the flags compared as one batch by the oracle.
var ConditionFlags = []Flag{FlagN, FlagZ, FlagC, FlagV, FlagQ}

func (f Flag) String() string {
	switch f {
	case FlagN:
		return "N"
	case FlagZ:
		return "Z"
	case FlagC:
		return "C"
	case FlagV:
		return "V"
	case FlagQ:
		return "Q"
	case FlagThumb:
		return "T"
	default:
		return fmt.Sprintf("Flag(%d)", uint8(f))
	}
}

// Flags holds the condition flags plus the instruction-set mode bit.
type Flags struct {
	N     bool
	Z     bool
	C     bool
	V     bool
	Q     bool
	Thumb bool
}

// Get returns the value of a single flag.
func (f Flags) Get(flag Flag) bool {
	switch flag {
	case FlagN:
		return f.N
	case FlagZ:
		return f.Z
	case FlagC:
		return f.C
	case FlagV:
		return f.V
	case FlagQ:
		return f.Q
	case FlagThumb:
		return f.Thumb
	}
	return false
}

// Set updates a single flag.
func (f *Flags) Set(flag Flag, v bool) {
	switch flag {
	case FlagN:
		f.N = v
	case FlagZ:
		f.Z = v
	case FlagC:
		f.C = v
	case FlagV:
		f.V = v
	case FlagQ:
		f.Q = v
	case FlagThumb:
		f.Thumb = v
	}
}

// Packed flags word bit positions (CPSR layout).
const (
	PackedN     = 1 << 31
	PackedZ     = 1 << 30
	PackedC     = 1 << 29
	PackedV     = 1 << 28
	PackedQ     = 1 << 27
	PackedThumb = 1 << 5

	PackedMask = PackedN | PackedZ | PackedC | PackedV | PackedQ | PackedThumb
)

// Pack encodes the flags into a CPSR-style 32-bit word.
func (f Flags) Pack() uint32 {
	var w uint32
	if f.N {
		w |= PackedN
	}
	if f.Z {
		w |= PackedZ
	}
	if f.C {
		w |= PackedC
	}
	if f.V {
		w |= PackedV
	}
	if f.Q {
		w |= PackedQ
	}
	if f.Thumb {
		w |= PackedThumb
	}
	return w
}

// UnpackFlags decodes a CPSR-style word. Bits outside PackedMask are ignored.
func UnpackFlags(w uint32) Flags {
	return Flags{
		N:     w&PackedN != 0,
		Z:     w&PackedZ != 0,
		C:     w&PackedC != 0,
		V:     w&PackedV != 0,
		Q:     w&PackedQ != 0,
		Thumb: w&PackedThumb != 0,
	}
}

func (f Flags) String() string {
	b := []byte("nzcvq")
	for i, flag := range ConditionFlags {
		if f.Get(flag) {
			b[i] -= 'a' - 'A'
		}
	}
	if f.Thumb {
		return string(b) + " T"
	}
	return string(b)
}

// Perm is a memory mapping permission set.
type Perm uint8

// Permission bits.
const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// Common permission combinations.
const (
	PermRX = PermRead | PermExec
	PermRW = PermRead | PermWrite
)

func (p Perm) String() string {
	b := []byte("---")
	if p&PermRead != 0 {
		b[0] = 'r'
	}
	if p&PermWrite != 0 {
		b[1] = 'w'
	}
	if p&PermExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}
