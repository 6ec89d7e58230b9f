package arch

import "fmt"

// RoundingMode is the FPCR.RMode field.
type RoundingMode uint8

// Rounding modes.
const (
	RoundNearest  RoundingMode = 0 // RN: to nearest, ties to even
	RoundPlusInf  RoundingMode = 1 // RP: towards +Inf
	RoundMinusInf RoundingMode = 2 // RM: towards -Inf
	RoundZero     RoundingMode = 3 // RZ: towards zero
)

func (m RoundingMode) String() string {
	switch m {
	case RoundNearest:
		return "RN"
	case RoundPlusInf:
		return "RP"
	case RoundMinusInf:
		return "RM"
	case RoundZero:
		return "RZ"
	default:
		return fmt.Sprintf("RoundingMode(%d)", uint8(m))
	}
}

// FPCR is the floating-point control word.
type FPCR uint32

// FPCR bit positions.
const (
	FPCRAHP FPCR = 1 << 26 // alternate half-precision
	FPCRDN  FPCR = 1 << 25 // default NaN
	FPCRFZ  FPCR = 1 << 24 // flush to zero

	fpcrRModeShift = 22
	fpcrRModeMask  = FPCR(3) << fpcrRModeShift
)

// FPCRMask covers every control bit modelled here.
const FPCRMask = FPCRAHP | FPCRDN | FPCRFZ | fpcrRModeMask

// NewFPCR packs the control fields into a single word.
func NewFPCR(rmode RoundingMode, fz, dn, ahp bool) FPCR {
	c := FPCR(rmode&3) << fpcrRModeShift
	if fz {
		c |= FPCRFZ
	}
	if dn {
		c |= FPCRDN
	}
	if ahp {
		c |= FPCRAHP
	}
	return c
}

// RoundingMode returns the RMode field.
func (c FPCR) RoundingMode() RoundingMode {
	return RoundingMode((c & fpcrRModeMask) >> fpcrRModeShift)
}

// FlushToZero reports whether FZ is set.
func (c FPCR) FlushToZero() bool { return c&FPCRFZ != 0 }

// DefaultNaN reports whether DN is set.
func (c FPCR) DefaultNaN() bool { return c&FPCRDN != 0 }

// AltHalf reports whether AHP is set.
func (c FPCR) AltHalf() bool { return c&FPCRAHP != 0 }

func (c FPCR) String() string {
	return fmt.Sprintf("FPCR{%s fz=%t dn=%t ahp=%t}",
		c.RoundingMode(), c.FlushToZero(), c.DefaultNaN(), c.AltHalf())
}

// FPSR is the floating-point status word. Exception bits are cumulative.
type FPSR uint32

// FPSR bit positions.
const (
	FPSRIOC FPSR = 1 << 0  // invalid operation
	FPSRDZC FPSR = 1 << 1  // divide by zero
	FPSROFC FPSR = 1 << 2  // overflow
	FPSRUFC FPSR = 1 << 3  // underflow
	FPSRIXC FPSR = 1 << 4  // inexact
	FPSRIDC FPSR = 1 << 7  // input denormal
	FPSRQC  FPSR = 1 << 27 // cumulative saturation
)

// FPSRMask covers every status bit modelled here.
const FPSRMask = FPSRIOC | FPSRDZC | FPSROFC | FPSRUFC | FPSRIXC | FPSRIDC | FPSRQC

var fpsrNames = []struct {
	bit  FPSR
	name string
}{
	{FPSRIOC, "IOC"},
	{FPSRDZC, "DZC"},
	{FPSROFC, "OFC"},
	{FPSRUFC, "UFC"},
	{FPSRIXC, "IXC"},
	{FPSRIDC, "IDC"},
	{FPSRQC, "QC"},
}

func (s FPSR) String() string {
	out := ""
	for _, n := range fpsrNames {
		if s&n.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if out == "" {
		return "0"
	}
	return out
}
