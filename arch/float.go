package arch

import "fmt"

// Precision selects an IEEE 754 binary interchange format.
type Precision uint8

// Supported precisions.
const (
	Half Precision = iota
	Single
	Double
)

type formatInfo struct {
	width    uint
	expBits  uint
	mantBits uint
}

var formats = [...]formatInfo{
	Half:   {width: 16, expBits: 5, mantBits: 10},
	Single: {width: 32, expBits: 8, mantBits: 23},
	Double: {width: 64, expBits: 11, mantBits: 52},
}

// Width returns the format width in bits.
func (p Precision) Width() uint { return formats[p].width }

// ExpBits returns the exponent field width.
func (p Precision) ExpBits() uint { return formats[p].expBits }

// MantBits returns the stored mantissa (fraction) field width.
func (p Precision) MantBits() uint { return formats[p].mantBits }

// WidthMask covers all bits of the format.
func (p Precision) WidthMask() uint64 {
	return uint64(1)<<p.Width() - 1
}

// SignMask selects the sign bit.
func (p Precision) SignMask() uint64 {
	return uint64(1) << (p.Width() - 1)
}

// ExpMask selects the exponent field.
func (p Precision) ExpMask() uint64 {
	return (uint64(1)<<p.ExpBits() - 1) << p.MantBits()
}

// MantMask selects the fraction field.
func (p Precision) MantMask() uint64 {
	return uint64(1)<<p.MantBits() - 1
}

// QuietBit is the most significant fraction bit, set for quiet NaNs.
func (p Precision) QuietBit() uint64 {
	return uint64(1) << (p.MantBits() - 1)
}

// DefaultNaN returns the positive default quiet NaN of the format.
func (p Precision) DefaultNaN() uint64 {
	return p.ExpMask() | p.QuietBit()
}

func (p Precision) String() string {
	switch p {
	case Half:
		return "half"
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("Precision(%d)", uint8(p))
	}
}

// Category classifies a floating-point bit pattern.
type Category uint8

// Categories.
const (
	CatZero Category = iota
	CatSubnormal
	CatNormal
	CatInfinity
	CatQuietNaN
	CatSignalingNaN
)

func (c Category) String() string {
	return [...]string{"zero", "subnormal", "normal", "infinity", "qnan", "snan"}[c]
}

// IsNaN reports whether the category is either NaN kind.
func (c Category) IsNaN() bool {
	return c == CatQuietNaN || c == CatSignalingNaN
}

// IsNormalOrSubnormal reports whether the category is a non-zero finite value.
func (c Category) IsNormalOrSubnormal() bool {
	return c == CatNormal || c == CatSubnormal
}

// Classify returns the category of bits interpreted in precision p. Bits above
// the format width are ignored.
func (p Precision) Classify(bits uint64) Category {
	bits &= p.WidthMask()
	exp := bits & p.ExpMask()
	mant := bits & p.MantMask()
	switch {
	case exp == 0 && mant == 0:
		return CatZero
	case exp == 0:
		return CatSubnormal
	case exp != p.ExpMask():
		return CatNormal
	case mant == 0:
		return CatInfinity
	case mant&p.QuietBit() != 0:
		return CatQuietNaN
	default:
		return CatSignalingNaN
	}
}
