package oracle

import (
	"fmt"

	"github.com/sarchlab/m2diff/arch"
)

// ToleranceMode selects how vector register 0 is compared.
type ToleranceMode uint8

// Tolerance modes.
const (
	Exact        ToleranceMode = iota // bit-for-bit equality
	OneULPSingle                      // four single lanes, each within 1 ULP
	OneULPDouble                      // two double lanes, each within 1 ULP
)

func (m ToleranceMode) String() string {
	switch m {
	case Exact:
		return "exact"
	case OneULPSingle:
		return "one-ulp-single"
	case OneULPDouble:
		return "one-ulp-double"
	default:
		return fmt.Sprintf("ToleranceMode(%d)", uint8(m))
	}
}

// Accepts reports whether subject and reference values of V0 agree under
// the mode. A lane qualifies for the ULP allowance only when both values
// are normal or subnormal; every other lane must match exactly.
func (m ToleranceMode) Accepts(subject, reference arch.Vec128) bool {
	if subject == reference {
		return true
	}

	switch m {
	case OneULPSingle:
		for i := 0; i < 4; i++ {
			if !withinOneULP(arch.Single, uint64(subject.Lane32(i)), uint64(reference.Lane32(i))) {
				return false
			}
		}
		return true
	case OneULPDouble:
		for i := 0; i < 2; i++ {
			if !withinOneULP(arch.Double, subject.Lane64(i), reference.Lane64(i)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func withinOneULP(p arch.Precision, a, b uint64) bool {
	if a == b {
		return true
	}
	if !p.Classify(a).IsNormalOrSubnormal() || !p.Classify(b).IsNormalOrSubnormal() {
		return false
	}
	return ULPDistance(p, a, b) <= 1
}

// ordered maps a finite bit pattern onto a line where adjacent values of
// the format are adjacent integers and both zeros meet at 0.
func ordered(p arch.Precision, bits uint64) int64 {
	bits &= p.WidthMask()
	if bits&p.SignMask() != 0 {
		return -int64(bits &^ p.SignMask())
	}
	return int64(bits)
}

// ULPDistance returns how many representable values of p lie between a
// and b, counting b. Both must be finite.
func ULPDistance(p arch.Precision, a, b uint64) uint64 {
	d := ordered(p, a) - ordered(p, b)
	if d < 0 {
		d = -d
	}
	return uint64(d)
}

// SkipPolicy lists result shapes whose exact form is implementation
// defined. A case whose run matches a set flag is skipped, not judged.
type SkipPolicy struct {
	NaNSingle bool `json:"nan_single"`
	NaNDouble bool `json:"nan_double"`
	Underflow bool `json:"underflow"`
	Overflow  bool `json:"overflow"`
}

// Evaluate returns the reason to skip, if any. Only the reference state is
// consulted: NaN checks look at its V0 and underflow and overflow at its
// FPSR. A subject that raises a status bit on its own cannot skip a case.
func (p SkipPolicy) Evaluate(reference arch.State) (string, bool) {
	v0 := reference.V[0]
	if p.NaNSingle {
		for i := 0; i < 4; i++ {
			if arch.Single.Classify(uint64(v0.Lane32(i))).IsNaN() {
				return fmt.Sprintf("reference V0 single lane %d is NaN", i), true
			}
		}
	}
	if p.NaNDouble {
		for i := 0; i < 2; i++ {
			if arch.Double.Classify(v0.Lane64(i)).IsNaN() {
				return fmt.Sprintf("reference V0 double lane %d is NaN", i), true
			}
		}
	}

	if p.Underflow && reference.FPSR&arch.FPSRUFC != 0 {
		return "underflow raised", true
	}
	if p.Overflow && reference.FPSR&arch.FPSROFC != 0 {
		return "overflow raised", true
	}
	return "", false
}
