package oracle

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sarchlab/m2diff/arch"
)

// Mismatch is one field on which the engines disagree.
type Mismatch struct {
	Field     string
	Subject   string
	Reference string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: subject=%s reference=%s", m.Field, m.Subject, m.Reference)
}

// Divergence is the error reported when the engines disagree. Mismatches
// are in comparator order.
type Divergence struct {
	Mismatches []Mismatch
}

func (d *Divergence) Error() string {
	parts := make([]string, len(d.Mismatches))
	for i, m := range d.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("engines diverge on %d field(s): %s",
		len(d.Mismatches), strings.Join(parts, "; "))
}

// Field returns the mismatch for the named field.
func (d *Divergence) Field(name string) (Mismatch, bool) {
	for _, m := range d.Mismatches {
		if m.Field == name {
			return m, true
		}
	}
	return Mismatch{}, false
}

// Comparator is the decision function over two post-execution states.
type Comparator struct {
	// Registers is how many general registers, from X0 up, are compared.
	Registers int
	// Mask selects the FPSR bits that must agree.
	Mask arch.FPSR
	// Tolerance governs V0.
	Tolerance ToleranceMode
	// DataBase is the address of the first byte of working memory.
	DataBase uint64
}

// Compare checks general registers, vector registers, condition flags,
// masked FPSR and, when both are non-nil, the working memory images. It
// returns nil when the engines agree.
func (c Comparator) Compare(subject, reference arch.State, subjectData, referenceData []byte) *Divergence {
	var ms []Mismatch

	for i := 0; i < c.Registers; i++ {
		if subject.X[i] != reference.X[i] {
			ms = append(ms, Mismatch{
				Field:     registerName(i),
				Subject:   fmt.Sprintf("0x%016X", subject.X[i]),
				Reference: fmt.Sprintf("0x%016X", reference.X[i]),
			})
		}
	}

	for i := range subject.V {
		s, r := subject.V[i], reference.V[i]
		if s == r {
			continue
		}
		if i == 0 && c.Tolerance != Exact && c.Tolerance.Accepts(s, r) {
			continue
		}
		ms = append(ms, Mismatch{
			Field:     fmt.Sprintf("V%d", i),
			Subject:   s.String(),
			Reference: r.String(),
		})
	}

	if m, ok := compareFlags(subject.Flags, reference.Flags); !ok {
		ms = append(ms, m)
	}

	if s, r := subject.FPSR&c.Mask, reference.FPSR&c.Mask; s != r {
		ms = append(ms, Mismatch{Field: "FPSR", Subject: s.String(), Reference: r.String()})
	}

	if subjectData != nil && referenceData != nil {
		if m, ok := c.compareMemory(subjectData, referenceData); !ok {
			ms = append(ms, m)
		}
	}

	if len(ms) == 0 {
		return nil
	}
	return &Divergence{Mismatches: ms}
}

// compareFlags checks every condition flag at once so that a report shows
// all of them together.
func compareFlags(s, r arch.Flags) (Mismatch, bool) {
	mask := uint32(arch.PackedN | arch.PackedZ | arch.PackedC | arch.PackedV | arch.PackedQ)
	if s.Pack()&mask == r.Pack()&mask {
		return Mismatch{}, true
	}
	return Mismatch{Field: "flags", Subject: conditionString(s), Reference: conditionString(r)}, false
}

func conditionString(f arch.Flags) string {
	out := []byte("nzcvq")
	for i, set := range []bool{f.N, f.Z, f.C, f.V, f.Q} {
		if set {
			out[i] -= 'a' - 'A'
		}
	}
	return string(out)
}

func (c Comparator) compareMemory(s, r []byte) (Mismatch, bool) {
	if bytes.Equal(s, r) {
		return Mismatch{}, true
	}

	first := -1
	count := 0
	n := min(len(s), len(r))
	for i := 0; i < n; i++ {
		if s[i] != r[i] {
			if first < 0 {
				first = i
			}
			count++
		}
	}
	count += max(len(s), len(r)) - n
	if first < 0 {
		first = n
	}

	m := Mismatch{
		Field: fmt.Sprintf("memory[0x%X] (%d byte(s) differ)", c.DataBase+uint64(first), count),
	}
	if first < len(s) {
		m.Subject = fmt.Sprintf("0x%02X", s[first])
	}
	if first < len(r) {
		m.Reference = fmt.Sprintf("0x%02X", r[first])
	}
	return m, false
}
