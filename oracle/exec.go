package oracle

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// Execution describes what Run did.
type Execution struct {
	// Units is the number of emitted instructions, return excluded. The
	// reference runs exactly this many.
	Units uint64
	// Width is the stream width the count was derived from.
	Width Width
	// ReferenceRan is true when the reference engine executed.
	ReferenceRan bool
	// Degraded is true when no reference engine is bound.
	Degraded bool
}

// returnSequence returns the encoding of the unit terminator for w.
func returnSequence(w Width) []byte {
	if w == Width16 {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, insts.ThumbBXLR)
		return b
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, insts.RetWord)
	return b
}

// Run finalizes the stream with its return sequence, executes it as one
// unit on the subject and, unless skipReference is set or the environment
// is degraded, the same number of instructions on the reference.
func (e *Environment) Run(skipReference bool) (Execution, error) {
	if !e.ready {
		return Execution{}, fmt.Errorf("%w: run before setup", ErrConfiguration)
	}

	thumb := e.subject.ReadFlag(arch.FlagThumb)
	w := e.width
	if w == WidthUnset {
		w = Width32
		if thumb {
			w = Width16
		}
	}
	if (w == Width16) != thumb {
		return Execution{}, fmt.Errorf("%w: %s stream with Thumb flag %t",
			ErrConfiguration, w, thumb)
	}

	units := e.Emitted() / w.Bytes()
	if !e.finalized {
		if err := e.write(returnSequence(w)); err != nil {
			return Execution{}, err
		}
		e.width = w
		e.finalized = true
	} else {
		units--
	}

	exec := Execution{Units: units, Width: w, Degraded: e.Degraded()}
	entry := e.config.Layout.CodeBase

	if err := e.subject.Execute(entry); err != nil {
		return exec, fmt.Errorf("subject %s: %w", e.subject.Name(), err)
	}

	if skipReference || e.reference == nil {
		e.log.V(1).Info("subject-only run", "units", units, "degraded", exec.Degraded)
		return exec, nil
	}

	if err := e.reference.RunForInstructionCount(entry, units); err != nil {
		return exec, fmt.Errorf("reference %s: %w", e.reference.Name(), err)
	}
	exec.ReferenceRan = true

	return exec, nil
}
