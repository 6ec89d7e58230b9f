package oracle

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/m2diff/arch"
)

// TraceRegisters is the number of register slots in a trace: 15 general
// registers followed by the packed flags word.
const TraceRegisters = 16

// TraceFlagsSlot is the trace slot holding the packed flags word.
const TraceFlagsSlot = 15

// replayCompared is the number of general registers a replay checks
// (r0-r13). r14 is the link register consumed by the return.
const replayCompared = 14

// MemoryDelta is one halfword of working memory that differs from the
// baseline after a run.
type MemoryDelta struct {
	Address uint64 `json:"address"`
	Value   uint16 `json:"value"`
}

// PrecomputedTrace is a golden record of one validated run.
type PrecomputedTrace struct {
	Name         string                 `json:"name"`
	Instructions []uint32               `json:"instructions"`
	Initial      [TraceRegisters]uint64 `json:"initial"`
	Final        [TraceRegisters]uint64 `json:"final"`
	MemoryDelta  []MemoryDelta          `json:"memory_delta"`
}

// Thumb reports whether the trace runs in Thumb state, taken from the T
// bit of the initial flags word.
func (t *PrecomputedTrace) Thumb() bool {
	return uint32(t.Initial[TraceFlagsSlot])&arch.PackedThumb != 0
}

// Validate checks the trace is self-consistent.
func (t *PrecomputedTrace) Validate() error {
	if len(t.Instructions) == 0 {
		return fmt.Errorf("%w: trace %q has no instructions", ErrConfiguration, t.Name)
	}
	if t.Thumb() {
		for i, w := range t.Instructions {
			if w > 0xFFFF {
				return fmt.Errorf("%w: trace %q instruction %d (0x%X) is not a halfword",
					ErrConfiguration, t.Name, i, w)
			}
		}
	}
	for _, w := range []uint64{t.Initial[TraceFlagsSlot], t.Final[TraceFlagsSlot]} {
		if w&^uint64(arch.PackedMask) != 0 {
			return fmt.Errorf("%w: trace %q flags word 0x%X sets bits outside 0x%08X",
				ErrConfiguration, t.Name, w, uint32(arch.PackedMask))
		}
	}
	for _, d := range t.MemoryDelta {
		if d.Address%2 != 0 {
			return fmt.Errorf("%w: trace %q delta at odd address 0x%X",
				ErrConfiguration, t.Name, d.Address)
		}
	}
	return nil
}

// LoadTrace reads and validates a trace fixture.
func LoadTrace(path string) (*PrecomputedTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	t := &PrecomputedTrace{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse trace %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// SaveTrace writes a trace fixture.
func (t *PrecomputedTrace) SaveTrace(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize trace: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}

	return nil
}

// Baseline returns the deterministic fill of a data region: the halfword
// at offset i holds the low 16 bits of base+i.
func Baseline(base, size uint64) []byte {
	b := make([]byte, size)
	for i := uint64(0); i+1 < size; i += 2 {
		binary.LittleEndian.PutUint16(b[i:], uint16(base+i))
	}
	if size%2 == 1 {
		b[size-1] = byte(base + size - 1)
	}
	return b
}

// ApplyDelta returns a copy of baseline, which starts at base, with every
// delta written over it.
func ApplyDelta(baseline []byte, base uint64, deltas []MemoryDelta) ([]byte, error) {
	out := make([]byte, len(baseline))
	copy(out, baseline)

	for _, d := range deltas {
		if d.Address < base || d.Address-base+2 > uint64(len(out)) {
			return nil, fmt.Errorf("%w: delta at 0x%X outside [0x%X, 0x%X)",
				ErrConfiguration, d.Address, base, base+uint64(len(out)))
		}
		binary.LittleEndian.PutUint16(out[d.Address-base:], d.Value)
	}
	return out, nil
}

// DeltaFrom lists the halfwords where final differs from baseline. Both
// start at base.
func DeltaFrom(baseline, final []byte, base uint64) []MemoryDelta {
	var deltas []MemoryDelta
	for i := 0; i+1 < len(final) && i+1 < len(baseline); i += 2 {
		got := binary.LittleEndian.Uint16(final[i:])
		if got != binary.LittleEndian.Uint16(baseline[i:]) {
			deltas = append(deltas, MemoryDelta{Address: base + uint64(i), Value: got})
		}
	}
	return deltas
}
