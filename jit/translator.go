// Package jit implements the subject engine: a translator that turns a run
// of guest instructions ending in a return into a cached sequence of host
// closures.
package jit

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/insts"
)

// DefaultMaxUnitInstructions bounds a unit to what fits in 4 KiB of Thumb code.
const DefaultMaxUnitInstructions = 2048

// Translator executes guest code one translation unit at a time.
type Translator struct {
	cpu     cpu
	memory  *Memory
	decoder *insts.Decoder
	cache   *BlockCache

	log logr.Logger

	maxInstructions int
	cacheConfig     CacheConfig
	executed        uint64
}

// Option is a functional option for configuring the Translator.
type Option func(*Translator)

// WithLogger sets the logger used for translation diagnostics.
func WithLogger(log logr.Logger) Option {
	return func(t *Translator) {
		t.log = log
	}
}

// WithCacheConfig sets the translation cache geometry.
func WithCacheConfig(config CacheConfig) Option {
	return func(t *Translator) {
		t.cacheConfig = config
	}
}

// WithMaxUnitInstructions bounds the length of one translation unit.
func WithMaxUnitInstructions(n int) Option {
	return func(t *Translator) {
		t.maxInstructions = n
	}
}

// New creates a translator with an empty address space.
func New(opts ...Option) *Translator {
	t := &Translator{
		memory:          NewMemory(),
		decoder:         insts.NewDecoder(),
		log:             logr.Discard(),
		maxInstructions: DefaultMaxUnitInstructions,
		cacheConfig:     DefaultCacheConfig(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.cache = NewBlockCache(t.cacheConfig)

	return t
}

// CacheStats returns translation cache statistics.
func (t *Translator) CacheStats() CacheStats {
	return t.cache.Stats()
}

// PC returns the address the last unit returned to.
func (t *Translator) PC() uint64 {
	return t.cpu.pc
}

// Executed returns the number of guest instructions run so far.
func (t *Translator) Executed() uint64 {
	return t.executed
}

// Execute runs the unit at entry in the current instruction set until its
// return instruction.
func (t *Translator) Execute(entry uint64) error {
	thumb := t.cpu.thumb

	u := t.cache.Lookup(entry, thumb)
	if u == nil {
		var err error
		u, err = t.translate(entry, thumb)
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		t.cache.Insert(u)
		t.log.V(1).Info("translated unit",
			"entry", fmt.Sprintf("0x%X", entry), "thumb", thumb,
			"instructions", u.Instructions())
	}

	t.cpu.pc = entry
	for i, o := range u.ops {
		if err := o(&t.cpu, t.memory); err != nil {
			return fmt.Errorf("PC=0x%X: %w", entry+uint64(i)*u.width(), err)
		}
		t.executed++
	}

	return nil
}

// Name identifies the engine in reports.
func (t *Translator) Name() string { return "jit" }

// Map maps a zero-filled region with the given permissions.
func (t *Translator) Map(base, size uint64, perm arch.Perm) error {
	return t.memory.Map(base, size, perm)
}

// Unmap releases the region at base and drops translations of its code.
func (t *Translator) Unmap(base uint64) error {
	size, err := t.memory.Unmap(base)
	if err != nil {
		return err
	}
	t.cache.Invalidate(base, size)
	return nil
}

// WriteMemory copies data into guest memory, ignoring permissions. Writes
// to executable memory invalidate overlapping translations.
func (t *Translator) WriteMemory(addr uint64, data []byte) error {
	if err := t.memory.Write(addr, data, 0); err != nil {
		return err
	}
	if t.memory.Executable(addr) {
		t.cache.Invalidate(addr, uint64(len(data)))
	}
	return nil
}

// ReadMemory copies n bytes out of guest memory, ignoring permissions.
func (t *Translator) ReadMemory(addr uint64, n int) ([]byte, error) {
	return t.memory.Read(addr, n, 0)
}

// ReadRegister returns X0-X30, or SP for index 31.
func (t *Translator) ReadRegister(index int) uint64 { return t.cpu.x[index] }

// WriteRegister writes X0-X30, or SP for index 31.
func (t *Translator) WriteRegister(index int, value uint64) { t.cpu.x[index] = value }

// ReadVector returns V<index>.
func (t *Translator) ReadVector(index int) arch.Vec128 { return t.cpu.v[index] }

// WriteVector writes V<index>.
func (t *Translator) WriteVector(index int, value arch.Vec128) { t.cpu.v[index] = value }

// ReadFlag returns one condition or mode flag.
func (t *Translator) ReadFlag(flag arch.Flag) bool { return t.cpu.flag(flag) }

// WriteFlag sets one condition or mode flag.
func (t *Translator) WriteFlag(flag arch.Flag, value bool) { t.cpu.setFlag(flag, value) }

// ReadFPCR returns the floating-point control word.
func (t *Translator) ReadFPCR() arch.FPCR { return t.cpu.fpcr }

// WriteFPCR sets the floating-point control word.
func (t *Translator) WriteFPCR(value arch.FPCR) { t.cpu.fpcr = value & arch.FPCRMask }

// ReadFPSR returns the floating-point status word.
func (t *Translator) ReadFPSR() arch.FPSR { return t.cpu.fpsr }

// WriteFPSR sets the floating-point status word.
func (t *Translator) WriteFPSR(value arch.FPSR) { t.cpu.fpsr = value & arch.FPSRMask }
