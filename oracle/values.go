package oracle

import (
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/m2diff/arch"
)

// Generator draws operand bit patterns that exercise numeric corner cases.
// It is deterministic for a given source.
type Generator struct {
	rng      *rand.Rand
	maxDraws int
}

// NewGenerator creates a generator seeded with seed. Each retrying draw
// gives up after maxDraws attempts.
func NewGenerator(seed uint64, maxDraws int) *Generator {
	return NewGeneratorFromSource(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15), maxDraws)
}

// NewGeneratorFromSource creates a generator over an arbitrary source.
func NewGeneratorFromSource(src rand.Source, maxDraws int) *Generator {
	return &Generator{rng: rand.New(src), maxDraws: maxDraws}
}

// Uint64 returns a uniformly random 64-bit value.
func (g *Generator) Uint64() uint64 {
	return g.rng.Uint64()
}

func (g *Generator) draw(p arch.Precision) uint64 {
	return g.rng.Uint64() & p.WidthMask()
}

// Normal draws until the exponent field is neither all zeros nor all ones.
func (g *Generator) Normal(p arch.Precision) (uint64, error) {
	for i := 0; i < g.maxDraws; i++ {
		bits := g.draw(p)
		if exp := bits & p.ExpMask(); exp != 0 && exp != p.ExpMask() {
			return bits, nil
		}
	}
	return 0, fmt.Errorf("normal(%s) after %d draws: %w", p, g.maxDraws, ErrGeneratorExhausted)
}

// Subnormal draws with the exponent field forced to zero until the
// fraction is non-zero. The sign is kept.
func (g *Generator) Subnormal(p arch.Precision) (uint64, error) {
	for i := 0; i < g.maxDraws; i++ {
		bits := g.draw(p) &^ p.ExpMask()
		if bits&p.MantMask() != 0 {
			return bits, nil
		}
	}
	return 0, fmt.Errorf("subnormal(%s) after %d draws: %w", p, g.maxDraws, ErrGeneratorExhausted)
}

// NormalOrSubnormal draws a normal or subnormal value with equal odds.
func (g *Generator) NormalOrSubnormal(p arch.Precision) (uint64, error) {
	if g.rng.IntN(2) == 0 {
		return g.Subnormal(p)
	}
	return g.Normal(p)
}

// FloatBoundaries returns the zero, infinity, NaN and range-edge patterns
// of p, both signs where the sign matters.
func FloatBoundaries(p arch.Precision) []uint64 {
	sign := p.SignMask()
	one := uint64(1)<<(p.ExpBits()-1) - 1
	one <<= p.MantBits()
	minNormal := uint64(1) << p.MantBits()
	maxNormal := (p.ExpMask() - minNormal) | p.MantMask()

	return []uint64{
		0, sign,
		p.ExpMask(), sign | p.ExpMask(),
		p.DefaultNaN(), p.ExpMask() | 1,
		1, sign | 1,
		p.MantMask(),
		minNormal, sign | minNormal,
		maxNormal, sign | maxNormal,
		one, sign | one,
	}
}

// IntBoundaries returns zero, all ones and the extreme signed values for
// a 32- or 64-bit operand.
func IntBoundaries(is64 bool) []uint64 {
	if is64 {
		return []uint64{0, ^uint64(0), 1 << 63, 1<<63 - 1}
	}
	return []uint64{0, 0xFFFFFFFF, 0x80000000, 0x7FFFFFFF}
}
