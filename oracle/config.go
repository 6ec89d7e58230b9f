package oracle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/jit"
)

// Layout places the code and data regions in the guest address space.
type Layout struct {
	CodeBase uint64 `json:"code_base"`
	CodeSize uint64 `json:"code_size"`
	DataBase uint64 `json:"data_base"`
	DataSize uint64 `json:"data_size"`
}

// DefaultLayout returns 4 KiB of code at 0x10000 and 4 KiB of data at
// 0x20000.
func DefaultLayout() Layout {
	return Layout{
		CodeBase: 0x10000,
		CodeSize: 0x1000,
		DataBase: 0x20000,
		DataSize: 0x1000,
	}
}

// CodeEnd returns the first address past the code region.
func (l Layout) CodeEnd() uint64 { return l.CodeBase + l.CodeSize }

// DataEnd returns the first address past the data region.
func (l Layout) DataEnd() uint64 { return l.DataBase + l.DataSize }

// Validate checks that both regions are non-empty, aligned and disjoint.
func (l Layout) Validate() error {
	if l.CodeSize == 0 || l.DataSize == 0 {
		return fmt.Errorf("%w: code and data regions must be non-empty", ErrConfiguration)
	}
	if l.CodeBase%4 != 0 || l.CodeSize%4 != 0 {
		return fmt.Errorf("%w: code region must be word aligned", ErrConfiguration)
	}
	if l.DataBase%2 != 0 || l.DataSize%2 != 0 {
		return fmt.Errorf("%w: data region must be halfword aligned", ErrConfiguration)
	}
	if l.CodeEnd() < l.CodeBase || l.DataEnd() < l.DataBase {
		return fmt.Errorf("%w: region wraps the address space", ErrConfiguration)
	}
	if l.CodeBase < l.DataEnd() && l.DataBase < l.CodeEnd() {
		return fmt.Errorf("%w: code [0x%X, 0x%X) overlaps data [0x%X, 0x%X)",
			ErrConfiguration, l.CodeBase, l.CodeEnd(), l.DataBase, l.DataEnd())
	}
	return nil
}

// Config holds everything an environment and its engines are built from.
// It is passed explicitly; nothing here is process-wide.
type Config struct {
	// Layout places the code and data regions.
	Layout Layout `json:"layout"`

	// CompareRegisters is how many general registers, from X0 up, the
	// comparator checks.
	// Default: 31 (X0-X30).
	CompareRegisters int `json:"compare_registers"`

	// ComparisonMask selects the FPSR bits compared when a case does not
	// set its own.
	ComparisonMask arch.FPSR `json:"comparison_mask"`

	// GeneratorMaxDraws caps the retries of the value generators.
	// Default: 1000.
	GeneratorMaxDraws int `json:"generator_max_draws"`

	// Seed seeds the value generator.
	Seed uint64 `json:"seed"`

	// UseReference enables the reference engine. When false every
	// environment runs degraded.
	UseReference bool `json:"use_reference"`

	// TranslationCache is the subject's translation cache geometry.
	TranslationCache jit.CacheConfig `json:"translation_cache"`

	// MaxUnitInstructions bounds one translation unit.
	MaxUnitInstructions int `json:"max_unit_instructions"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Layout:              DefaultLayout(),
		CompareRegisters:    31,
		ComparisonMask:      arch.FPSRIOC | arch.FPSRDZC | arch.FPSROFC | arch.FPSRIXC,
		GeneratorMaxDraws:   1000,
		Seed:                1,
		UseReference:        true,
		TranslationCache:    jit.DefaultCacheConfig(),
		MaxUnitInstructions: jit.DefaultMaxUnitInstructions,
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse oracle config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize oracle config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write oracle config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration can build an environment.
func (c *Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.CompareRegisters < 1 || c.CompareRegisters > arch.NumRegs {
		return fmt.Errorf("%w: compare_registers must be in [1, %d]",
			ErrConfiguration, arch.NumRegs)
	}
	if c.ComparisonMask&^arch.FPSRMask != 0 {
		return fmt.Errorf("%w: comparison_mask has unknown bits", ErrConfiguration)
	}
	if c.GeneratorMaxDraws <= 0 {
		return fmt.Errorf("%w: generator_max_draws must be > 0", ErrConfiguration)
	}
	if c.TranslationCache.Sets <= 0 || c.TranslationCache.Associativity <= 0 {
		return fmt.Errorf("%w: translation_cache geometry must be > 0", ErrConfiguration)
	}
	if c.MaxUnitInstructions <= 0 {
		return fmt.Errorf("%w: max_unit_instructions must be > 0", ErrConfiguration)
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
