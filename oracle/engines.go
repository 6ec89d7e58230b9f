package oracle

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/m2diff/arch"
	"github.com/sarchlab/m2diff/emu"
	"github.com/sarchlab/m2diff/jit"
)

// NewEngines builds the subject and reference engines described by cfg.
// The reference is nil when cfg disables it.
func NewEngines(cfg *Config, log logr.Logger) (arch.Subject, arch.Reference) {
	subject := jit.New(
		jit.WithLogger(log.WithName("jit")),
		jit.WithCacheConfig(cfg.TranslationCache),
		jit.WithMaxUnitInstructions(cfg.MaxUnitInstructions),
	)

	var reference arch.Reference
	if cfg.UseReference {
		reference = emu.NewEmulator(emu.WithLogger(log.WithName("emu")))
	}

	return subject, reference
}
