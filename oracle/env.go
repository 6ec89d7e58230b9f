package oracle

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/m2diff/arch"
)

// Environment owns the guest address space of one test case in both
// engines, the instruction stream written into it and the execution of
// that stream.
type Environment struct {
	config    *Config
	subject   arch.Subject
	reference arch.Reference // nil when degraded

	log logr.Logger

	// mappings records what Setup mapped so Teardown can undo exactly that.
	mappings []mapping

	ready     bool
	cursor    uint64
	width     Width
	finalized bool
}

type mapping struct {
	engine arch.Engine
	base   uint64
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithLogger sets the environment logger.
func WithLogger(log logr.Logger) EnvOption {
	return func(e *Environment) {
		e.log = log
	}
}

// NewEnvironment validates config and binds the engines. A nil or
// unavailable reference, or a config that disables it, puts the
// environment in degraded mode, which Degraded reports.
func NewEnvironment(
	config *Config,
	subject arch.Subject,
	reference arch.Reference,
	opts ...EnvOption,
) (*Environment, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: no subject engine", ErrConfiguration)
	}

	e := &Environment{
		config:  config.Clone(),
		subject: subject,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if reference != nil && reference.Available() && config.UseReference {
		e.reference = reference
	} else {
		e.log.Info("reference engine unavailable, comparisons are disabled",
			"subject", subject.Name())
	}

	return e, nil
}

// Degraded reports whether the environment runs the subject alone.
func (e *Environment) Degraded() bool {
	return e.reference == nil
}

// Config returns the environment's configuration.
func (e *Environment) Config() *Config {
	return e.config
}

// Layout returns the guest address space layout.
func (e *Environment) Layout() Layout {
	return e.config.Layout
}

// Subject returns the subject engine.
func (e *Environment) Subject() arch.Subject {
	return e.subject
}

// Reference returns the reference engine, or nil when degraded.
func (e *Environment) Reference() arch.Reference {
	return e.reference
}

func (e *Environment) engines() []arch.Engine {
	if e.reference == nil {
		return []arch.Engine{e.subject}
	}
	return []arch.Engine{e.subject, e.reference}
}

// Setup maps the code region read+execute and the data region read+write
// in every engine and rewinds the stream. On failure whatever was mapped
// stays recorded for Teardown.
func (e *Environment) Setup() error {
	if e.ready {
		return fmt.Errorf("%w: environment already set up", ErrConfiguration)
	}

	l := e.config.Layout
	regions := []struct {
		base, size uint64
		perm       arch.Perm
	}{
		{l.CodeBase, l.CodeSize, arch.PermRX},
		{l.DataBase, l.DataSize, arch.PermRW},
	}

	for _, eng := range e.engines() {
		for _, r := range regions {
			if err := eng.Map(r.base, r.size, r.perm); err != nil {
				return fmt.Errorf("setup %s: %w", eng.Name(), err)
			}
			e.mappings = append(e.mappings, mapping{engine: eng, base: r.base})
		}
	}

	e.ready = true
	e.cursor = l.CodeBase
	e.width = WidthUnset
	e.finalized = false

	return nil
}

// Teardown releases every mapping Setup made. It is safe to call more
// than once and after a failed Setup.
func (e *Environment) Teardown() error {
	var errs []error
	for i := len(e.mappings) - 1; i >= 0; i-- {
		m := e.mappings[i]
		if err := m.engine.Unmap(m.base); err != nil {
			errs = append(errs, fmt.Errorf("teardown %s: %w", m.engine.Name(), err))
		}
	}

	e.mappings = nil
	e.ready = false
	e.cursor = e.config.Layout.CodeBase
	e.width = WidthUnset
	e.finalized = false

	return errors.Join(errs...)
}

// Reset is Teardown followed by Setup.
func (e *Environment) Reset() error {
	if err := e.Teardown(); err != nil {
		return err
	}
	return e.Setup()
}

// ReadData returns the data region of the subject and, unless degraded,
// of the reference.
func (e *Environment) ReadData() (subject, reference []byte, err error) {
	l := e.config.Layout
	subject, err = e.subject.ReadMemory(l.DataBase, int(l.DataSize))
	if err != nil {
		return nil, nil, fmt.Errorf("read subject data: %w", err)
	}
	if e.reference == nil {
		return subject, nil, nil
	}
	reference, err = e.reference.ReadMemory(l.DataBase, int(l.DataSize))
	if err != nil {
		return nil, nil, fmt.Errorf("read reference data: %w", err)
	}
	return subject, reference, nil
}

// FillBaseline writes the deterministic baseline pattern into the data
// region of every engine.
func (e *Environment) FillBaseline() error {
	l := e.config.Layout
	baseline := Baseline(l.DataBase, l.DataSize)
	for _, eng := range e.engines() {
		if err := eng.WriteMemory(l.DataBase, baseline); err != nil {
			return fmt.Errorf("fill %s data: %w", eng.Name(), err)
		}
	}
	return nil
}
