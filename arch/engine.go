package arch

// Engine is the register/memory surface shared by both execution engines.
type Engine interface {
	Name() string

	Map(base, size uint64, perm Perm) error
	Unmap(base uint64) error
	WriteMemory(addr uint64, data []byte) error
	ReadMemory(addr uint64, n int) ([]byte, error)

	ReadRegister(index int) uint64
	WriteRegister(index int, value uint64)
	ReadVector(index int) Vec128
	WriteVector(index int, value Vec128)
	ReadFlag(flag Flag) bool
	WriteFlag(flag Flag, value bool)
	ReadFPCR() FPCR
	WriteFPCR(value FPCR)
	ReadFPSR() FPSR
	WriteFPSR(value FPSR)
}

// Subject is the engine under test. Execute runs one translation unit
// starting at entry until its return instruction.
type Subject interface {
	Engine
	Execute(entry uint64) error
}

// Reference is the ground-truth engine. It may be absent on some hosts, in
// which case Available reports false.
type Reference interface {
	Engine
	Available() bool
	RunForInstructionCount(entry uint64, n uint64) error
}
