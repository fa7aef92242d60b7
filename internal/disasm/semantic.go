// Package disasm turns raw x86-64 code bytes into chunk.Instruction
// leaves. spec.md §1 treats "disassembler internals" as a non-goal — the
// upstream producer of the tree is a black box to the core algebra — but
// something still has to decode bytes into instructions with reported
// lengths, so this package is the thin, real implementation behind that
// boundary. It decodes with golang.org/x/arch/x86/x86asm, the package
// Go's own cmd/internal/objfile disassembler is built on.
package disasm

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/scigolib/elfrw/internal/chunk"
)

// X86Semantic is the chunk.Semantic (and chunk.Linkable) implementation
// produced by decoding one x86-64 instruction. It keeps both the decoded
// x86asm.Inst (for passes that need to inspect operands, e.g. the
// PC-relative and jump-table passes) and the original encoded bytes,
// which WriteTo re-emits verbatim except for a PC-relative displacement
// it patches when the instruction's Link has been resolved.
type X86Semantic struct {
	inst x86asm.Inst
	raw  []byte
	link *chunk.Link
}

// NewX86Semantic wraps a decoded instruction. raw must be exactly
// inst.Len bytes — the caller (Disassembler) owns slicing it from the
// function's code.
func NewX86Semantic(inst x86asm.Inst, raw []byte) *X86Semantic {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &X86Semantic{inst: inst, raw: buf}
}

// Inst returns the decoded instruction, for passes that need to inspect
// operands (e.g. jump-table bound detection reading a scaled-index
// memory operand).
func (s *X86Semantic) Inst() x86asm.Inst { return s.inst }

// Size reports the encoded length in bytes.
func (s *X86Semantic) Size() uint32 { return uint32(len(s.raw)) }

// Mnemonic returns the opcode's short name, used in logging and the
// position-dump pass.
func (s *X86Semantic) Mnemonic() string { return s.inst.Op.String() }

// Link returns the semantic's resolved (or still-unresolved) cross
// reference, or nil if no pass has touched this instruction yet.
func (s *X86Semantic) Link() *chunk.Link { return s.link }

// SetLink installs or replaces the semantic's cross reference.
func (s *X86Semantic) SetLink(l *chunk.Link) { s.link = l }

// WriteTo serializes the instruction's original bytes into out, patching
// the PC-relative displacement in place when the instruction carries a
// resolved Link pointing at a PCRel-relocatable target — so an
// instruction whose target chunk was moved by a mutation or by sandbox
// relocation (spec.md §4.F) re-encodes correctly at its new address
// without having to re-assemble from scratch.
func (s *X86Semantic) WriteTo(selfAddress uint64, out []byte) int {
	n := copy(out, s.raw)

	if s.link != nil && s.link.Resolved() && s.inst.PCRel > 0 {
		targetAddr, err := s.link.Target.Address()
		if err == nil {
			nextInsnAddr := selfAddress + uint64(len(s.raw))
			disp := int64(targetAddr) + s.link.Addend - int64(nextInsnAddr)
			writeDisplacement(out[s.inst.PCRelOff:s.inst.PCRelOff+s.inst.PCRel], disp)
		}
	}

	return n
}

// writeDisplacement encodes disp as a little-endian two's-complement
// value into field, matching x86's PC-relative operand encodings (1 or
// 4 bytes in practice for this architecture).
func writeDisplacement(field []byte, disp int64) {
	switch len(field) {
	case 1:
		field[0] = byte(int8(disp))
	case 2:
		binary.LittleEndian.PutUint16(field, uint16(int16(disp)))
	case 4:
		binary.LittleEndian.PutUint32(field, uint32(int32(disp)))
	case 8:
		binary.LittleEndian.PutUint64(field, uint64(disp))
	default:
		panic(fmt.Sprintf("disasm: unsupported PC-relative field width %d", len(field)))
	}
}

// RawLiteralOperand reports the raw literal a branch or memory operand
// encodes, if any, along with whether one was found: a displacement
// relative to the next instruction's address, for either a call/jmp/jcc
// (x86asm.Rel) or a RIP-relative memory operand (x86asm.Mem with
// Base == RIP) — x86-64's position-independent way of referencing data.
// It is the bridge internal/pass's resolution passes use to go from
// "raw address literal in the encoding" (spec.md §4.D) to a candidate
// target address, before the pass decides whether that address lands on
// a known chunk.
func RawLiteralOperand(inst x86asm.Inst) (int64, bool) {
	for _, arg := range inst.Args {
		switch a := arg.(type) {
		case x86asm.Rel:
			return int64(a), true
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				return a.Disp, true
			}
		}
	}
	return 0, false
}

// IsRIPRelative reports whether inst addresses memory relative to RIP,
// the case PCRelative resolves (as opposed to a branch target, which
// InternalCalls/ExternalCalls resolve).
func IsRIPRelative(inst x86asm.Inst) bool {
	for _, arg := range inst.Args {
		if m, ok := arg.(x86asm.Mem); ok && m.Base == x86asm.RIP {
			return true
		}
	}
	return false
}
