package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of fn's bytecode, including
// nested functions.
func Disassemble(fn *ObjFn) string {
	var sb strings.Builder
	disassembleChunk(&sb, fn.Chunk, fnLabel(fn))
	return sb.String()
}

func fnLabel(fn *ObjFn) string {
	switch {
	case fn.TopLevel:
		return "<script>"
	case fn.Name == "":
		return "<anonymous>"
	case fn.ClassName != "":
		return fn.ClassName + "." + fn.Name
	}
	return fn.Name
}

func disassembleChunk(sb *strings.Builder, chunk *Chunk, name string) {
	sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	for offset := 0; offset < len(chunk.Code); {
		offset = disassembleInstruction(sb, chunk, offset)
	}
}

// disassembleInstruction writes one instruction and returns the offset of
// the next.
func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset int) int {
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	line, _ := chunk.Location(offset)
	if prev, _ := chunk.Location(offset - 1); offset > 0 && line == prev {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", line))
	}

	op := Opcode(chunk.Code[offset])
	name := op.String()

	switch op {
	case OP_CONST, OP_GET_GLOBAL, OP_SET_GLOBAL, OP_DEFINE_GLOBAL,
		OP_GET_PROPERTY, OP_SET_PROPERTY, OP_GET_SUPER, OP_CLASS, OP_METHOD:
		return constantInstruction(sb, name, chunk, offset)

	case OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE,
		OP_CALL, OP_BUILD_STRING, OP_INITIALIZER:
		return byteInstruction(sb, name, chunk, offset)

	case OP_ARRAY, OP_TABLE:
		sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, chunk.ReadUint16(offset+1)))
		return offset + 3

	case OP_JUMP, OP_JUMP_IF_FALSE:
		return jumpInstruction(sb, name, 1, chunk, offset)
	case OP_LOOP:
		return jumpInstruction(sb, name, -1, chunk, offset)

	case OP_FOR_ITER:
		slot, nvars := chunk.Code[offset+1], chunk.Code[offset+2]
		jump := chunk.ReadUint16(offset + 3)
		sb.WriteString(fmt.Sprintf("%-16s %4d %d -> %d\n", name, slot, nvars, offset+5+jump))
		return offset + 5
	case OP_FOR_RANGE:
		slot := chunk.Code[offset+1]
		jump := chunk.ReadUint16(offset + 2)
		sb.WriteString(fmt.Sprintf("%-16s %4d -> %d\n", name, slot, offset+4+jump))
		return offset + 4

	case OP_INVOKE, OP_SUPER_INVOKE:
		idx := chunk.ReadUint16(offset + 1)
		argc := chunk.Code[offset+3]
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s' (args: %d)\n", name, idx, constantText(chunk, idx), argc))
		return offset + 4

	case OP_CLOSURE:
		return closureInstruction(sb, name, chunk, offset)

	default:
		if _, ok := OpcodeNames[op]; !ok {
			sb.WriteString(fmt.Sprintf("Unknown opcode %d\n", op))
			return offset + 1
		}
		return simpleInstruction(sb, name, offset)
	}
}

func constantText(chunk *Chunk, idx int) string {
	if idx >= len(chunk.Constants) {
		return "(invalid)"
	}
	return chunk.Constants[idx].String()
}

func simpleInstruction(sb *strings.Builder, name string, offset int) int {
	sb.WriteString(fmt.Sprintf("%s\n", name))
	return offset + 1
}

func constantInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadUint16(offset + 1)
	sb.WriteString(fmt.Sprintf("%-16s %4d '%s'\n", name, idx, constantText(chunk, idx)))
	return offset + 3
}

func byteInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, slot))
	return offset + 2
}

func jumpInstruction(sb *strings.Builder, name string, sign int, chunk *Chunk, offset int) int {
	jump := chunk.ReadUint16(offset + 1)
	target := offset + 3 + sign*jump
	sb.WriteString(fmt.Sprintf("%-16s %4d -> %d\n", name, jump, target))
	return offset + 3
}

func closureInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadUint16(offset + 1)
	offset += 3

	if idx >= len(chunk.Constants) {
		sb.WriteString(fmt.Sprintf("%-16s %4d (invalid)\n", name, idx))
		return offset
	}
	fn, ok := chunk.Constants[idx].Obj.(*ObjFn)
	if !ok {
		sb.WriteString(fmt.Sprintf("%-16s %4d (not a function)\n", name, idx))
		return offset
	}

	sb.WriteString(fmt.Sprintf("%-16s %4d '%s'\n", name, idx, fnLabel(fn)))

	// Nested chunk, indented
	var inner strings.Builder
	disassembleChunk(&inner, fn.Chunk, fnLabel(fn))
	indented := strings.ReplaceAll(strings.TrimSuffix(inner.String(), "\n"), "\n", "\n    | ")
	sb.WriteString("    | " + indented + "\n")

	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := chunk.Code[offset]
		index := chunk.Code[offset+1]
		offset += 2

		kind := "upvalue"
		if isLocal == 1 {
			kind = "local"
		}
		sb.WriteString(fmt.Sprintf("%04d    |                     %s %d\n", offset-2, kind, index))
	}
	return offset
}
