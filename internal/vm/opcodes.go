// Package vm implements the Kiln compiler, object heap, garbage collector
// and bytecode virtual machine.
package vm

// Opcode represents a single VM instruction
type Opcode byte

// Operand widths are noted per opcode; multi-byte operands are big-endian.
const (
	// Stack manipulation
	OP_CONST Opcode = iota // u16 constant index
	OP_NIL
	OP_TRUE
	OP_FALSE
	OP_POP

	// Variables
	OP_GET_LOCAL     // u8 slot
	OP_SET_LOCAL     // u8 slot
	OP_GET_GLOBAL    // u16 name
	OP_SET_GLOBAL    // u16 name
	OP_DEFINE_GLOBAL // u16 name
	OP_GET_UPVALUE   // u8 index
	OP_SET_UPVALUE   // u8 index

	// Members and indexing
	OP_GET_PROPERTY // u16 name
	OP_SET_PROPERTY // u16 name
	OP_GET_INDEX
	OP_SET_INDEX
	OP_GET_SUPER // u16 name
	OP_DELETE
	OP_IN

	// Comparison
	OP_EQ // ==
	OP_NE // !=
	OP_LT // <
	OP_LE // <=
	OP_GT // >
	OP_GE // >=

	// Arithmetic
	OP_ADD // +
	OP_SUB // -
	OP_MUL // *
	OP_DIV // /
	OP_MOD // mod (floored)
	OP_NEG // Unary minus

	// Bitwise operations
	OP_BAND   // &
	OP_BOR    // |
	OP_BXOR   // ^
	OP_BNOT   // ~ (unary)
	OP_LSHIFT // <<
	OP_RSHIFT // >>

	OP_NOT // not

	// Built-in forms
	OP_LEN
	OP_TYPEOF
	OP_PANIC
	OP_ASSERT // pops message, condition
	OP_IMPORT
	OP_BUILD_STRING // u8 part count
	OP_ARRAY        // u16 element count
	OP_TABLE        // u16 pair count

	// Control flow
	OP_JUMP          // u16 forward offset
	OP_JUMP_IF_FALSE // u16 forward offset, condition stays on the stack
	OP_LOOP          // u16 backward offset
	OP_FOR_ITER      // u8 slot, u8 variable count, u16 exit offset
	OP_FOR_RANGE     // u8 slot, u16 exit offset

	// Calls and closures
	OP_CALL          // u8 argc
	OP_INVOKE        // u16 name, u8 argc
	OP_SUPER_INVOKE  // u16 name, u8 argc
	OP_CLOSURE       // u16 function, then (isLocal, index) byte pairs
	OP_CLOSE_UPVALUE // close the upvalue on top of the stack and pop it
	OP_RETURN

	// Classes
	OP_CLASS       // u16 name
	OP_INHERIT     // superclass below subclass
	OP_METHOD      // u16 name
	OP_INITIALIZER // u8 fallible
)

// OpcodeNames maps opcodes to their disassembly names.
var OpcodeNames = map[Opcode]string{
	OP_CONST:         "CONST",
	OP_NIL:           "NIL",
	OP_TRUE:          "TRUE",
	OP_FALSE:         "FALSE",
	OP_POP:           "POP",
	OP_GET_LOCAL:     "GET_LOCAL",
	OP_SET_LOCAL:     "SET_LOCAL",
	OP_GET_GLOBAL:    "GET_GLOBAL",
	OP_SET_GLOBAL:    "SET_GLOBAL",
	OP_DEFINE_GLOBAL: "DEFINE_GLOBAL",
	OP_GET_UPVALUE:   "GET_UPVALUE",
	OP_SET_UPVALUE:   "SET_UPVALUE",
	OP_GET_PROPERTY:  "GET_PROPERTY",
	OP_SET_PROPERTY:  "SET_PROPERTY",
	OP_GET_INDEX:     "GET_INDEX",
	OP_SET_INDEX:     "SET_INDEX",
	OP_GET_SUPER:     "GET_SUPER",
	OP_DELETE:        "DELETE",
	OP_IN:            "IN",
	OP_EQ:            "EQ",
	OP_NE:            "NE",
	OP_LT:            "LT",
	OP_LE:            "LE",
	OP_GT:            "GT",
	OP_GE:            "GE",
	OP_ADD:           "ADD",
	OP_SUB:           "SUB",
	OP_MUL:           "MUL",
	OP_DIV:           "DIV",
	OP_MOD:           "MOD",
	OP_NEG:           "NEG",
	OP_BAND:          "BAND",
	OP_BOR:           "BOR",
	OP_BXOR:          "BXOR",
	OP_BNOT:          "BNOT",
	OP_LSHIFT:        "LSHIFT",
	OP_RSHIFT:        "RSHIFT",
	OP_NOT:           "NOT",
	OP_LEN:           "LEN",
	OP_TYPEOF:        "TYPEOF",
	OP_PANIC:         "PANIC",
	OP_ASSERT:        "ASSERT",
	OP_IMPORT:        "IMPORT",
	OP_BUILD_STRING:  "BUILD_STRING",
	OP_ARRAY:         "ARRAY",
	OP_TABLE:         "TABLE",
	OP_JUMP:          "JUMP",
	OP_JUMP_IF_FALSE: "JUMP_IF_FALSE",
	OP_LOOP:          "LOOP",
	OP_FOR_ITER:      "FOR_ITER",
	OP_FOR_RANGE:     "FOR_RANGE",
	OP_CALL:          "CALL",
	OP_INVOKE:        "INVOKE",
	OP_SUPER_INVOKE:  "SUPER_INVOKE",
	OP_CLOSURE:       "CLOSURE",
	OP_CLOSE_UPVALUE: "CLOSE_UPVALUE",
	OP_RETURN:        "RETURN",
	OP_CLASS:         "CLASS",
	OP_INHERIT:       "INHERIT",
	OP_METHOD:        "METHOD",
	OP_INITIALIZER:   "INITIALIZER",
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// assignOps maps every "get" instruction to the "set" that reuses its operand.
var assignOps = map[Opcode]Opcode{
	OP_GET_LOCAL:    OP_SET_LOCAL,
	OP_GET_GLOBAL:   OP_SET_GLOBAL,
	OP_GET_UPVALUE:  OP_SET_UPVALUE,
	OP_GET_PROPERTY: OP_SET_PROPERTY,
	OP_GET_INDEX:    OP_SET_INDEX,
}
