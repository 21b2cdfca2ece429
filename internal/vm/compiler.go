package vm

import (
	"fmt"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/lexer"
	"github.com/funvibe/kiln/internal/token"
)

// Local represents a local variable during compilation
type Local struct {
	Name       string
	Depth      int  // Scope depth where this local was declared, -1 until initialized
	IsCaptured bool // True if captured by a nested function (needs to become upvalue)
}

// Upvalue represents a captured variable from an enclosing scope
type Upvalue struct {
	Index   uint8 // Index of the local/upvalue in enclosing scope
	IsLocal bool  // True if captures a local, false if captures another upvalue
}

// FunctionType distinguishes top-level code from functions
type FunctionType int

const (
	TYPE_SCRIPT FunctionType = iota
	TYPE_FUNCTION
	TYPE_METHOD
	TYPE_INITIALIZER
)

// LoopContext tracks loop information for break/continue
type LoopContext struct {
	loopStart  int   // Offset continue jumps back to
	breakJumps []int // Offsets of break jumps to patch
	scopeDepth int   // Scope depth of the loop's own variables
}

// classCompiler tracks the innermost class being compiled.
type classCompiler struct {
	enclosing *classCompiler
	name      string
	hasSuper  bool
}

// parser is the token cursor shared by all function compilers of one unit.
type parser struct {
	vm       *VM
	lex      *lexer.Lexer
	current  token.Token
	previous token.Token
	module   int
	path     string
	classes  *classCompiler
}

// Compiler compiles one function body straight from tokens to bytecode.
type Compiler struct {
	p         *parser
	enclosing *Compiler

	fn       *ObjFn
	funcType FunctionType

	locals     []Local
	scopeDepth int

	// Upvalues captured by this function
	upvalues []Upvalue

	// Loop context stack for break/continue
	loopStack []LoopContext

	// lastGet is the offset of the last emitted get instruction, or -1 when
	// anything else has been emitted since.
	lastGet int

	names map[string]int // identifier constant indices
}

// Compile compiles src as the body of module and returns its top-level
// function. Compile errors are returned as *diagnostics.Error.
func (vm *VM) Compile(path, src string, module int) (fn *ObjFn, err error) {
	p := &parser{
		vm:     vm,
		lex:    lexer.New(path, src, lexer.Options{Extended: vm.settings.Lexer.Extended}),
		module: module,
		path:   path,
	}

	saved := vm.compiler
	defer func() {
		if r := recover(); r != nil {
			de, ok := r.(*diagnostics.Error)
			if !ok {
				panic(r)
			}
			vm.compiler = saved
			fn, err = nil, de
		}
	}()

	c := newCompiler(p, nil, TYPE_SCRIPT, "")
	c.fn.TopLevel = true
	c.fn.Source = src

	p.advance()
	for !p.match(token.EOF) {
		c.unitDeclaration()
	}
	return c.endCompiler(), nil
}

func newCompiler(p *parser, enclosing *Compiler, funcType FunctionType, name string) *Compiler {
	c := &Compiler{
		p:         p,
		enclosing: enclosing,
		funcType:  funcType,
		locals:    make([]Local, 0, 16),
		lastGet:   -1,
		names:     make(map[string]int),
	}
	c.fn = p.vm.newFn(name, p.module, p.path)
	p.vm.compiler = c

	// Slot 0 holds the callee, or the receiver in methods.
	slot0 := ""
	if funcType == TYPE_METHOD || funcType == TYPE_INITIALIZER {
		slot0 = "self"
	}
	c.locals = append(c.locals, Local{Name: slot0, Depth: 0})
	return c
}

func (c *Compiler) endCompiler() *ObjFn {
	c.emitReturn()
	fn := c.fn
	fn.UpvalueCount = len(c.upvalues)
	c.p.vm.compiler = c.enclosing
	return fn
}

func (c *Compiler) chunk() *Chunk {
	return c.fn.Chunk
}

// Token cursor

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lex.NextToken()
		if p.current.Type != token.COMMENT {
			return
		}
	}
}

func (p *parser) check(t token.TokenType) bool {
	return p.current.Type == t
}

func (p *parser) match(t token.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(t token.TokenType, what string) token.Token {
	if p.current.Type == t {
		p.advance()
		return p.previous
	}
	p.errorAtCurrent(diagnostics.ErrP001, what, p.describe(p.current))
	return token.Token{}
}

// consumeName accepts an identifier, or a keyword where a member name is
// expected (t.len, obj.delete).
func (p *parser) consumeName(what string) token.Token {
	if p.current.Type == token.IDENT || p.current.Type.IsKeyword() {
		p.advance()
		return p.previous
	}
	p.errorAtCurrent(diagnostics.ErrP001, what, p.describe(p.current))
	return token.Token{}
}

func (p *parser) describe(tok token.Token) string {
	switch {
	case tok.Type == token.EOF:
		return "end of file"
	case tok.Type == token.STRING || tok.Type == token.INTERPOLATION:
		return "string"
	case tok.Type == token.NUMBER:
		return "number " + tok.Lexeme
	case tok.Type.IsKeyword():
		return fmt.Sprintf("%q", tok.Type.Display(p.lex.Extended()))
	default:
		return fmt.Sprintf("%q", tok.Lexeme)
	}
}

func (p *parser) errorAt(tok token.Token, code diagnostics.ErrorCode, args ...interface{}) {
	panic(diagnostics.NewError(code, tok, args...))
}

func (p *parser) errorAtCurrent(code diagnostics.ErrorCode, args ...interface{}) {
	p.errorAt(p.current, code, args...)
}

func (p *parser) error(code diagnostics.ErrorCode, args ...interface{}) {
	p.errorAt(p.previous, code, args...)
}

// Emit helpers. Every instruction records the position of the token it came
// from; by default the most recently consumed one.

func (c *Compiler) emitByteAt(b byte, tok token.Token) {
	c.chunk().Write(b, tok.Line, tok.Column)
	c.lastGet = -1
}

func (c *Compiler) emitByte(b byte) {
	c.emitByteAt(b, c.p.previous)
}

func (c *Compiler) emitOp(op Opcode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOpAt(op Opcode, tok token.Token) {
	c.emitByteAt(byte(op), tok)
}

func (c *Compiler) emitOpU8(op Opcode, operand int) {
	c.emitOp(op)
	c.emitByte(byte(operand))
}

func (c *Compiler) emitOpU16(op Opcode, operand int) {
	c.emitOp(op)
	c.emitByte(byte(operand >> 8))
	c.emitByte(byte(operand))
}

// emitGet emits a get instruction and remembers it as an assignment
// candidate.
func (c *Compiler) emitGet(op Opcode, operand int, wide bool) {
	start := c.chunk().Len()
	switch {
	case op == OP_GET_INDEX:
		c.emitOp(op)
	case wide:
		c.emitOpU16(op, operand)
	default:
		c.emitOpU8(op, operand)
	}
	c.lastGet = start
}

func (c *Compiler) emitReturn() {
	if c.funcType == TYPE_INITIALIZER {
		c.emitOpU8(OP_GET_LOCAL, 0)
	} else {
		c.emitOp(OP_NIL)
	}
	c.emitOp(OP_RETURN)
}

func (c *Compiler) makeConstant(v Value) int {
	if len(c.chunk().Constants) >= config.MaxConstants-1 {
		c.p.error(diagnostics.ErrP006)
	}
	return c.chunk().AddConstant(v)
}

func (c *Compiler) emitConstant(v Value) {
	c.emitOpU16(OP_CONST, c.makeConstant(v))
}

// identifierConstant returns the constant index of name, adding it once.
func (c *Compiler) identifierConstant(name string) int {
	if idx, ok := c.names[name]; ok {
		return idx
	}
	idx := c.makeConstant(c.p.vm.StringVal(name))
	c.names[name] = idx
	return idx
}
