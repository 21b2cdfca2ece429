package vm

import (
	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/token"
)

// beginScope starts a new scope
func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope ends the current scope and emits cleanup code
func (c *Compiler) endScope() {
	c.scopeDepth--

	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].IsCaptured {
			c.emitOp(OP_CLOSE_UPVALUE)
		} else {
			c.emitOp(OP_POP)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// discardLocals emits cleanup for locals deeper than depth without
// forgetting them; used by break and continue.
func (c *Compiler) discardLocals(depth int) {
	for i := len(c.locals) - 1; i >= 0 && c.locals[i].Depth > depth; i-- {
		if c.locals[i].IsCaptured {
			c.emitOp(OP_CLOSE_UPVALUE)
		} else {
			c.emitOp(OP_POP)
		}
	}
}

// addLocal adds a local variable to the current scope, uninitialized.
func (c *Compiler) addLocal(name string) int {
	if len(c.locals) >= config.MaxLocals {
		c.p.error(diagnostics.ErrP004)
	}
	c.locals = append(c.locals, Local{Name: name, Depth: -1})
	return len(c.locals) - 1
}

// addHiddenLocal adds an initialized local scripts cannot name.
func (c *Compiler) addHiddenLocal(name string) int {
	slot := c.addLocal(" " + name)
	c.markInitialized()
	return slot
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].Depth = c.scopeDepth
}

// declareVariable records a local for the name just consumed. Globals are
// late bound and need no declaration.
func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}
	name := c.p.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := &c.locals[i]
		if local.Depth != -1 && local.Depth < c.scopeDepth {
			break
		}
		if local.Name == name.Lexeme {
			c.p.error(diagnostics.ErrP009, name.Lexeme)
		}
	}
	c.addLocal(name.Lexeme)
}

// parseVariable consumes a variable name and returns its global constant
// index, or 0 for locals.
func (c *Compiler) parseVariable(what string) int {
	c.p.consume(token.IDENT, what)
	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.p.previous.Lexeme)
}

func (c *Compiler) defineVariable(global int) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpU16(OP_DEFINE_GLOBAL, global)
}

// resolveLocal looks up a local variable by name
func (c *Compiler) resolveLocal(name token.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name.Lexeme {
			if c.locals[i].Depth == -1 {
				c.p.errorAt(name, diagnostics.ErrP010, name.Lexeme)
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue looks for a variable in enclosing scopes
func (c *Compiler) resolveUpvalue(name token.Token) int {
	if c.enclosing == nil {
		return -1
	}

	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].IsCaptured = true
		return c.addUpvalue(uint8(local), true)
	}

	if upvalue := c.enclosing.resolveUpvalue(name); upvalue != -1 {
		return c.addUpvalue(uint8(upvalue), false)
	}

	return -1
}

// addUpvalue adds an upvalue to this function's upvalue list
func (c *Compiler) addUpvalue(index uint8, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}

	if len(c.upvalues) >= config.MaxUpvalues {
		c.p.error(diagnostics.ErrP005)
	}

	c.upvalues = append(c.upvalues, Upvalue{Index: index, IsLocal: isLocal})
	return len(c.upvalues) - 1
}

// Jumps

// emitJump emits op with a placeholder offset and returns the operand
// position for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.chunk().Len() - 2
}

// patchJump points the jump whose operand is at offset to the current end of
// the chunk.
func (c *Compiler) patchJump(offset int) {
	jump := c.chunk().Len() - offset - 2

	if jump > config.MaxJump {
		c.p.error(diagnostics.ErrP007)
	}

	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
	c.lastGet = -1
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(OP_LOOP)

	offset := c.chunk().Len() - loopStart + 2
	if offset > config.MaxJump {
		c.p.error(diagnostics.ErrP007)
	}

	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// Loops

func (c *Compiler) pushLoop(loopStart int) {
	c.loopStack = append(c.loopStack, LoopContext{loopStart: loopStart, scopeDepth: c.scopeDepth})
}

// popLoop patches every break of the innermost loop to the current offset.
func (c *Compiler) popLoop() {
	loop := c.loopStack[len(c.loopStack)-1]
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
	for _, j := range loop.breakJumps {
		c.patchJump(j)
	}
}
