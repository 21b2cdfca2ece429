package vm

import (
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/token"
)

func (c *Compiler) whileStatement() {
	loopStart := c.chunk().Len()
	c.p.consume(token.LPAREN, "'(' after 'while'")
	c.expression()
	c.p.consume(token.RPAREN, "')' after condition")

	exitJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitOp(OP_POP)

	c.pushLoop(loopStart)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(OP_POP)
	c.popLoop()
}

// forStatement dispatches between the C-style loop and the for-in forms.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.p.consume(token.LPAREN, "'(' after 'for'")

	if c.p.check(token.IDENT) {
		if next := c.p.lex.Peek().Type; next == token.IN || next == token.COMMA {
			c.forInStatement()
			c.endScope()
			return
		}
	}

	switch {
	case c.p.match(token.SEMICOLON):
	case c.p.match(token.VAR):
		c.varDeclaration()
	default:
		c.expression()
		c.p.consume(token.SEMICOLON, "';' after loop initializer")
		c.emitOp(OP_POP)
	}

	loopStart := c.chunk().Len()
	exitJump := -1
	if !c.p.match(token.SEMICOLON) {
		c.expression()
		c.p.consume(token.SEMICOLON, "';' after loop condition")
		exitJump = c.emitJump(OP_JUMP_IF_FALSE)
		c.emitOp(OP_POP)
	}

	if !c.p.match(token.RPAREN) {
		bodyJump := c.emitJump(OP_JUMP)
		incrementStart := c.chunk().Len()
		c.expression()
		c.emitOp(OP_POP)
		c.p.consume(token.RPAREN, "')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	// continue targets the increment clause
	c.pushLoop(loopStart)
	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(OP_POP)
	}
	c.popLoop()
	c.endScope()
}

// forInStatement compiles
//
//	for (x in seq) body
//	for (k, v in seq) body
//	for (i in range(start, end[, step])) body
//
// The iteration state lives in hidden locals below the loop variables.
// Each iteration closes upvalues over the loop variables before rebinding
// them, so closures created in the body capture that iteration's values.
func (c *Compiler) forInStatement() {
	first := c.p.consume(token.IDENT, "loop variable")
	names := []token.Token{first}
	if c.p.match(token.COMMA) {
		second := c.p.consume(token.IDENT, "second loop variable")
		if second.Lexeme == first.Lexeme {
			c.p.error(diagnostics.ErrP009, second.Lexeme)
		}
		names = append(names, second)
	}
	c.p.consume(token.IN, "'in' after loop variables")

	if c.p.match(token.RANGE) {
		c.rangeLoop(names)
		return
	}

	c.expression()
	c.p.consume(token.RPAREN, "')' after loop sequence")

	slot := c.addHiddenLocal("seq")
	c.emitOp(OP_NIL)
	c.addHiddenLocal("cursor")
	for _, name := range names {
		c.emitOp(OP_NIL)
		c.addLocal(name.Lexeme)
		c.markInitialized()
	}

	loopStart := c.chunk().Len()
	c.emitOpAt(OP_FOR_ITER, first)
	c.emitByte(byte(slot))
	c.emitByte(byte(len(names)))
	exitJump := c.chunk().Len()
	c.emitByte(0xff)
	c.emitByte(0xff)

	c.loopBody(loopStart, exitJump)
}

func (c *Compiler) rangeLoop(names []token.Token) {
	kw := c.p.previous
	if len(names) != 1 {
		c.p.errorAt(names[1], diagnostics.ErrP001, "one loop variable for range", c.p.describe(names[1]))
	}
	c.p.consume(token.LPAREN, "'(' after 'range'")
	c.expression()
	c.p.consume(token.COMMA, "',' after range start")
	c.expression()
	if c.p.match(token.COMMA) {
		c.expression()
	} else {
		c.emitConstant(NumberVal(1))
	}
	c.p.consume(token.RPAREN, "')' after range bounds")
	c.p.consume(token.RPAREN, "')' after loop range")

	slot := c.addHiddenLocal("cur")
	c.addHiddenLocal("end")
	c.addHiddenLocal("step")
	c.emitOp(OP_NIL)
	c.addLocal(names[0].Lexeme)
	c.markInitialized()

	loopStart := c.chunk().Len()
	c.emitOpAt(OP_FOR_RANGE, kw)
	c.emitByte(byte(slot))
	exitJump := c.chunk().Len()
	c.emitByte(0xff)
	c.emitByte(0xff)

	c.loopBody(loopStart, exitJump)
}

func (c *Compiler) loopBody(loopStart, exitJump int) {
	c.pushLoop(loopStart)
	c.statement()
	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.popLoop()
}

func (c *Compiler) breakStatement() {
	kw := c.p.previous
	if len(c.loopStack) == 0 {
		c.p.errorAt(kw, diagnostics.ErrP014, "'break'")
	}
	c.p.consume(token.SEMICOLON, "';' after 'break'")

	loop := &c.loopStack[len(c.loopStack)-1]
	c.discardLocals(loop.scopeDepth)
	loop.breakJumps = append(loop.breakJumps, c.emitJump(OP_JUMP))
}

func (c *Compiler) continueStatement() {
	kw := c.p.previous
	if len(c.loopStack) == 0 {
		c.p.errorAt(kw, diagnostics.ErrP014, "'continue'")
	}
	c.p.consume(token.SEMICOLON, "';' after 'continue'")

	loop := c.loopStack[len(c.loopStack)-1]
	c.discardLocals(loop.scopeDepth)
	c.emitLoop(loop.loopStart)
}
