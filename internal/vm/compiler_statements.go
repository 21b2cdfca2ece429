package vm

import (
	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/token"
)

// declaration compiles one declaration or statement.
func (c *Compiler) declaration() {
	switch {
	case c.p.match(token.VAR):
		c.varDeclaration()
	case c.p.check(token.FN) && c.p.lex.Peek().Type == token.IDENT:
		c.p.advance()
		c.fnDeclaration()
	case c.p.match(token.CLASS):
		c.classDeclaration()
	default:
		c.statement()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.p.match(token.IF):
		c.ifStatement()
	case c.p.match(token.WHILE):
		c.whileStatement()
	case c.p.match(token.FOR):
		c.forStatement()
	case c.p.match(token.RETURN):
		c.returnStatement()
	case c.p.match(token.BREAK):
		c.breakStatement()
	case c.p.match(token.CONTINUE):
		c.continueStatement()
	case c.p.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement(false)
	}
}

func (c *Compiler) block() {
	for !c.p.check(token.RBRACE) && !c.p.check(token.EOF) {
		c.declaration()
	}
	c.p.consume(token.RBRACE, "'}' after block")
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("variable name")
	if c.p.match(token.ASSIGN) {
		c.expression()
	} else {
		c.emitOp(OP_NIL)
	}
	c.p.consume(token.SEMICOLON, "';' after variable declaration")
	c.defineVariable(global)
}

func (c *Compiler) fnDeclaration() {
	global := c.parseVariable("function name")
	name := c.p.previous.Lexeme
	// The function may refer to itself.
	c.markInitialized()
	c.function(TYPE_FUNCTION, name, false)
	c.defineVariable(global)
}

// function compiles a parameter list and body into a new ObjFn and emits the
// CLOSURE that instantiates it.
func (c *Compiler) function(kind FunctionType, name string, fallible bool) {
	fc := newCompiler(c.p, c, kind, name)
	fc.fn.Initializer = kind == TYPE_INITIALIZER
	fc.fn.Fallible = fallible
	if kind == TYPE_METHOD || kind == TYPE_INITIALIZER {
		fc.fn.ClassName = c.p.classes.name
	}
	fc.beginScope()

	c.p.consume(token.LPAREN, "'(' after function name")
	if !c.p.check(token.RPAREN) {
		for {
			if fc.fn.Arity == config.MaxArgs {
				c.p.errorAtCurrent(diagnostics.ErrP008, config.MaxArgs)
			}
			fc.fn.Arity++
			param := fc.parseVariable("parameter name")
			fc.defineVariable(param)
			if !c.p.match(token.COMMA) {
				break
			}
		}
	}
	c.p.consume(token.RPAREN, "')' after parameters")
	c.p.consume(token.LBRACE, "'{' before function body")
	fc.block()

	fn := fc.endCompiler()
	c.emitOpU16(OP_CLOSURE, c.makeConstant(ObjVal(fn)))
	for _, uv := range fc.upvalues {
		if uv.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.Index)
	}
}

// classDeclaration compiles
//
//	class Name : Super { init(a) { ... } fn method() { ... } }
//
// The superclass lives in a hidden "super" local for the body's duration so
// methods capture it as an upvalue.
func (c *Compiler) classDeclaration() {
	name := c.p.consume(token.IDENT, "class name")
	nameConst := c.identifierConstant(name.Lexeme)
	c.declareVariable()

	c.emitOpAt(OP_CLASS, name)
	c.emitByte(byte(nameConst >> 8))
	c.emitByte(byte(nameConst))
	c.defineVariable(nameConst)

	class := &classCompiler{enclosing: c.p.classes, name: name.Lexeme}
	c.p.classes = class

	if c.p.match(token.COLON) {
		super := c.p.consume(token.IDENT, "superclass name")
		if super.Lexeme == name.Lexeme {
			c.p.error(diagnostics.ErrP015)
		}
		c.namedVariable(super)

		c.beginScope()
		c.addLocal("super")
		c.markInitialized()

		c.namedVariable(name)
		c.emitOpAt(OP_INHERIT, super)
		class.hasSuper = true
	}

	c.namedVariable(name)
	c.p.consume(token.LBRACE, "'{' before class body")
	for !c.p.check(token.RBRACE) && !c.p.check(token.EOF) {
		c.method()
	}
	c.p.consume(token.RBRACE, "'}' after class body")
	c.emitOp(OP_POP)

	if class.hasSuper {
		c.endScope()
	}
	c.p.classes = class.enclosing
}

func (c *Compiler) method() {
	c.p.match(token.FN)
	name := c.p.consumeName("method name")
	idx := c.identifierConstant(name.Lexeme)

	kind := TYPE_METHOD
	fallible := false
	if name.Lexeme == config.InitMethodName {
		kind = TYPE_INITIALIZER
		fallible = c.p.match(token.QUESTION)
	}

	c.function(kind, name.Lexeme, fallible)
	c.emitOpU16(OP_METHOD, idx)
	if kind == TYPE_INITIALIZER {
		flag := 0
		if fallible {
			flag = 1
		}
		c.emitOpU8(OP_INITIALIZER, flag)
	}
}

func (c *Compiler) ifStatement() {
	c.p.consume(token.LPAREN, "'(' after 'if'")
	c.expression()
	c.p.consume(token.RPAREN, "')' after condition")

	thenJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitOp(OP_POP)
	c.statement()

	elseJump := c.emitJump(OP_JUMP)
	c.patchJump(thenJump)
	c.emitOp(OP_POP)

	if c.p.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) returnStatement() {
	kw := c.p.previous
	if c.p.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}
	if c.funcType == TYPE_INITIALIZER && !c.fn.Fallible {
		c.p.errorAt(kw, diagnostics.ErrP013)
	}
	c.expression()
	c.p.consume(token.SEMICOLON, "';' after return value")
	c.emitOpAt(OP_RETURN, kw)
}

// unitDeclaration compiles a declaration directly in a unit body, where a
// trailing expression becomes the unit's result.
func (c *Compiler) unitDeclaration() {
	switch c.p.current.Type {
	case token.VAR, token.CLASS, token.IF, token.WHILE, token.FOR,
		token.RETURN, token.BREAK, token.CONTINUE, token.LBRACE:
		c.declaration()
	case token.FN:
		if c.p.lex.Peek().Type == token.IDENT {
			c.declaration()
			return
		}
		c.expressionStatement(true)
	default:
		c.expressionStatement(true)
	}
}

// expressionStatement evaluates an expression for its effect. When result is
// set and the expression ends the unit, it is returned instead and the
// semicolon is optional.
func (c *Compiler) expressionStatement(result bool) {
	c.expression()
	if result {
		if c.p.check(token.EOF) || (c.p.match(token.SEMICOLON) && c.p.check(token.EOF)) {
			c.emitOp(OP_RETURN)
			return
		}
		if c.p.previous.Type == token.SEMICOLON {
			c.emitOp(OP_POP)
			return
		}
	}
	c.p.consume(token.SEMICOLON, "';' after expression")
	c.emitOp(OP_POP)
}
