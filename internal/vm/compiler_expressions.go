package vm

import (
	"strconv"
	"strings"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/token"
)

// Precedence levels, lowest to highest.
type Precedence int

const (
	PREC_NONE Precedence = iota
	PREC_ASSIGNMENT
	PREC_OR
	PREC_AND
	PREC_COMPARISON // == != < <= > >= in
	PREC_BITWISE    // | ^ &
	PREC_SHIFT      // << >>
	PREC_TERM       // + -
	PREC_FACTOR     // * / mod
	PREC_UNARY      // - not ~
	PREC_CALL       // . () []
	PREC_PRIMARY
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   Precedence
}

var rules map[token.TokenType]parseRule

func init() {
	rules = map[token.TokenType]parseRule{
		token.LPAREN:        {(*Compiler).grouping, (*Compiler).call, PREC_CALL},
		token.LBRACKET:      {(*Compiler).arrayLiteral, (*Compiler).index, PREC_CALL},
		token.LBRACE:        {(*Compiler).tableLiteral, nil, PREC_NONE},
		token.DOT:           {nil, (*Compiler).dot, PREC_CALL},
		token.MINUS:         {(*Compiler).unary, (*Compiler).binary, PREC_TERM},
		token.PLUS:          {nil, (*Compiler).binary, PREC_TERM},
		token.ASTERISK:      {nil, (*Compiler).binary, PREC_FACTOR},
		token.SLASH:         {nil, (*Compiler).binary, PREC_FACTOR},
		token.MOD:           {nil, (*Compiler).binary, PREC_FACTOR},
		token.AMPERSAND:     {nil, (*Compiler).binary, PREC_BITWISE},
		token.PIPE:          {nil, (*Compiler).binary, PREC_BITWISE},
		token.CARET:         {nil, (*Compiler).binary, PREC_BITWISE},
		token.LSHIFT:        {nil, (*Compiler).binary, PREC_SHIFT},
		token.RSHIFT:        {nil, (*Compiler).binary, PREC_SHIFT},
		token.TILDE:         {(*Compiler).unary, nil, PREC_NONE},
		token.NOT:           {(*Compiler).unary, nil, PREC_NONE},
		token.EQ:            {nil, (*Compiler).binary, PREC_COMPARISON},
		token.NOT_EQ:        {nil, (*Compiler).binary, PREC_COMPARISON},
		token.LT:            {nil, (*Compiler).binary, PREC_COMPARISON},
		token.LTE:           {nil, (*Compiler).binary, PREC_COMPARISON},
		token.GT:            {nil, (*Compiler).binary, PREC_COMPARISON},
		token.GTE:           {nil, (*Compiler).binary, PREC_COMPARISON},
		token.IN:            {nil, (*Compiler).binary, PREC_COMPARISON},
		token.AND:           {nil, (*Compiler).and, PREC_AND},
		token.OR:            {nil, (*Compiler).or, PREC_OR},
		token.IDENT:         {(*Compiler).variable, nil, PREC_NONE},
		token.NUMBER:        {(*Compiler).number, nil, PREC_NONE},
		token.STRING:        {(*Compiler).stringLiteral, nil, PREC_NONE},
		token.INTERPOLATION: {(*Compiler).interpolation, nil, PREC_NONE},
		token.NIL:           {(*Compiler).literal, nil, PREC_NONE},
		token.TRUE:          {(*Compiler).literal, nil, PREC_NONE},
		token.FALSE:         {(*Compiler).literal, nil, PREC_NONE},
		token.FN:            {(*Compiler).lambda, nil, PREC_NONE},
		token.SELF:          {(*Compiler).self, nil, PREC_NONE},
		token.SUPER:         {(*Compiler).super, nil, PREC_NONE},
		token.LEN:           {(*Compiler).builtinForm, nil, PREC_NONE},
		token.TYPEOF:        {(*Compiler).builtinForm, nil, PREC_NONE},
		token.IMPORT:        {(*Compiler).builtinForm, nil, PREC_NONE},
		token.PANIC:         {(*Compiler).builtinForm, nil, PREC_NONE},
		token.ASSERT:        {(*Compiler).assert, nil, PREC_NONE},
		token.DELETE:        {(*Compiler).delete, nil, PREC_NONE},
	}
}

func getRule(t token.TokenType) parseRule {
	return rules[t]
}

func (c *Compiler) expression() {
	c.parsePrecedence(PREC_ASSIGNMENT)
}

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.p.advance()
	prefix := getRule(c.p.previous.Type).prefix
	if prefix == nil {
		c.p.error(diagnostics.ErrP002, c.p.describe(c.p.previous))
	}

	canAssign := prec <= PREC_ASSIGNMENT
	prefix(c, canAssign)

	for prec <= getRule(c.p.current.Type).prec {
		c.p.advance()
		getRule(c.p.previous.Type).infix(c, canAssign)
	}

	if canAssign && c.p.match(token.ASSIGN) {
		c.assignment(c.p.previous)
	}
}

// assignment rewrites the get instruction just emitted into its set form:
// the get is truncated, the right-hand side compiled, and the matching set
// emitted with the same operand.
func (c *Compiler) assignment(eq token.Token) {
	if c.lastGet < 0 {
		c.p.errorAt(eq, diagnostics.ErrP003)
	}
	ch := c.chunk()
	get := Opcode(ch.Code[c.lastGet])
	set, ok := assignOps[get]
	if !ok {
		c.p.errorAt(eq, diagnostics.ErrP003)
	}

	operand := append([]byte(nil), ch.Code[c.lastGet+1:]...)
	line, col := ch.Location(c.lastGet)
	ch.Truncate(c.lastGet)
	c.lastGet = -1

	c.expression()

	at := token.Token{Line: line, Column: col}
	c.emitOpAt(set, at)
	for _, b := range operand {
		c.emitByteAt(b, at)
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.p.consume(token.RPAREN, "')' after expression")
	c.lastGet = -1
}

func (c *Compiler) number(canAssign bool) {
	lit := c.p.previous.Lexeme
	var f float64
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		u, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			c.p.error(diagnostics.ErrL005, lit)
		}
		f = float64(u)
	} else {
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			c.p.error(diagnostics.ErrL005, lit)
		}
		f = v
	}
	c.emitConstant(NumberVal(f))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	c.emitConstant(c.p.vm.StringVal(c.p.previous.Literal))
}

// interpolation compiles "a \(x) b" into its parts followed by BUILD_STRING.
func (c *Compiler) interpolation(canAssign bool) {
	start := c.p.previous
	parts := 0
	for {
		if lit := c.p.previous.Literal; lit != "" {
			c.emitConstant(c.p.vm.StringVal(lit))
			parts++
		}
		c.expression()
		parts++
		if c.p.match(token.INTERPOLATION) {
			continue
		}
		tail := c.p.consume(token.STRING, "end of interpolated string")
		if tail.Literal != "" {
			c.emitConstant(c.p.vm.StringVal(tail.Literal))
			parts++
		}
		break
	}
	if parts > 255 {
		c.p.errorAt(start, diagnostics.ErrP017, "interpolated string", 255)
	}
	c.emitOpU8(OP_BUILD_STRING, parts)
}

func (c *Compiler) literal(canAssign bool) {
	switch c.p.previous.Type {
	case token.NIL:
		c.emitOp(OP_NIL)
	case token.TRUE:
		c.emitOp(OP_TRUE)
	case token.FALSE:
		c.emitOp(OP_FALSE)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.p.previous)
}

func (c *Compiler) namedVariable(name token.Token) {
	if slot := c.resolveLocal(name); slot != -1 {
		c.emitGet(OP_GET_LOCAL, slot, false)
	} else if idx := c.resolveUpvalue(name); idx != -1 {
		c.emitGet(OP_GET_UPVALUE, idx, false)
	} else {
		c.emitGet(OP_GET_GLOBAL, c.identifierConstant(name.Lexeme), true)
	}
}

func syntheticToken(name string, at token.Token) token.Token {
	at.Type = token.IDENT
	at.Lexeme = name
	at.Literal = name
	return at
}

func (c *Compiler) unary(canAssign bool) {
	op := c.p.previous
	c.parsePrecedence(PREC_UNARY)
	switch op.Type {
	case token.MINUS:
		c.emitOpAt(OP_NEG, op)
	case token.NOT:
		c.emitOpAt(OP_NOT, op)
	case token.TILDE:
		c.emitOpAt(OP_BNOT, op)
	}
}

var binaryOps = map[token.TokenType]Opcode{
	token.PLUS:      OP_ADD,
	token.MINUS:     OP_SUB,
	token.ASTERISK:  OP_MUL,
	token.SLASH:     OP_DIV,
	token.MOD:       OP_MOD,
	token.AMPERSAND: OP_BAND,
	token.PIPE:      OP_BOR,
	token.CARET:     OP_BXOR,
	token.LSHIFT:    OP_LSHIFT,
	token.RSHIFT:    OP_RSHIFT,
	token.EQ:        OP_EQ,
	token.NOT_EQ:    OP_NE,
	token.LT:        OP_LT,
	token.LTE:       OP_LE,
	token.GT:        OP_GT,
	token.GTE:       OP_GE,
	token.IN:        OP_IN,
}

func (c *Compiler) binary(canAssign bool) {
	op := c.p.previous
	rule := getRule(op.Type)
	c.parsePrecedence(rule.prec + 1)
	c.emitOpAt(binaryOps[op.Type], op)
}

func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitOp(OP_POP)
	c.parsePrecedence(PREC_AND)
	c.patchJump(endJump)
}

func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(OP_JUMP_IF_FALSE)
	endJump := c.emitJump(OP_JUMP)
	c.patchJump(elseJump)
	c.emitOp(OP_POP)
	c.parsePrecedence(PREC_OR)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.p.check(token.RPAREN) {
		for {
			c.expression()
			if argc == config.MaxArgs {
				c.p.error(diagnostics.ErrP008, config.MaxArgs)
			}
			argc++
			if !c.p.match(token.COMMA) {
				break
			}
		}
	}
	c.p.consume(token.RPAREN, "')' after arguments")
	return argc
}

func (c *Compiler) call(canAssign bool) {
	paren := c.p.previous
	argc := c.argumentList()
	c.emitOpAt(OP_CALL, paren)
	c.emitByteAt(byte(argc), paren)
}

func (c *Compiler) dot(canAssign bool) {
	name := c.p.consumeName("property name after '.'")
	idx := c.identifierConstant(name.Lexeme)
	if c.p.match(token.LPAREN) {
		argc := c.argumentList()
		c.emitOpAt(OP_INVOKE, name)
		c.emitByteAt(byte(idx >> 8), name)
		c.emitByteAt(byte(idx), name)
		c.emitByteAt(byte(argc), name)
		return
	}
	start := c.chunk().Len()
	c.emitOpAt(OP_GET_PROPERTY, name)
	c.emitByte(byte(idx >> 8))
	c.emitByte(byte(idx))
	c.lastGet = start
}

func (c *Compiler) index(canAssign bool) {
	bracket := c.p.previous
	c.expression()
	c.p.consume(token.RBRACKET, "']' after index")
	start := c.chunk().Len()
	c.emitOpAt(OP_GET_INDEX, bracket)
	c.lastGet = start
}

func (c *Compiler) arrayLiteral(canAssign bool) {
	open := c.p.previous
	count := 0
	for !c.p.check(token.RBRACKET) {
		c.expression()
		count++
		if !c.p.match(token.COMMA) {
			break
		}
	}
	c.p.consume(token.RBRACKET, "']' after array elements")
	if count > config.MaxJump {
		c.p.errorAt(open, diagnostics.ErrP017, "array literal", config.MaxJump)
	}
	c.emitOpU16(OP_ARRAY, count)
}

// tableLiteral compiles {name: v, "key": v, 1: v, [expr]: v}.
func (c *Compiler) tableLiteral(canAssign bool) {
	open := c.p.previous
	count := 0
	for !c.p.check(token.RBRACE) {
		switch {
		case c.p.match(token.LBRACKET):
			c.expression()
			c.p.consume(token.RBRACKET, "']' after table key")
		case c.p.match(token.STRING):
			c.stringLiteral(false)
		case c.p.match(token.NUMBER):
			c.number(false)
		default:
			key := c.p.consumeName("table key")
			c.emitConstant(c.p.vm.StringVal(key.Lexeme))
		}
		c.p.consume(token.COLON, "':' after table key")
		c.expression()
		count++
		if !c.p.match(token.COMMA) {
			break
		}
	}
	c.p.consume(token.RBRACE, "'}' after table entries")
	if count > config.MaxJump {
		c.p.errorAt(open, diagnostics.ErrP017, "table literal", config.MaxJump)
	}
	c.emitOpU16(OP_TABLE, count)
}

func (c *Compiler) lambda(canAssign bool) {
	c.function(TYPE_FUNCTION, "", false)
}

func (c *Compiler) self(canAssign bool) {
	if c.p.classes == nil {
		c.p.error(diagnostics.ErrP011, c.p.describe(c.p.previous))
	}
	c.namedVariable(syntheticToken("self", c.p.previous))
	c.lastGet = -1 // self is not assignable
}

func (c *Compiler) super(canAssign bool) {
	kw := c.p.previous
	switch {
	case c.p.classes == nil:
		c.p.error(diagnostics.ErrP012, "cannot use super outside of a class")
	case !c.p.classes.hasSuper:
		c.p.error(diagnostics.ErrP012, "cannot use super in a class with no superclass")
	}

	c.p.consume(token.DOT, "'.' after super")
	name := c.p.consumeName("superclass method name")
	idx := c.identifierConstant(name.Lexeme)

	c.namedVariable(syntheticToken("self", kw))
	if c.p.match(token.LPAREN) {
		argc := c.argumentList()
		c.namedVariable(syntheticToken("super", kw))
		c.emitOpAt(OP_SUPER_INVOKE, name)
		c.emitByteAt(byte(idx >> 8), name)
		c.emitByteAt(byte(idx), name)
		c.emitByteAt(byte(argc), name)
		return
	}
	c.namedVariable(syntheticToken("super", kw))
	c.emitGet(OP_GET_SUPER, idx, true)
}

var builtinForms = map[token.TokenType]Opcode{
	token.LEN:    OP_LEN,
	token.TYPEOF: OP_TYPEOF,
	token.IMPORT: OP_IMPORT,
	token.PANIC:  OP_PANIC,
}

// builtinForm compiles len(e), typeof(e), import(e) and panic(e).
func (c *Compiler) builtinForm(canAssign bool) {
	kw := c.p.previous
	c.p.consume(token.LPAREN, "'(' after "+c.p.describe(kw))
	c.expression()
	c.p.consume(token.RPAREN, "')' after argument")
	c.emitOpAt(builtinForms[kw.Type], kw)
}

func (c *Compiler) assert(canAssign bool) {
	kw := c.p.previous
	c.p.consume(token.LPAREN, "'(' after "+c.p.describe(kw))
	c.expression()
	if c.p.match(token.COMMA) {
		c.expression()
	} else {
		c.emitOp(OP_NIL)
	}
	c.p.consume(token.RPAREN, "')' after assertion")
	c.emitOpAt(OP_ASSERT, kw)
}

// delete compiles `delete a.b` and `delete a[k]` by rewriting the trailing
// get into a key push and DELETE.
func (c *Compiler) delete(canAssign bool) {
	kw := c.p.previous
	c.parsePrecedence(PREC_UNARY)
	if c.lastGet < 0 {
		c.p.errorAt(kw, diagnostics.ErrP016)
	}
	ch := c.chunk()
	switch Opcode(ch.Code[c.lastGet]) {
	case OP_GET_PROPERTY:
		idx := ch.ReadUint16(c.lastGet + 1)
		ch.Truncate(c.lastGet)
		c.emitOpU16(OP_CONST, idx)
	case OP_GET_INDEX:
		ch.Truncate(c.lastGet)
	default:
		c.p.errorAt(kw, diagnostics.ErrP016)
	}
	c.emitOpAt(OP_DELETE, kw)
}
