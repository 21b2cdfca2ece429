package lexer

import (
	"strconv"
	"strings"

	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/token"
)

// Options tune the scanner.
type Options struct {
	// KeepComments returns comments as COMMENT tokens instead of skipping them.
	KeepComments bool
	// Extended switches keyword display text to the long forms.
	Extended bool
}

// interpState tracks one open "\(" inside a string literal.
type interpState struct {
	quote byte
	depth int // unmatched '(' seen inside the embedded expression
}

type Lexer struct {
	input        string
	path         string
	opts         Options
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
	column       int  // current column number

	peeked *token.Token
	interp []interpState
}

func New(path, input string, opts Options) *Lexer {
	l := &Lexer{input: input, path: path, opts: opts, line: 1, column: 0}
	l.readChar()
	return l
}

// Path returns the source path the lexer was created with.
func (l *Lexer) Path() string { return l.path }

// Extended reports whether long-form keyword display is on.
func (l *Lexer) Extended() bool { return l.opts.Extended }

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() token.Token {
	if l.peeked == nil {
		tok := l.scan()
		l.peeked = &tok
	}
	return *l.peeked
}

// NextToken consumes and returns the next token. Lexical errors panic with a
// *diagnostics.Error; the compiler recovers it at its entry point.
func (l *Lexer) NextToken() token.Token {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok
	}
	return l.scan()
}

func (l *Lexer) scan() token.Token {
	for {
		l.skipWhitespace()
		if l.ch == '#' || (l.ch == '/' && l.peekChar() == '#') {
			tok := l.readComment()
			if l.opts.KeepComments {
				return tok
			}
			continue
		}
		break
	}

	if l.atEnd() {
		return l.make(token.EOF, "", l.line, l.column)
	}

	line, col := l.line, l.column
	start := l.position

	switch ch := l.ch; {
	case isLetter(ch):
		return l.readIdentifier()
	case isDigit(ch):
		return l.readNumber()
	case ch == '"' || ch == '\'':
		l.readChar()
		return l.readString(ch, line, col, start)
	}

	two := func(next byte, double, single token.TokenType) token.Token {
		if l.peekChar() == next {
			l.readChar()
			l.readChar()
			return l.make(double, l.input[start:l.position], line, col)
		}
		l.readChar()
		return l.make(single, l.input[start:l.position], line, col)
	}

	switch l.ch {
	case '(':
		if n := len(l.interp); n > 0 {
			l.interp[n-1].depth++
		}
		l.readChar()
		return l.make(token.LPAREN, "(", line, col)
	case ')':
		if n := len(l.interp); n > 0 {
			if l.interp[n-1].depth == 0 {
				quote := l.interp[n-1].quote
				l.interp = l.interp[:n-1]
				l.readChar()
				return l.readString(quote, line, col, start)
			}
			l.interp[n-1].depth--
		}
		l.readChar()
		return l.make(token.RPAREN, ")", line, col)
	case '{':
		l.readChar()
		return l.make(token.LBRACE, "{", line, col)
	case '}':
		l.readChar()
		return l.make(token.RBRACE, "}", line, col)
	case '[':
		l.readChar()
		return l.make(token.LBRACKET, "[", line, col)
	case ']':
		l.readChar()
		return l.make(token.RBRACKET, "]", line, col)
	case ',':
		l.readChar()
		return l.make(token.COMMA, ",", line, col)
	case '.':
		l.readChar()
		return l.make(token.DOT, ".", line, col)
	case ':':
		l.readChar()
		return l.make(token.COLON, ":", line, col)
	case ';':
		l.readChar()
		return l.make(token.SEMICOLON, ";", line, col)
	case '+':
		l.readChar()
		return l.make(token.PLUS, "+", line, col)
	case '-':
		l.readChar()
		return l.make(token.MINUS, "-", line, col)
	case '*':
		l.readChar()
		return l.make(token.ASTERISK, "*", line, col)
	case '/':
		l.readChar()
		return l.make(token.SLASH, "/", line, col)
	case '&':
		l.readChar()
		return l.make(token.AMPERSAND, "&", line, col)
	case '|':
		l.readChar()
		return l.make(token.PIPE, "|", line, col)
	case '^':
		l.readChar()
		return l.make(token.CARET, "^", line, col)
	case '~':
		l.readChar()
		return l.make(token.TILDE, "~", line, col)
	case '?':
		l.readChar()
		return l.make(token.QUESTION, "?", line, col)
	case '=':
		return two('=', token.EQ, token.ASSIGN)
	case '!':
		if l.peekChar() == '=' {
			return two('=', token.NOT_EQ, token.ILLEGAL)
		}
	case '<':
		if l.peekChar() == '<' {
			return two('<', token.LSHIFT, token.LT)
		}
		return two('=', token.LTE, token.LT)
	case '>':
		if l.peekChar() == '>' {
			return two('>', token.RSHIFT, token.GT)
		}
		return two('=', token.GTE, token.GT)
	}

	l.fail(diagnostics.ErrL001, line, col, string(l.ch))
	return token.Token{}
}

func (l *Lexer) make(t token.TokenType, lexeme string, line, col int) token.Token {
	return token.Token{Type: t, Lexeme: lexeme, Literal: lexeme, Path: l.path, Line: line, Column: col}
}

func (l *Lexer) fail(code diagnostics.ErrorCode, line, col int, args ...interface{}) {
	panic(diagnostics.NewErrorAt(code, diagnostics.Pos{Path: l.path, Line: line, Column: col}, args...))
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readComment consumes a "#" line comment or a nested "/# ... #/" block.
func (l *Lexer) readComment() token.Token {
	line, col := l.line, l.column
	start := l.position

	if l.ch == '#' {
		for l.ch != '\n' && !l.atEnd() {
			l.readChar()
		}
		return l.make(token.COMMENT, l.input[start:l.position], line, col)
	}

	depth := 0
	for {
		switch {
		case l.atEnd():
			l.fail(diagnostics.ErrL004, line, col)
		case l.ch == '/' && l.peekChar() == '#':
			depth++
			l.readChar()
			l.readChar()
		case l.ch == '#' && l.peekChar() == '/':
			depth--
			l.readChar()
			l.readChar()
			if depth == 0 {
				return l.make(token.COMMENT, l.input[start:l.position], line, col)
			}
		default:
			l.readChar()
		}
	}
}

func (l *Lexer) readIdentifier() token.Token {
	line, col := l.line, l.column
	start := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	ident := l.input[start:l.position]
	return l.make(token.LookupIdent(ident), ident, line, col)
}

func (l *Lexer) readNumber() token.Token {
	line, col := l.line, l.column
	start := l.position

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		digits := l.position
		for isHexDigit(l.ch) {
			l.readChar()
		}
		if l.position == digits {
			l.fail(diagnostics.ErrL005, line, col, l.input[start:l.position])
		}
	} else {
		for isDigit(l.ch) {
			l.readChar()
		}
		if l.ch == '.' && isDigit(l.peekChar()) {
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
		}
		if l.ch == 'e' || l.ch == 'E' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				l.fail(diagnostics.ErrL005, line, col, l.input[start:l.position])
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	if isLetter(l.ch) {
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		l.fail(diagnostics.ErrL005, line, col, l.input[start:l.position])
	}

	lit := l.input[start:l.position]
	return l.make(token.NUMBER, lit, line, col)
}

// readString scans a string body up to the closing quote or an
// interpolation escape. The opening quote (or the ")" closing an
// interpolation) has already been consumed.
func (l *Lexer) readString(quote byte, line, col, start int) token.Token {
	var out strings.Builder
	for {
		if l.atEnd() {
			l.fail(diagnostics.ErrL002, line, col)
		}
		switch l.ch {
		case quote:
			l.readChar()
			tok := l.make(token.STRING, l.input[start:l.position], line, col)
			tok.Literal = out.String()
			return tok
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case 'r':
				out.WriteByte('\r')
			case '0':
				out.WriteByte(0)
			case '\\', '\'', '"':
				out.WriteByte(l.ch)
			case 'x':
				if l.readPosition+2 > len(l.input) {
					l.fail(diagnostics.ErrL003, l.line, l.column, "x")
				}
				hex := l.input[l.readPosition : l.readPosition+2]
				b, err := strconv.ParseUint(hex, 16, 8)
				if err != nil {
					l.fail(diagnostics.ErrL003, l.line, l.column, "x"+hex)
				}
				out.WriteByte(byte(b))
				l.readChar()
				l.readChar()
			case '(':
				l.readChar()
				l.interp = append(l.interp, interpState{quote: quote})
				tok := l.make(token.INTERPOLATION, l.input[start:l.position], line, col)
				tok.Literal = out.String()
				return tok
			default:
				if l.atEnd() {
					l.fail(diagnostics.ErrL002, line, col)
				}
				l.fail(diagnostics.ErrL003, l.line, l.column, string(l.ch))
			}
			l.readChar()
		default:
			out.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}

// Tokenize scans the whole input, for tools and tests.
func Tokenize(path, input string, opts Options) (toks []token.Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			de, ok := r.(*diagnostics.Error)
			if !ok {
				panic(r)
			}
			err = de
		}
	}()
	l := New(path, input, opts)
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}
