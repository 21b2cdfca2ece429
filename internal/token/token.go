package token

import "fmt"

type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF
	COMMENT

	IDENT
	NUMBER
	STRING
	INTERPOLATION // string prefix ending at "\(", followed by an embedded expression

	// Punctuation
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	COMMA
	DOT
	COLON
	SEMICOLON

	// Operators
	ASSIGN
	PLUS
	MINUS
	ASTERISK
	SLASH
	AMPERSAND
	PIPE
	CARET
	TILDE
	LSHIFT
	RSHIFT
	QUESTION

	EQ
	NOT_EQ
	LT
	LTE
	GT
	GTE

	// Keywords
	AND
	OR
	NOT
	MOD
	FN
	VAR
	RETURN
	IF
	ELSE
	FOR
	WHILE
	IN
	BREAK
	CONTINUE
	CLASS
	SUPER
	SELF
	NIL
	TRUE
	FALSE
	LEN
	IMPORT
	PANIC
	ASSERT
	TYPEOF
	DELETE
	RANGE
)

// Token is one lexical unit with its source position.
type Token struct {
	Type    TokenType
	Lexeme  string // raw source text
	Literal string // decoded value for strings, same as Lexeme otherwise
	Path    string
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q at %d:%d", t.Type, t.Lexeme, t.Line, t.Column)
}

var keywords = map[string]TokenType{
	"and":      AND,
	"or":       OR,
	"not":      NOT,
	"mod":      MOD,
	"fn":       FN,
	"var":      VAR,
	"return":   RETURN,
	"if":       IF,
	"else":     ELSE,
	"for":      FOR,
	"while":    WHILE,
	"in":       IN,
	"break":    BREAK,
	"continue": CONTINUE,
	"class":    CLASS,
	"super":    SUPER,
	"self":     SELF,
	"nil":      NIL,
	"true":     TRUE,
	"false":    FALSE,
	"len":      LEN,
	"import":   IMPORT,
	"panic":    PANIC,
	"assert":   ASSERT,
	"typeof":   TYPEOF,
	"delete":   DELETE,
	"range":    RANGE,
}

// LookupIdent returns the keyword type for ident, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

var names = map[TokenType]string{
	ILLEGAL:       "ILLEGAL",
	EOF:           "end of file",
	COMMENT:       "comment",
	IDENT:         "identifier",
	NUMBER:        "number",
	STRING:        "string",
	INTERPOLATION: "interpolation",
	LPAREN:        "(",
	RPAREN:        ")",
	LBRACE:        "{",
	RBRACE:        "}",
	LBRACKET:      "[",
	RBRACKET:      "]",
	COMMA:         ",",
	DOT:           ".",
	COLON:         ":",
	SEMICOLON:     ";",
	ASSIGN:        "=",
	PLUS:          "+",
	MINUS:         "-",
	ASTERISK:      "*",
	SLASH:         "/",
	AMPERSAND:     "&",
	PIPE:          "|",
	CARET:         "^",
	TILDE:         "~",
	LSHIFT:        "<<",
	RSHIFT:        ">>",
	QUESTION:      "?",
	EQ:            "==",
	NOT_EQ:        "!=",
	LT:            "<",
	LTE:           "<=",
	GT:            ">",
	GTE:           ">=",
}

// extendedNames is the long-form keyword spelling shown in extended mode.
var extendedNames = map[TokenType]string{
	FN:     "function",
	VAR:    "variable",
	MOD:    "modulo",
	SELF:   "this",
	TYPEOF: "type of",
	LEN:    "length",
}

func (t TokenType) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	for k, v := range keywords {
		if v == t {
			return k
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Display returns the user-facing text for t. Extended mode renames some
// keywords; the token types are unaffected.
func (t TokenType) Display(extended bool) string {
	if extended {
		if n, ok := extendedNames[t]; ok {
			return n
		}
	}
	return t.String()
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= AND && t <= RANGE
}
