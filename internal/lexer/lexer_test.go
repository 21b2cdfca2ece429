package lexer

import (
	"errors"
	"testing"

	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `var five = 5;
fn add(x, y) { return x + y; }
if (a <= 10 and b != 2) { print("ok"); }
x << 2 >> 1 & 3 | 4 ^ ~5;
t.key = [1, 2.5, 0xff];
n mod 3 >= 1e3;
init?`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.VAR, "var"},
		{token.IDENT, "five"},
		{token.ASSIGN, "="},
		{token.NUMBER, "5"},
		{token.SEMICOLON, ";"},
		{token.FN, "fn"},
		{token.IDENT, "add"},
		{token.LPAREN, "("},
		{token.IDENT, "x"},
		{token.COMMA, ","},
		{token.IDENT, "y"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.RETURN, "return"},
		{token.IDENT, "x"},
		{token.PLUS, "+"},
		{token.IDENT, "y"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.IF, "if"},
		{token.LPAREN, "("},
		{token.IDENT, "a"},
		{token.LTE, "<="},
		{token.NUMBER, "10"},
		{token.AND, "and"},
		{token.IDENT, "b"},
		{token.NOT_EQ, "!="},
		{token.NUMBER, "2"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.IDENT, "print"},
		{token.LPAREN, "("},
		{token.STRING, "ok"},
		{token.RPAREN, ")"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.IDENT, "x"},
		{token.LSHIFT, "<<"},
		{token.NUMBER, "2"},
		{token.RSHIFT, ">>"},
		{token.NUMBER, "1"},
		{token.AMPERSAND, "&"},
		{token.NUMBER, "3"},
		{token.PIPE, "|"},
		{token.NUMBER, "4"},
		{token.CARET, "^"},
		{token.TILDE, "~"},
		{token.NUMBER, "5"},
		{token.SEMICOLON, ";"},
		{token.IDENT, "t"},
		{token.DOT, "."},
		{token.IDENT, "key"},
		{token.ASSIGN, "="},
		{token.LBRACKET, "["},
		{token.NUMBER, "1"},
		{token.COMMA, ","},
		{token.NUMBER, "2.5"},
		{token.COMMA, ","},
		{token.NUMBER, "0xff"},
		{token.RBRACKET, "]"},
		{token.SEMICOLON, ";"},
		{token.IDENT, "n"},
		{token.MOD, "mod"},
		{token.NUMBER, "3"},
		{token.GTE, ">="},
		{token.NUMBER, "1e3"},
		{token.SEMICOLON, ";"},
		{token.IDENT, "init"},
		{token.QUESTION, "?"},
		{token.EOF, ""},
	}

	l := New("test.kn", input, Options{})
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%s, got=%s (%q)", i, tt.expectedType, tok.Type, tok.Lexeme)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestPositions(t *testing.T) {
	l := New("pos.kn", "a\n  bb\n\tc", Options{})
	want := []struct{ line, col int }{{1, 1}, {2, 3}, {3, 2}}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Line != w.line || tok.Column != w.col {
			t.Errorf("token %d at %d:%d, want %d:%d", i, tok.Line, tok.Column, w.line, w.col)
		}
		if tok.Path != "pos.kn" {
			t.Errorf("token %d path = %q", i, tok.Path)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"a\tb"`, "a\tb"},
		{`'single "quoted"'`, `single "quoted"`},
		{`"line\n"`, "line\n"},
		{`"\x41\x62"`, "Ab"},
		{`"q\"q"`, `q"q`},
		{`"back\\slash"`, `back\slash`},
	}
	for _, tt := range tests {
		tok := New("", tt.input, Options{}).NextToken()
		if tok.Type != token.STRING {
			t.Fatalf("%s: got %s", tt.input, tok.Type)
		}
		if tok.Literal != tt.want {
			t.Errorf("%s: literal %q, want %q", tt.input, tok.Literal, tt.want)
		}
	}
}

func TestInterpolation(t *testing.T) {
	toks, err := Tokenize("", `"a \(x + f(1)) b \(y) c"`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		typ token.TokenType
		lit string
	}{
		{token.INTERPOLATION, "a "},
		{token.IDENT, "x"},
		{token.PLUS, "+"},
		{token.IDENT, "f"},
		{token.LPAREN, "("},
		{token.NUMBER, "1"},
		{token.RPAREN, ")"},
		{token.INTERPOLATION, " b "},
		{token.IDENT, "y"},
		{token.STRING, " c"},
		{token.EOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w.typ || toks[i].Literal != w.lit {
			t.Errorf("token %d = %s %q, want %s %q", i, toks[i].Type, toks[i].Literal, w.typ, w.lit)
		}
	}
}

func TestNestedInterpolation(t *testing.T) {
	toks, err := Tokenize("", `"outer \("inner \(v)") end"`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	types := []token.TokenType{
		token.INTERPOLATION, token.INTERPOLATION, token.IDENT, token.STRING, token.STRING, token.EOF,
	}
	if len(toks) != len(types) {
		t.Fatalf("got %v", toks)
	}
	for i, typ := range types {
		if toks[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, toks[i].Type, typ)
		}
	}
	if toks[4].Literal != " end" {
		t.Errorf("tail literal = %q", toks[4].Literal)
	}
}

func TestComments(t *testing.T) {
	input := "a # line\n/# outer /# inner #/ still #/ b"

	toks, err := Tokenize("", input, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 3 || toks[0].Lexeme != "a" || toks[1].Lexeme != "b" {
		t.Fatalf("comments not skipped: %v", toks)
	}

	toks, err = Tokenize("", input, Options{KeepComments: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 5 {
		t.Fatalf("expected comments kept, got %v", toks)
	}
	if toks[1].Type != token.COMMENT || toks[1].Lexeme != "# line" {
		t.Errorf("line comment = %v", toks[1])
	}
	if toks[2].Type != token.COMMENT || toks[2].Lexeme != "/# outer /# inner #/ still #/" {
		t.Errorf("block comment = %v", toks[2])
	}
}

func TestPeek(t *testing.T) {
	l := New("", "a b", Options{})
	if p := l.Peek(); p.Lexeme != "a" {
		t.Fatalf("Peek = %q", p.Lexeme)
	}
	if p := l.Peek(); p.Lexeme != "a" {
		t.Fatalf("second Peek = %q", p.Lexeme)
	}
	if n := l.NextToken(); n.Lexeme != "a" {
		t.Fatalf("NextToken = %q", n.Lexeme)
	}
	if n := l.NextToken(); n.Lexeme != "b" {
		t.Fatalf("NextToken = %q", n.Lexeme)
	}
}

func TestExtendedModeKeepsTypes(t *testing.T) {
	plain, _ := Tokenize("", "fn var self", Options{})
	ext, _ := Tokenize("", "fn var self", Options{Extended: true})
	for i := range plain {
		if plain[i].Type != ext[i].Type {
			t.Errorf("token %d type differs: %s vs %s", i, plain[i].Type, ext[i].Type)
		}
	}
	if got := token.FN.Display(true); got != "function" {
		t.Errorf("FN.Display(true) = %q", got)
	}
	if got := token.FN.Display(false); got != "fn" {
		t.Errorf("FN.Display(false) = %q", got)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		input string
		code  diagnostics.ErrorCode
		line  int
	}{
		{"a $ b", diagnostics.ErrL001, 1},
		{"x = \"open", diagnostics.ErrL002, 1},
		{`"\q"`, diagnostics.ErrL003, 1},
		{"ok\n/# never closed", diagnostics.ErrL004, 2},
		{"12abc", diagnostics.ErrL005, 1},
		{"0x", diagnostics.ErrL005, 1},
		{"1e+", diagnostics.ErrL005, 1},
		{"a ! b", diagnostics.ErrL001, 1},
	}
	for _, tt := range tests {
		_, err := Tokenize("bad.kn", tt.input, Options{})
		var de *diagnostics.Error
		if !errors.As(err, &de) {
			t.Fatalf("%q: expected diagnostic, got %v", tt.input, err)
		}
		if de.Code != tt.code {
			t.Errorf("%q: code %s, want %s", tt.input, de.Code, tt.code)
		}
		if de.Kind != diagnostics.Compile {
			t.Errorf("%q: kind %s", tt.input, de.Kind)
		}
		if de.Pos.Line != tt.line || de.Pos.Path != "bad.kn" {
			t.Errorf("%q: pos %s", tt.input, de.Pos)
		}
	}
}
