package diagnostics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/funvibe/kiln/internal/token"
)

func TestNewErrorFormatsTemplate(t *testing.T) {
	tok := token.Token{Path: "m.kn", Line: 3, Column: 7}
	err := NewError(ErrP009, tok, "x")

	if err.Kind != Compile {
		t.Errorf("kind = %s", err.Kind)
	}
	if err.Message != `variable "x" already declared in this scope` {
		t.Errorf("message = %q", err.Message)
	}
	if got := err.Error(); got != `m.kn:3:7: compile error [P009]: variable "x" already declared in this scope` {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorIncludesTrace(t *testing.T) {
	err := NewErrorAt(ErrR008, Pos{Path: "a.kn", Line: 2, Column: 1}, "nil")
	err.Trace = []string{"f() a.kn:2", "<script> a.kn:5"}
	want := "a.kn:2:1: runtime error [R008]: cannot call nil\n  at f() a.kn:2\n  at <script> a.kn:5"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPosString(t *testing.T) {
	tests := []struct {
		pos  Pos
		want string
	}{
		{Pos{}, "<script>"},
		{Pos{Path: "a.kn"}, "a.kn"},
		{Pos{Line: 1, Column: 2}, "<script>:1:2"},
	}
	for _, tt := range tests {
		if got := tt.pos.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.pos, got, tt.want)
		}
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil, Pos{}) != nil {
		t.Error("nil error should stay nil")
	}
	orig := NewErrorAt(ErrR006, Pos{}, "boom")
	if AsError(fmt.Errorf("wrapped: %w", orig), Pos{}) != orig {
		t.Error("wrapped diagnostic was not unwrapped")
	}
	host := AsError(errors.New("disk full"), Pos{Path: "x.kn", Line: 1})
	if host.Code != ErrH001 || host.Kind != Host || host.Message != "disk full" {
		t.Errorf("host error = %+v", host)
	}
}

func TestRenderPlain(t *testing.T) {
	var b bytes.Buffer
	err := NewErrorAt(ErrR005, Pos{Path: "b.kn", Line: 2, Column: 1}, "a")
	err.Trace = []string{`import("./b") a.kn:2`}
	Render(&b, err)

	out := b.String()
	for _, want := range []string{
		"runtime error [R005]: import loop detected: a",
		"--> b.kn:2:1",
		`at import("./b") a.kn:2`,
		"still being initialized",
		"example:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("colour codes written to a non-terminal")
	}

	b.Reset()
	Render(&b, errors.New("plain"))
	if b.String() != "error: plain\n" {
		t.Errorf("plain render = %q", b.String())
	}
}

func TestExplain(t *testing.T) {
	if exp, ex := Explain(ErrP003); exp == "" || ex == "" {
		t.Error("P003 should carry an explanation and example")
	}
	if exp, _ := Explain(ErrR009); exp != "" {
		t.Errorf("R009 explanation = %q", exp)
	}
}

func TestCloneDetachesTrace(t *testing.T) {
	orig := NewErrorAt(ErrR006, Pos{Path: "a.kn", Line: 1}, "x")
	orig.Trace = make([]string, 1, 4)
	orig.Trace[0] = "f() a.kn:1"
	orig.More = true

	c := orig.Clone()
	c.More = false
	c.Trace = append(c.Trace, "<script> a.kn:2")

	if !orig.More || len(orig.Trace) != 1 {
		t.Errorf("clone changed the original: %+v", orig)
	}
	if orig.Trace[:2][1] != "" {
		t.Errorf("clone shares trace storage with the original")
	}
	if c.Code != orig.Code || c.Message != orig.Message || len(c.Trace) != 2 {
		t.Errorf("clone = %+v", c)
	}
}
