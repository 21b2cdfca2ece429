package vm

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestToGo(t *testing.T) {
	vm, _ := newTestVM(t, false)
	tests := []struct {
		input    string
		expected any
	}{
		{"nil", nil},
		{"1.5", 1.5},
		{"true", true},
		{`"s"`, "s"},
		{`[1, "a", nil]`, []any{1.0, "a", nil}},
		{`var t = {a: 1, b: [true]}; t`, map[string]any{"a": 1.0, "b": []any{true}}},
		{`var t = {[1]: "x", y: 2}; t`, map[any]any{1.0: "x", "y": 2.0}},
		{`class P { init() { self.x = 3; } } P()`, map[string]any{"x": 3.0}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := vm.Interpret("test.kn", tt.input)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ToGo(v)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ToGo = %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestToGoRejectsFunctionsAndCycles(t *testing.T) {
	vm, _ := newTestVM(t, false)
	v, err := vm.Interpret("test.kn", "fn f() {} f")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ToGo(v); err == nil || !strings.Contains(err.Error(), "function") {
		t.Errorf("expected function conversion error, got %v", err)
	}

	v, err = vm.Interpret("test.kn", "var a = []; a.push(a); a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ToGo(v); err == nil || !strings.Contains(err.Error(), "nested deeper") {
		t.Errorf("expected depth error, got %v", err)
	}
}

func TestFromGo(t *testing.T) {
	vm, _ := newTestVM(t, true)
	type point struct {
		X      int
		hidden string
	}
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, "nil"},
		{"int", 42, "42"},
		{"uint8", uint8(7), "7"},
		{"float32", float32(0.5), "0.5"},
		{"bytes", []byte("raw"), "raw"},
		{"slice", []string{"a", "b"}, `["a", "b"]`},
		{"array", [2]bool{true, false}, "[true, false]"},
		{"nil slice", []int(nil), "nil"},
		{"pointer", &point{X: 1, hidden: "h"}, `{"X": 1}`},
		{"map", map[string]int{"a": 1}, `{"a": 1}`},
		{"nested", map[string]any{"k": []any{1, map[string]any{}}}, `{"k": [1, {}]}`},
		{"time", stamp, "2024-05-01T12:00:00Z"},
		{"value", NumberVal(9), "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vm.FromGo(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if got := v.String(); got != tt.expected {
				t.Errorf("FromGo = %s, want %s", got, tt.expected)
			}
		})
	}

	if _, err := vm.FromGo(make(chan int)); err == nil {
		t.Error("expected an error converting a channel")
	}
	if _, err := vm.FromGo(map[*int]int{nil: 1}); err == nil {
		t.Error("expected an error for a nil map key")
	}
}
