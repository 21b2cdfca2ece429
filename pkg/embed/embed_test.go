package kiln_test

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	kiln "github.com/funvibe/kiln/pkg/embed"
)

// TestScripts runs every testdata script that has a .want file next to it
// and compares its output. A failing script contributes one final line
// naming the error code, line and message.
func TestScripts(t *testing.T) {
	err := filepath.WalkDir("testdata", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".want" {
			return err
		}
		script := strings.TrimSuffix(path, ".want") + config.SourceFileExt
		t.Run(strings.TrimSuffix(strings.TrimPrefix(script, "testdata"+string(filepath.Separator)), config.SourceFileExt), func(t *testing.T) {
			want, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}

			var out bytes.Buffer
			settings := config.Default()
			settings.GC.Stress = true
			in := kiln.New(kiln.WithSettings(settings), kiln.WithOutput(&out))
			defer in.Close()

			if _, err := in.RunFile(script); err != nil {
				var de *diagnostics.Error
				if !errors.As(err, &de) {
					t.Fatalf("unexpected error type %T: %v", err, err)
				}
				fmt.Fprintf(&out, "error [%s] line %d: %s\n", de.Code, de.Pos.Line, de.Message)
			}
			if got := out.String(); got != string(want) {
				t.Errorf("output mismatch\n--- got ---\n%s--- want ---\n%s", got, want)
			}
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunResult(t *testing.T) {
	in := kiln.New(kiln.WithOutput(&bytes.Buffer{}))
	defer in.Close()

	res, err := in.Run("main.kn", "1 + 2 * 3")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.ExitCode != -1 || res.Value.AsNumber() != 7 {
		t.Errorf("result = %+v", res)
	}

	res, err = in.Run("main.kn", "exit(3); print(1);")
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.ExitCode != 3 {
		t.Errorf("exit result = %+v", res)
	}

	res, err = in.Run("main.kn", "nil();")
	if err == nil || res.OK || res.ExitCode != -1 {
		t.Errorf("failing run = %+v, %v", res, err)
	}
}

func TestDefineAndCallGlobal(t *testing.T) {
	var out bytes.Buffer
	in := kiln.New(kiln.WithOutput(&out))
	defer in.Close()

	if err := in.Define("config", map[string]any{"name": "svc", "ports": []int{80, 443}}); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Run("main.kn", `
fn describe(prefix, n) { return prefix + config.name + ":" + str(config.ports[n]); }
`); err != nil {
		t.Fatal(err)
	}

	res, err := in.CallGlobal("describe", "svc=", 1)
	if err != nil {
		t.Fatal(err)
	}
	got, err := kiln.ToGo(res.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got != "svc=svc:443" {
		t.Errorf("describe = %v", got)
	}

	if _, err := in.CallGlobal("missing"); err == nil {
		t.Error("expected an error calling an undefined global")
	}
}

func TestBind(t *testing.T) {
	var out bytes.Buffer
	in := kiln.New(kiln.WithOutput(&out))
	defer in.Close()

	mustBind := func(name string, fn any) {
		t.Helper()
		if err := in.Bind(name, fn); err != nil {
			t.Fatal(err)
		}
	}
	mustBind("double", func(x int) int { return x * 2 })
	mustBind("sum", func(xs ...float64) float64 {
		total := 0.0
		for _, x := range xs {
			total += x
		}
		return total
	})
	mustBind("join", func(parts []string, sep string) string { return strings.Join(parts, sep) })
	mustBind("check", func(ok bool) (string, error) {
		if !ok {
			return "", errors.New("not ok")
		}
		return "fine", nil
	})
	mustBind("machine", func(vm *kiln.VM, v kiln.Value) string { return v.TypeName() })

	if _, err := in.Run("main.kn", `print(double(21), sum(1, 2, 3.5), join(["a", "b"], "-"), check(true), machine({}));`); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "42 6.5 a-b fine table\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	tests := []struct {
		src  string
		want string
	}{
		{`double(1.5);`, "not an integer"},
		{`double("x");`, "cannot use string as int"},
		{`check(false);`, "check: not ok"},
	}
	for _, tt := range tests {
		_, err := in.Run("main.kn", tt.src)
		var de *diagnostics.Error
		if !errors.As(err, &de) || de.Code != diagnostics.ErrH001 || !strings.Contains(de.Message, tt.want) {
			t.Errorf("%s: got %v, want host error containing %q", tt.src, err, tt.want)
		}
	}

	if err := in.Bind("bad", 42); err == nil {
		t.Error("binding a non-function should fail")
	}
}

func TestHostClassAndLibrary(t *testing.T) {
	var out bytes.Buffer
	in := kiln.New(kiln.WithOutput(&out), kiln.WithoutStdlib())
	defer in.Close()

	closed := 0
	in.DefineClass(kiln.NativeClass{
		Name:      "Counter",
		InitArity: 1,
		Init: func(vm *kiln.VM, recv kiln.Value, args []kiln.Value) (kiln.Value, error) {
			recv.Obj.(*kiln.Instance).Payload = int(args[0].AsNumber())
			return recv, nil
		},
		Free: func(*kiln.Instance) { closed++ },
		Methods: map[string]kiln.Method{
			"next": {Arity: 0, Fn: func(vm *kiln.VM, recv kiln.Value, _ []kiln.Value) (kiln.Value, error) {
				inst := recv.Obj.(*kiln.Instance)
				n := inst.Payload.(int) + 1
				inst.Payload = n
				return vm.FromGo(n)
			}},
		},
	})
	in.RegisterLibrary("greet", func(vm *kiln.VM, lib *kiln.Library) error {
		vm.ExportNative(lib, "hello", 1, func(vm *kiln.VM, _ kiln.Value, args []kiln.Value) (kiln.Value, error) {
			return vm.StringVal("hello " + args[0].String()), nil
		})
		return nil
	})

	_, err := in.Run("main.kn", `
var c = Counter(10);
c.next();
print(c.next(), import("@greet").hello("host"));
`)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "12 hello host\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	if _, err := in.Run("main.kn", `import("@uuid");`); err == nil {
		t.Error("bundled libraries should be absent without the stdlib")
	}

	in.Close()
	if closed != 1 {
		t.Errorf("Free ran %d times, want 1", closed)
	}
}

func TestUserDataAndOutputs(t *testing.T) {
	in := kiln.New()
	defer in.Close()

	var out bytes.Buffer
	in.SetOutput(&out)
	in.SetUserData("ctx")
	in.DefineNative("who", 0, func(vm *kiln.VM, _ kiln.Value, _ []kiln.Value) (kiln.Value, error) {
		return vm.StringVal(vm.UserData().(string)), nil
	})
	if _, err := in.Run("main.kn", `print(who());`); err != nil {
		t.Fatal(err)
	}
	if out.String() != "ctx\n" || in.UserData() != "ctx" {
		t.Errorf("output = %q, user data = %v", out.String(), in.UserData())
	}
}
