package modules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/funvibe/kiln/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	writeFile(t, filepath.Join(root, "app", "util.kn"), "return 1;")
	writeFile(t, filepath.Join(lib, "shared.kn"), "return 2;")
	writeFile(t, filepath.Join(root, "app", "fast"+config.NativeModuleExt()), "")

	r := NewResolver([]string{lib})
	app := filepath.Join(root, "app")

	tests := []struct {
		name     string
		path     string
		wantFile string
		wantKind Kind
	}{
		{"relative", "./util", filepath.Join(app, "util.kn"), Source},
		{"relative with ext", "./util.kn", filepath.Join(app, "util.kn"), Source},
		{"bare in base dir", "util", filepath.Join(app, "util.kn"), Source},
		{"search path", "shared", filepath.Join(lib, "shared.kn"), Source},
		{"native", "./fast", filepath.Join(app, "fast"+config.NativeModuleExt()), Native},
		{"host", "@yaml", "", Host},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(app, tt.path)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.path, err)
			}
			if res.File != tt.wantFile {
				t.Errorf("File = %q, want %q", res.File, tt.wantFile)
			}
			if res.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", res.Kind, tt.wantKind)
			}
		})
	}
}

func TestResolveKeyIsExtensionless(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.kn"), "")

	r := NewResolver(nil)
	withExt, err := r.Resolve(root, "./a.kn")
	if err != nil {
		t.Fatal(err)
	}
	without, err := r.Resolve(root, "./a")
	if err != nil {
		t.Fatal(err)
	}
	if withExt.Key != without.Key {
		t.Errorf("keys differ: %q vs %q", withExt.Key, without.Key)
	}
	if withExt.Name != "a" {
		t.Errorf("Name = %q, want a", withExt.Name)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver([]string{t.TempDir()})
	_, err := r.Resolve(t.TempDir(), "./missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// relative paths never consult search paths
	_, err = r.Resolve(t.TempDir(), "./x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenNativeMissingFile(t *testing.T) {
	_, _, err := OpenNative(filepath.Join(t.TempDir(), "nope"+config.NativeModuleExt()))
	if err == nil {
		t.Fatal("expected error opening a missing plugin")
	}
}
