package config

import (
	"path/filepath"
	"runtime"
	"strings"
)

const SourceFileExt = ".kn"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".kn", ".kiln"}

// NativeModuleInit is the symbol a dynamically loaded module must export.
const NativeModuleInit = "KilnModuleInit"

// HostLibraryPrefix marks import paths served by statically linked libraries.
const HostLibraryPrefix = "@"

// PathEnvVar lists extra module search directories, separated by the OS list separator.
const PathEnvVar = "KILN_PATH"

// Compiler limits
const (
	MaxLocals    = 256
	MaxUpvalues  = 256
	MaxConstants = 1 << 16
	MaxJump      = 0xffff
	MaxArgs      = 255
)

// VM limits
const (
	InitialStackSize = 256
	MaxFrames        = 1024
	// MaxArrayLength bounds how far an index assignment may extend an array.
	MaxArrayLength = 1 << 20
)

// GC tuning defaults
const (
	DefaultGCThreshold    = 1024 * 1024
	DefaultGCGrowthFactor = 2.0
)

// Built-in function names
const (
	PrintFuncName = "print"
	StrFuncName   = "str"
	NumFuncName   = "num"
	ClockFuncName = "clock"
	ExitFuncName  = "exit"
	GCFuncName    = "gc"
)

// Reserved method names
const (
	InitMethodName = "init"
)

// NativeModuleExt returns the dynamic library extension for the host platform.
func NativeModuleExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// HasSourceExt reports whether path ends with a recognized source extension.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// TrimSourceExt removes a recognized source extension from path.
func TrimSourceExt(path string) string {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// ModuleName derives a display name from a module path.
func ModuleName(path string) string {
	return TrimSourceExt(filepath.Base(path))
}
