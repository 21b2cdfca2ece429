package modules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/funvibe/kiln/internal/config"
)

var log = commonlog.GetLogger("kiln.modules")

// ErrNotFound is returned when no candidate file exists for an import path.
var ErrNotFound = errors.New("module not found")

// Kind says how a resolved module is loaded.
type Kind int

const (
	// Source is a script file compiled and run by the VM.
	Source Kind = iota
	// Native is a dynamic library opened through the plugin loader.
	Native
	// Host is a statically linked library registered by the embedding program.
	Host
)

func (k Kind) String() string {
	switch k {
	case Native:
		return "native"
	case Host:
		return "host"
	default:
		return "source"
	}
}

// Resolved is the outcome of resolving one import path.
type Resolved struct {
	// Key is the absolute path without extension, or "@name" for host libraries.
	Key string
	// File is the file to load. Empty for host libraries.
	File string
	Kind Kind
	// Name is the display name used in traces.
	Name string
}

// Resolver maps import paths to files on disk.
type Resolver struct {
	SearchPaths []string
}

func NewResolver(searchPaths []string) *Resolver {
	return &Resolver{SearchPaths: searchPaths}
}

// Resolve maps importPath, as written in the importing file located in
// baseDir, to an absolute module key and the file that backs it.
//
// Paths starting with "@" name host libraries and are returned unchanged.
// Paths starting with "." or "/" are resolved against baseDir only; bare
// names are tried against baseDir and then each search path.
func (r *Resolver) Resolve(baseDir, importPath string) (Resolved, error) {
	if strings.HasPrefix(importPath, config.HostLibraryPrefix) {
		return Resolved{Key: importPath, Kind: Host, Name: importPath}, nil
	}

	dirs := []string{baseDir}
	if !filepath.IsAbs(importPath) && !strings.HasPrefix(importPath, ".") {
		dirs = append(dirs, r.SearchPaths...)
	}

	for _, dir := range dirs {
		base := ResolveImportPath(dir, importPath)
		abs, err := filepath.Abs(config.TrimSourceExt(base))
		if err != nil {
			return Resolved{}, err
		}
		if res, ok := probe(abs); ok {
			log.Debugf("resolved %q to %s (%s)", importPath, res.File, res.Kind)
			return res, nil
		}
	}
	return Resolved{}, ErrNotFound
}

// probe checks the source extensions first, then the platform dynamic
// library extension.
func probe(abs string) (Resolved, bool) {
	name := ModuleName(abs)
	for _, ext := range config.SourceFileExtensions {
		if isFile(abs + ext) {
			return Resolved{Key: abs, File: abs + ext, Kind: Source, Name: name}, true
		}
	}
	if lib := abs + config.NativeModuleExt(); isFile(lib) {
		return Resolved{Key: abs, File: lib, Kind: Native, Name: name}, true
	}
	return Resolved{}, false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolveImportPath joins importPath onto baseDir unless it is absolute.
func ResolveImportPath(baseDir, importPath string) string {
	if filepath.IsAbs(importPath) || baseDir == "" {
		return importPath
	}
	return filepath.Join(baseDir, importPath)
}

// ModuleName derives a module name from a file path.
func ModuleName(path string) string {
	return config.ModuleName(path)
}

// ModuleDir returns the directory imports inside the file at path are
// resolved against.
func ModuleDir(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}
