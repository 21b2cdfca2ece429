// Command kiln runs scripts and an interactive prompt.
//
//	kiln [flags] [script.kn]
//
// With no script and a terminal on stdin it starts the REPL; otherwise the
// program is read from stdin.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/vm"
	kiln "github.com/funvibe/kiln/pkg/embed"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("kiln", flag.ContinueOnError)
	configPath := fs.String("config", "", "settings file (.yaml, .yml or .toml)")
	verbose := fs.Int("v", -1, "log verbosity (0 quiet .. 5 debug); overrides the settings file")
	disasm := fs.Bool("disasm", false, "print the compiled bytecode instead of running")
	stress := fs.Bool("gc-stress", false, "collect garbage on every allocation")
	showVersion := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kiln [flags] [script%s]\n", config.SourceFileExt)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Println("kiln " + version)
		return 0
	}

	settings := config.Default()
	if *configPath != "" {
		s, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return 1
		}
		settings = s
	}
	settings.ApplyEnv()
	if *verbose >= 0 {
		settings.Log.Verbosity = *verbose
	}
	if *stress {
		settings.GC.Stress = true
	}
	configureLogging(settings.Log)

	in := kiln.New(kiln.WithSettings(settings))
	defer in.Close()

	if fs.NArg() == 0 && diagnostics.IsTerminal(os.Stdin) {
		return repl(in)
	}

	path, src, err := readProgram(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	if *disasm {
		fn, err := in.VM().Compile(path, src, 0)
		if err != nil {
			diagnostics.Render(os.Stderr, err)
			return 65
		}
		fmt.Print(vm.Disassemble(fn))
		return 0
	}

	res, err := in.Run(path, src)
	if err != nil {
		diagnostics.Render(os.Stderr, err)
		var de *diagnostics.Error
		if errors.As(err, &de) && de.Kind == diagnostics.Compile {
			return 65
		}
		return 70
	}
	if res.ExitCode >= 0 {
		return res.ExitCode
	}
	return 0
}

func configureLogging(s config.LogSettings) {
	var path *string
	if s.File != "" {
		path = &s.File
	}
	commonlog.Configure(s.Verbosity, path)
}

// readProgram reads the script named on the command line, or stdin.
func readProgram(args []string) (string, string, error) {
	if len(args) == 0 {
		src, err := io.ReadAll(os.Stdin)
		return "", string(src), err
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", err
	}
	return args[0], string(src), nil
}
