package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	colorRed   = "\033[31m"
	colorGrey  = "\033[90m"
	colorBold  = "\033[1m"
	colorReset = "\033[0m"
)

// IsTerminal reports whether w writes to an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes err in long form: header, trace, then the explanation and
// example when the code has them. Colour is used only on terminals.
func Render(w io.Writer, err error) {
	if err == nil {
		return
	}
	var de *Error
	if !errors.As(err, &de) {
		fmt.Fprintf(w, "error: %s\n", err)
		return
	}

	color := IsTerminal(w)
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}

	fmt.Fprintf(w, "%s %s\n", paint(colorBold+colorRed, de.Kind.String()+" ["+string(de.Code)+"]:"), de.Message)
	fmt.Fprintf(w, "  %s %s\n", paint(colorGrey, "-->"), de.Pos)
	for _, line := range de.Trace {
		fmt.Fprintf(w, "  %s %s\n", paint(colorGrey, "at"), line)
	}
	if de.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", indent(de.Explanation))
	}
	if de.Example != "" {
		fmt.Fprintf(w, "\n  example:\n%s\n", indent("  "+de.Example))
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
