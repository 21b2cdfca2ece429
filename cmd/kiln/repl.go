package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/funvibe/kiln/internal/diagnostics"
	"github.com/funvibe/kiln/internal/lexer"
	"github.com/funvibe/kiln/internal/token"
	kiln "github.com/funvibe/kiln/pkg/embed"
)

const (
	historyFile = ".kiln_history"
	promptMain  = "kiln> "
	promptCont  = "...   "
)

func repl(in *kiln.Interpreter) int {
	fmt.Printf("kiln %s, :quit to leave\n", version)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		src, ok := readEntry(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		switch strings.TrimSpace(src) {
		case "":
			continue
		case ":quit", ":q":
			return 0
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		res, err := in.Run("", src)
		if err != nil {
			diagnostics.Render(os.Stderr, err)
			continue
		}
		if res.ExitCode >= 0 {
			return res.ExitCode
		}
		if !res.Value.IsNil() {
			fmt.Println(res.Value.String())
		}
	}
}

// readEntry reads lines until brackets balance and strings are closed.
func readEntry(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

// incomplete reports whether src ends inside an open bracket, string or
// block comment.
func incomplete(src string) bool {
	toks, err := lexer.Tokenize("", src, lexer.Options{})
	if err != nil {
		var de *diagnostics.Error
		return errors.As(err, &de) && (de.Code == diagnostics.ErrL002 || de.Code == diagnostics.ErrL004)
	}
	depth := 0
	for _, tok := range toks {
		switch tok.Type {
		case token.LPAREN, token.LBRACE, token.LBRACKET:
			depth++
		case token.RPAREN, token.RBRACE, token.RBRACKET:
			depth--
		}
	}
	return depth > 0
}
