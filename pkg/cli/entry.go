// Package cli implements the glox command: a script runner and a REPL on
// top of the bytecode VM.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/loxvm/glox/internal/config"
	"github.com/loxvm/glox/internal/vm"
)

// Run executes the CLI with the given arguments and returns the process
// exit code. With no arguments it starts the REPL; with one it runs that
// script.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	switch len(args) {
	case 0:
		return runREPL(stdin, stdout, stderr)
	case 1:
		return runFile(args[0], stdout, stderr)
	default:
		fmt.Fprintln(stderr, "Usage: glox [script]")
		return config.ExitUsage
	}
}

func runFile(path string, stdout, stderr io.Writer) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Could not read %s: %v\n", path, err)
		return config.ExitIOError
	}

	cfg, err := config.Load(filepath.Dir(path))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return config.ExitUsage
	}

	machine := vm.NewFromConfig(cfg)
	machine.SetOutput(stdout)

	result, runErr := machine.Interpret(string(source))
	return report(result, runErr, stderr)
}

// runREPL evaluates one line at a time against persistent globals. The
// prompt is suppressed when input is piped in.
func runREPL(stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return config.ExitUsage
	}

	machine := vm.NewFromConfig(cfg)
	machine.SetOutput(stdout)

	interactive := false
	if f, ok := stdin.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}

	scanner := bufio.NewScanner(stdin)
	for {
		if interactive {
			fmt.Fprint(stdout, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		// REPL errors are reported but never end the session.
		if _, err := machine.Interpret(line); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(stderr, err)
		return config.ExitIOError
	}
	return config.ExitOK
}

func report(result vm.Result, err error, stderr io.Writer) int {
	switch result {
	case vm.ResultCompileError:
		fmt.Fprintln(stderr, err)
		return config.ExitCompileError
	case vm.ResultRuntimeError:
		fmt.Fprintln(stderr, err)
		return config.ExitRuntimeError
	default:
		return config.ExitOK
	}
}
