package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anthonysdone/karambit/basic"
	"github.com/anthonysdone/karambit/internal/klog"
	"github.com/anthonysdone/karambit/vm"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "karambit [file]",
	Short: "Karambit assembles and runs programs for the Karambit virtual CPU",
	Long: `Karambit is a two-pass assembler and virtual machine for an 8-bit
register CPU. Files ending in .tb are first translated from the
bundled BASIC dialect; every other file is assembled directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "single-step through execution with breakpoints")
}

func runFile(cmd *cobra.Command, args []string) error {
	if debugFlag {
		klog.SetLogger(klog.NewTextLogger(slog.LevelDebug))
	}

	path := args[0]

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	asm := string(src)
	if strings.EqualFold(filepath.Ext(path), ".tb") {
		asm, err = basic.Compile(asm)
		if err != nil {
			return fmt.Errorf("compiling %s: %w", path, err)
		}
	}

	prog, err := vm.Assemble(asm)
	if err != nil {
		return fmt.Errorf("assembling %s: %w", path, err)
	}

	opts := []vm.Option{}
	if debugFlag {
		opts = append(opts, vm.WithDebug())
	}
	machine := vm.New(prog, opts...)

	var runErr error
	if debugFlag {
		runErr = machine.RunDebug()
	} else {
		runErr = machine.RunToCompletion()
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		if debugFlag {
			fmt.Fprintf(os.Stderr, "PC: 0x%04X  Regs: %v  Z: %v\n", machine.PC, machine.Regs, machine.Z)
		}
		return errSilent{runErr}
	}
	return nil
}

// errSilent marks an error already printed to stderr, so cobra's default
// error-printing on the way out of main doesn't duplicate it.
type errSilent struct{ err error }

func (e errSilent) Error() string { return e.err.Error() }

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		if _, silent := err.(errSilent); !silent {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
