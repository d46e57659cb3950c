// Package main provides the nrfsim command, which runs nRF52840 firmware
// against simulated peripherals.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `Usage: nrfsim <command> [options] [args]

Commands:
  run       run a firmware image
  vectors   print the vector table of a firmware image
  devices   list the simulated peripherals and their registers
  analyze   group observed MMIO addresses by SVD peripheral

Run 'nrfsim <command> -h' for the options of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	var err error
	switch args[0] {
	case "run":
		err = runCommand(args[1:], stdout, stderr)
	case "vectors":
		err = vectorsCommand(args[1:], stdout, stderr)
	case "devices":
		err = devicesCommand(args[1:], stdout, stderr)
	case "analyze":
		err = analyzeCommand(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 1
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
