// Package main implements the kernelsync CLI tool.
//
// The kernelsync tool drives the guest kernel synchronization layer outside
// an emulator. It can:
//
//  1. Run a concurrent guest-thread stress workload over every primitive
//  2. Print the effective configuration
//
// Usage:
//
//	kernelsync stress                      # Default workload
//	kernelsync stress -threads 32 -iterations 5000
//	kernelsync config -config kernel.yaml  # Show merged configuration
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/kernelsync/kernel"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "stress":
		stressCommand(os.Args[2:])
	case "config":
		configCommand(os.Args[2:])
	case "version", "--version", "-v":
		info := kernel.GetInfo()
		fmt.Printf("kernelsync version %s (%s)\n", info.Version, info.WaitOrder)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`kernelsync - guest kernel synchronization layer

USAGE:
    kernelsync <command> [arguments]

COMMANDS:
    stress     Run a concurrent workload and print the final registry
    config     Print the effective configuration
    version    Show version information
    help       Show this help message

FLAGS (stress, config):
    -config <file>      YAML configuration file
    -threads <n>        Worker guest threads (stress only)
    -iterations <n>     Iterations per worker (stress only)
    -v                  Verbose registry diagnostics

ENVIRONMENT:
    KERNELSYNC_VERBOSE    Overrides "verbose" (true/false)
    KERNELSYNC_FIRMWARE   Overrides "firmware" (semantic version)

EXAMPLES:
    # Stress with the built-in configuration
    kernelsync stress

    # Heavier workload, diagnostics on stderr
    kernelsync stress -threads 64 -iterations 10000 -v

    # Show the configuration a file resolves to
    kernelsync config -config kernel.yaml

`)
}
