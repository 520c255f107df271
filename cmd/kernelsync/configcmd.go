// configcmd.go implements the 'kernelsync config' command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kolkov/kernelsync/kernel"
)

// configCommand prints the configuration the given flags, file and
// environment resolve to.
//
// Example:
//
//	kernelsync config -config kernel.yaml -threads 4
func configCommand(args []string) {
	cli, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := cli.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := writeConfig(os.Stdout, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// writeConfig renders cfg as YAML.
func writeConfig(w io.Writer, cfg kernel.Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
