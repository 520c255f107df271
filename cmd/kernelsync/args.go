// args.go parses the flags shared by 'kernelsync stress' and 'kernelsync config'.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kolkov/kernelsync/kernel"
)

// cliConfig holds the parsed command line.
type cliConfig struct {
	// Configuration file (from -config flag)
	configFile string

	// Overrides, zero when not given
	threads    int
	iterations int

	// Verbose output flag (-v)
	verbose bool
}

// parseArgs parses command-line arguments.
//
// Value flags accept both "-flag value" and "-flag=value".
func parseArgs(args []string) (*cliConfig, error) {
	cli := &cliConfig{}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-v", "--verbose":
			cli.verbose = true
			continue
		case "-config", "--config", "-threads", "--threads", "-iterations", "--iterations":
		default:
			return nil, fmt.Errorf("unknown argument: %s", arg)
		}

		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s flag requires an argument", name)
			}
			i++
			value = args[i]
		}

		switch strings.TrimLeft(name, "-") {
		case "config":
			cli.configFile = value
		case "threads":
			n, err := positive(name, value)
			if err != nil {
				return nil, err
			}
			cli.threads = n
		case "iterations":
			n, err := positive(name, value)
			if err != nil {
				return nil, err
			}
			cli.iterations = n
		}
	}

	return cli, nil
}

func positive(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, value)
	}
	return n, nil
}

// resolve builds the effective configuration: file (or defaults),
// environment, then command-line overrides.
func (cli *cliConfig) resolve() (kernel.Config, error) {
	var cfg kernel.Config
	if cli.configFile != "" {
		loaded, err := kernel.LoadConfig(cli.configFile)
		if err != nil {
			return kernel.Config{}, err
		}
		cfg = loaded
	} else {
		cfg = kernel.DefaultConfig()
		if err := cfg.ApplyEnv(); err != nil {
			return kernel.Config{}, err
		}
	}

	if cli.threads > 0 {
		cfg.Stress.Threads = cli.threads
	}
	if cli.iterations > 0 {
		cfg.Stress.Iterations = cli.iterations
	}
	if cli.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return kernel.Config{}, err
	}
	return cfg, nil
}
