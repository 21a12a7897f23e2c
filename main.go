package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `arena: deterministic lane battles

usage: arena <command> [flags]

commands:
  serve    run battles in real time and stream them to spectators
  run      play one battle headless and print its result
  batch    play many seeded battles and print a summary
  verify   re-simulate replay bundles and check they reproduce
  replays  list the replay bundles under a directory
  schema   print the scenario JSON Schema
  token    mint a spectator token from ARENA_SPECTATE_SECRET
`

type command func(args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"serve":   serveCommand,
	"run":     runCommand,
	"batch":   batchCommand,
	"verify":  verifyCommand,
	"replays": replaysCommand,
	"schema":  schemaCommand,
	"token":   tokenCommand,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches to a subcommand and maps its outcome to an exit code: 0 on success, 2 for usage
// errors, 1 otherwise.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		fmt.Fprint(stdout, usage)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "arena: unknown command %q\n\n%s", name, usage)
		return 2
	}
	if err := cmd(args[1:], stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if isUsageError(err) {
			return 2
		}
		fmt.Fprintf(stderr, "arena %s: %v\n", name, err)
		return 1
	}
	return 0
}

// isUsageError reports flag parse failures, which the flag package has already printed.
func isUsageError(err error) bool {
	var usageErr flagParseError
	return errors.As(err, &usageErr)
}
