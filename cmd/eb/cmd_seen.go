package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/edgebill/pkg/metrics"
)

func (a *app) cmdSeen(args []string) int {
	flags := flag.NewFlagSet("seen", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb seen <id> [--json]")
		return 1
	}

	id := flags.Arg(0)
	seen := a.window.Seen(id)
	if seen {
		metrics.DuplicatesSuppressed.Inc()
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"id":       id,
			"seen":     seen,
			"window":   a.window.MaxLen(),
			"retained": a.window.Len(),
			"policy":   a.window.Policy().String(),
		})
	} else if seen {
		fmt.Printf("%s seen before\n", id)
	} else {
		fmt.Printf("%s is new (recorded)\n", id)
	}
	return 0
}
