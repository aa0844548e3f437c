package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdUnlock(args []string) int {
	flags := flag.NewFlagSet("unlock", flag.ContinueOnError)
	owner := flags.String("owner", "", "lease owner identity")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb unlock <key> [--owner ID] [--json]")
		return 1
	}

	key := flags.Arg(0)
	who := a.resolveOwner(*owner)
	released := a.lock.Unlock(key, who)

	if *jsonOut {
		printJSON(map[string]interface{}{"key": key, "owner": who, "released": released})
	} else if released {
		fmt.Printf("unlocked %s\n", key)
	} else {
		// Not an error: a lease we lost to expiry reads the same as one
		// we never held.
		fmt.Printf("not released: %s is not held by %s\n", key, who)
	}
	return 0
}
