package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// cmdResetSeqno rebases the seqno counter. Rare and deliberately awkward:
// it exists for restoring a database or re-cloning a site, and a botched
// rebase is how you violate the one invariant everything downstream
// relies on. Hence the --yes gate.
func (a *app) cmdResetSeqno(args []string) int {
	flags := flag.NewFlagSet("reset-seqno", flag.ContinueOnError)
	yes := flags.Bool("yes", false, "confirm the rebase")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb reset-seqno <value> --yes [--json]")
		return 1
	}
	value, err := strconv.ParseInt(flags.Arg(0), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: reset-seqno: bad value %q\n", flags.Arg(0))
		return 1
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "eb: reset-seqno: refusing without --yes (administrative rebase)")
		return 1
	}

	if err := a.log.ResetSeqno(value); err != nil {
		// Never blind-retry a failed rebase: verify the counter state
		// first (eb status shows the highest pending seqno).
		fmt.Fprintf(os.Stderr, "eb: reset-seqno: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"seqno_base": value, "next_seqno": value + 1})
	} else {
		fmt.Printf("seqno counter rebased: next append yields %d\n", value+1)
	}
	return 0
}

func (a *app) cmdDropAll(args []string) int {
	flags := flag.NewFlagSet("drop-all", flag.ContinueOnError)
	yes := flags.Bool("yes", false, "confirm the wipe")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "eb: drop-all: refusing without --yes (destroys unsynced events)")
		return 1
	}

	dropped := a.log.Pending()
	if err := a.log.DropAll(); err != nil {
		fmt.Fprintf(os.Stderr, "eb: drop-all: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"dropped": dropped})
	} else {
		fmt.Printf("dropped %d pending event(s); seqno numbering preserved\n", dropped)
	}
	return 0
}
