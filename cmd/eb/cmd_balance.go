package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/daviddao/edgebill/pkg/crdt"
)

func (a *app) cmdBalance(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb balance <show|credit|debit|merge> ...")
		return 1
	}
	switch args[0] {
	case "show":
		return a.balanceShow(args[1:])
	case "credit":
		return a.balanceApply(args[1:], "credit")
	case "debit":
		return a.balanceApply(args[1:], "debit")
	case "merge":
		return a.balanceMerge(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "eb: balance: unknown subcommand %q\n", args[0])
		return 1
	}
}

func (a *app) balanceShow(args []string) int {
	flags := flag.NewFlagSet("balance show", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb balance show <imsi> [--json]")
		return 1
	}
	imsi := flags.Arg(0)

	c, err := a.loadBalance(imsi)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance: %v\n", err)
		return 1
	}
	state, err := c.Serialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"imsi":    imsi,
			"value":   c.Value(),
			"used":    c.Used(),
			"replica": c.Replica(),
			"state":   string(state),
		})
	} else {
		fmt.Printf("%s balance %d (replica %s)\n", imsi, c.Value(), c.Replica())
		fmt.Printf("  state: %s\n", state)
	}
	return 0
}

// balanceApply handles credit and debit: both mutate only this replica's
// accumulators, so they are safe regardless of what the cloud is doing to
// its own copy concurrently.
func (a *app) balanceApply(args []string, dir string) int {
	flags := flag.NewFlagSet("balance "+dir, flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "usage: eb balance %s <imsi> <amount> [--json]\n", dir)
		return 1
	}
	imsi := flags.Arg(0)
	amount, err := strconv.ParseUint(flags.Arg(1), 10, 63)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance: bad amount %q (must be a non-negative integer)\n", flags.Arg(1))
		return 1
	}

	c, err := a.loadBalance(imsi)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance: %v\n", err)
		return 1
	}
	if dir == "credit" {
		c.Increment(amount)
	} else {
		c.Decrement(amount)
	}
	if err := a.saveBalance(imsi, c); err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance: save: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"imsi": imsi, dir: amount, "value": c.Value()})
	} else {
		fmt.Printf("%s %s %d, balance now %d\n", imsi, dir, amount, c.Value())
	}
	return 0
}

// balanceMerge folds a remote serialized state (from the cloud, or from a
// restored backup) into the local balance. Merging is idempotent and
// order-free, so re-running with the same state is harmless.
func (a *app) balanceMerge(args []string) int {
	flags := flag.NewFlagSet("balance merge", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: eb balance merge <imsi> <state-json | @file> [--json]")
		return 1
	}
	imsi := flags.Arg(0)
	stateArg := flags.Arg(1)

	var remoteState []byte
	if strings.HasPrefix(stateArg, "@") {
		data, err := os.ReadFile(stateArg[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "eb: balance merge: %v\n", err)
			return 1
		}
		remoteState = data
	} else {
		remoteState = []byte(stateArg)
	}

	remote, err := crdt.Deserialize(remoteState, a.replicaID())
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance merge: %v\n", err)
		return 1
	}
	local, err := a.loadBalance(imsi)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance merge: %v\n", err)
		return 1
	}

	merged := crdt.Merge(local, remote)
	if err := a.saveBalance(imsi, merged); err != nil {
		fmt.Fprintf(os.Stderr, "eb: balance merge: save: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"imsi":   imsi,
			"before": local.Value(),
			"value":  merged.Value(),
		})
	} else {
		fmt.Printf("%s merged: balance %d -> %d\n", imsi, local.Value(), merged.Value())
	}
	return 0
}
